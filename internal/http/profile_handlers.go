package httpx

import (
	"net/http"
)

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.limited("GET /profile", r.getProfile)(w, req)
	case http.MethodPut:
		r.limited("PUT /profile", r.updateProfile)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) getProfile(w http.ResponseWriter, req *http.Request) {
	p, err := r.profiles.Get(req.Context(), callerFrom(req), req.URL.Query().Get("user_id"))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	// An absent profile is a normal result and encodes as null.
	writeJSON(w, http.StatusOK, p)
}

func (r *Router) updateProfile(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	p, err := r.profiles.Update(req.Context(), callerFrom(req), payload.Name, payload.Role)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (r *Router) handleProfileUploadTarget(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	target, err := r.profiles.RequestUploadTarget(req.Context(), callerFrom(req))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (r *Router) handleProfileImage(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		StorageID string `json:"storage_id"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	p, err := r.profiles.AttachImage(req.Context(), callerFrom(req), payload.StorageID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
