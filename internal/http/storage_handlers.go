package httpx

import (
	"net/http"
	"strings"
)

func (r *Router) handleStorageUpload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	token := strings.TrimSpace(req.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "upload token required")
		return
	}
	defer req.Body.Close()
	blob, err := r.storage.Store(req.Context(), token, req.Header.Get("Content-Type"), req.Body)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"storage_id": blob.ID,
		"url":        r.storage.URL(blob.ID),
		"blob":       blob,
	})
}

func (r *Router) handleStorageGet(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		r.methodNotAllowed(w)
		return
	}
	blobID := strings.TrimPrefix(req.URL.Path, "/storage/")
	if blobID == "" || strings.Contains(blobID, "/") {
		r.notFound(w)
		return
	}
	blob, file, err := r.storage.Open(req.Context(), blobID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	defer file.Close()
	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, req, "", blob.CreatedAt, file)
}
