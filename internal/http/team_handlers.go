package httpx

import (
	"net/http"
	"strings"
)

type teamPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.limited("GET /teams", r.listTeams)(w, req)
	case http.MethodPost:
		r.limited("POST /teams", r.createTeam)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) listTeams(w http.ResponseWriter, req *http.Request) {
	teams, err := r.teams.List(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) createTeam(w http.ResponseWriter, req *http.Request) {
	var payload teamPayload
	if !decodeJSON(w, req, &payload) {
		return
	}
	created, err := r.teams.Create(req.Context(), callerFrom(req), payload.Name, payload.Description)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleTeamSubroutes dispatches /teams/mine and /teams/{id}[/action].
func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/teams/"), "/")
	parts := strings.Split(trimmed, "/")
	if trimmed == "" || len(parts) > 2 {
		r.notFound(w)
		return
	}
	if len(parts) == 1 && parts[0] == "mine" {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		r.limited("GET /teams/mine", r.myTeams)(w, req)
		return
	}
	teamID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	serve := func(name string, h func(http.ResponseWriter, *http.Request, string)) {
		r.limited(name, func(w http.ResponseWriter, req *http.Request) {
			h(w, req, teamID)
		})(w, req)
	}

	switch {
	case action == "" && req.Method == http.MethodGet:
		serve("GET /teams/{id}", r.getTeam)
	case action == "" && req.Method == http.MethodPatch:
		serve("PATCH /teams/{id}", r.updateTeam)
	case action == "join" && req.Method == http.MethodPost:
		serve("POST /teams/{id}/join", r.joinTeam)
	case action == "leave" && req.Method == http.MethodPost:
		serve("POST /teams/{id}/leave", r.leaveTeam)
	case action == "vote" && req.Method == http.MethodPost:
		serve("POST /teams/{id}/vote", r.voteTeam)
	case action == "comments" && req.Method == http.MethodGet:
		serve("GET /teams/{id}/comments", r.listComments)
	case action == "comments" && req.Method == http.MethodPost:
		serve("POST /teams/{id}/comments", r.addComment)
	case action == "members" && req.Method == http.MethodGet:
		serve("GET /teams/{id}/members", r.listMembers)
	case action == "image" && req.Method == http.MethodPut:
		serve("PUT /teams/{id}/image", r.attachTeamImage)
	case action == "" || action == "join" || action == "leave" || action == "vote" ||
		action == "comments" || action == "members" || action == "image":
		r.methodNotAllowed(w)
	default:
		r.notFound(w)
	}
}

func (r *Router) myTeams(w http.ResponseWriter, req *http.Request) {
	teams, err := r.teams.MyTeams(req.Context(), callerFrom(req))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

func (r *Router) getTeam(w http.ResponseWriter, req *http.Request, teamID string) {
	t, err := r.teams.Get(req.Context(), teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (r *Router) updateTeam(w http.ResponseWriter, req *http.Request, teamID string) {
	var payload teamPayload
	if !decodeJSON(w, req, &payload) {
		return
	}
	t, err := r.teams.Update(req.Context(), callerFrom(req), teamID, payload.Name, payload.Description)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (r *Router) joinTeam(w http.ResponseWriter, req *http.Request, teamID string) {
	if err := r.teams.JoinTeam(req.Context(), callerFrom(req), teamID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (r *Router) leaveTeam(w http.ResponseWriter, req *http.Request, teamID string) {
	if err := r.teams.LeaveTeam(req.Context(), callerFrom(req), teamID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (r *Router) voteTeam(w http.ResponseWriter, req *http.Request, teamID string) {
	votes, err := r.teams.Vote(req.Context(), callerFrom(req), teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"votes": votes})
}

func (r *Router) listComments(w http.ResponseWriter, req *http.Request, teamID string) {
	comments, err := r.teams.GetComments(req.Context(), callerFrom(req), teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (r *Router) addComment(w http.ResponseWriter, req *http.Request, teamID string) {
	var payload struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	comment, err := r.teams.AddComment(req.Context(), callerFrom(req), teamID, payload.Content)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (r *Router) listMembers(w http.ResponseWriter, req *http.Request, teamID string) {
	members, err := r.teams.GetTeamMembers(req.Context(), teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (r *Router) attachTeamImage(w http.ResponseWriter, req *http.Request, teamID string) {
	var payload struct {
		StorageID string `json:"storage_id"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	t, err := r.teams.AttachImage(req.Context(), callerFrom(req), teamID, payload.StorageID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
