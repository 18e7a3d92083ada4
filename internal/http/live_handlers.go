package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/ws"
)

const (
	liveTransportWS  = "websocket"
	liveTransportSSE = "sse"
	sseRetry         = 3 * time.Second
)

var errLeftTeam = errors.New("subscriber is no longer a team member")

// memberGate re-checks membership before each comment-feed event, so a
// subscriber who leaves the team stops receiving it.
type memberGate struct {
	ws.Subscriber
	ctx    context.Context
	teamID string
	userID string
	teams  interface {
		IsMember(ctx context.Context, teamID, userID string) (bool, error)
	}
}

func (g *memberGate) Send(payload []byte) error {
	member, err := g.teams.IsMember(g.ctx, g.teamID, g.userID)
	if err != nil {
		return err
	}
	if !member {
		return errLeftTeam
	}
	return g.Subscriber.Send(payload)
}

// commentFeedTeam returns the team id of a team:<id>:comments topic.
func commentFeedTeam(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, "team:")
	if !ok {
		return "", false
	}
	teamID, ok := strings.CutSuffix(rest, ":comments")
	return teamID, ok && teamID != ""
}

// subscriber wraps client in a membership gate when topic is a comment feed.
func (r *Router) subscriber(req *http.Request, topic string, client ws.Subscriber) ws.Subscriber {
	teamID, ok := commentFeedTeam(topic)
	if !ok {
		return client
	}
	return &memberGate{Subscriber: client, ctx: req.Context(), teamID: teamID, userID: callerFrom(req).UserID, teams: r.teams}
}

// authorizeTopic validates a live topic name and checks the caller may
// watch it. Comment feeds are visible to team members only.
func (r *Router) authorizeTopic(ctx context.Context, caller domain.Caller, topic string) error {
	switch {
	case topic == domain.TopicTeams:
		return nil
	case strings.HasPrefix(topic, "profile:"):
		if strings.TrimPrefix(topic, "profile:") == "" {
			return domain.Invalid("unknown topic %q", topic)
		}
		return nil
	case strings.HasPrefix(topic, "team:"):
		rest := strings.TrimPrefix(topic, "team:")
		teamID, feed, hasFeed := strings.Cut(rest, ":")
		if teamID == "" {
			return domain.Invalid("unknown topic %q", topic)
		}
		if !hasFeed {
			return nil
		}
		if feed != "comments" {
			return domain.Invalid("unknown topic %q", topic)
		}
		if !caller.Authenticated() {
			return domain.ErrUnauthenticated
		}
		member, err := r.teams.IsMember(ctx, teamID, caller.UserID)
		if err != nil {
			return err
		}
		if !member {
			return domain.ErrCommentForbidden
		}
		return nil
	default:
		return domain.Invalid("unknown topic %q", topic)
	}
}

func (r *Router) liveTopic(w http.ResponseWriter, req *http.Request) (string, bool) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return "", false
	}
	topic := strings.TrimSpace(req.URL.Query().Get("topic"))
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic query parameter required")
		return "", false
	}
	if err := r.authorizeTopic(req.Context(), callerFrom(req), topic); err != nil {
		r.writeServiceError(w, req, err)
		return "", false
	}
	return topic, true
}

func (r *Router) handleLiveWS(w http.ResponseWriter, req *http.Request) {
	topic, ok := r.liveTopic(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	sub := r.subscriber(req, topic, client)
	r.hub.Register(topic, sub)
	r.metrics.liveOpened(liveTransportWS)
	defer func() {
		r.hub.Unregister(topic, sub)
		r.metrics.liveClosed(liveTransportWS)
		client.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					client.Close()
					return
				}
			}
		}
	}()
	client.Wait()
}

func (r *Router) handleLiveSSE(w http.ResponseWriter, req *http.Request) {
	topic, ok := r.liveTopic(w, req)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	client := ws.NewSSEClient(w, flusher, r.logger, ws.WithWriteDeadline(rc.SetWriteDeadline))
	if err := client.Open(sseRetry); err != nil {
		return
	}
	sub := r.subscriber(req, topic, client)
	r.hub.Register(topic, sub)
	r.metrics.liveOpened(liveTransportSSE)
	defer func() {
		r.hub.Unregister(topic, sub)
		r.metrics.liveClosed(liveTransportSSE)
		client.Detach()
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
