package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository/memory"
	"github.com/splax/hackhub/internal/service/auth"
	"github.com/splax/hackhub/internal/service/profile"
	"github.com/splax/hackhub/internal/service/storage"
	"github.com/splax/hackhub/internal/service/team"
	"github.com/splax/hackhub/internal/ws"
	"github.com/splax/hackhub/pkg/config"
)

type stubLimiter struct {
	allow func(key string, limit int, window time.Duration) rateDecision
}

func (s stubLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if s.allow == nil {
		return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
	}
	return s.allow(key, limit, window)
}

func (stubLimiter) Close() {}

type testEnv struct {
	router *Router
	hub    *ws.Hub
}

func newTestEnv(t *testing.T, limiter RateLimiter, dbHealth func(context.Context) error) testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		JWTSecret:        "router-test-secret",
		AccessTokenTTL:   time.Hour,
		RefreshTokenTTL:  time.Hour,
		StorageDir:       t.TempDir(),
		PublicBaseURL:    "http://hub.test",
		UploadMaxBytes:   1024,
		CommentMaxLength: 50,
	}
	repo := memory.New()
	hub := ws.NewHub(log)
	blobs := storage.New(repo, log, cfg)
	profiles := profile.New(repo, blobs, hub, log)
	teams := team.New(repo, profiles, blobs, hub, log, team.WithCommentMaxLength(cfg.CommentMaxLength))
	if limiter == nil {
		limiter = stubLimiter{}
	}
	router := NewRouter(log, Services{
		Auth:     auth.New(repo, log, cfg),
		Profiles: profiles,
		Teams:    teams,
		Storage:  blobs,
	}, hub, limiter, 50*time.Millisecond, dbHealth)
	t.Cleanup(func() {
		router.Close()
		hub.Close()
	})
	return testEnv{router: router, hub: hub}
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/signup", "", map[string]string{"email": email, "password": "hunter2hunter2"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	decode(t, rec, &resp)
	return resp.Tokens.AccessToken
}

func (e testEnv) createTeam(t *testing.T, token, name string) domain.Team {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/teams", token, map[string]string{"name": name, "description": "demo"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create team: %d %s", rec.Code, rec.Body.String())
	}
	var created domain.Team
	decode(t, rec, &created)
	return created
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if msg == "" {
		return
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != msg {
		t.Fatalf("expected error %q, got %q", msg, body["error"])
	}
}

func TestTeamMembershipOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u1 := env.signup(t, "u1@example.com")
	u2 := env.signup(t, "u2@example.com")
	u3 := env.signup(t, "u3@example.com")

	rockets := env.createTeam(t, u1, "Rockets")
	comets := env.createTeam(t, u3, "Comets")

	if rec := env.do(t, http.MethodPost, "/teams/"+rockets.ID+"/join", u2, nil); rec.Code != http.StatusOK {
		t.Fatalf("join: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(t, http.MethodPost, "/teams/"+comets.ID+"/join", u2, nil),
		http.StatusConflict, "you must leave your current team before joining another")
	expectError(t, env.do(t, http.MethodPost, "/teams/"+rockets.ID+"/leave", u1, nil),
		http.StatusConflict, "team captain cannot leave the team")
	u4 := env.signup(t, "u4@example.com")
	expectError(t, env.do(t, http.MethodPost, "/teams/missing/join", u4, nil), http.StatusNotFound, "team not found")

	rec := env.do(t, http.MethodGet, "/teams/mine", u2, nil)
	var mine []domain.Team
	decode(t, rec, &mine)
	if len(mine) != 1 || mine[0].ID != rockets.ID {
		t.Fatalf("expected u2 on rockets, got %+v", mine)
	}

	if rec := env.do(t, http.MethodPost, "/teams/"+rockets.ID+"/leave", u2, nil); rec.Code != http.StatusOK {
		t.Fatalf("leave: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/teams/"+rockets.ID, "", nil)
	var got domain.Team
	decode(t, rec, &got)
	if len(got.Members) != 1 || got.Members[0] != got.CaptainID {
		t.Fatalf("expected captain only, got %v", got.Members)
	}

	rec = env.do(t, http.MethodGet, "/teams/mine", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list for anonymous, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestVotesAndLeaderboard(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u1 := env.signup(t, "u1@example.com")
	first := env.createTeam(t, u1, "First")
	second := env.createTeam(t, u1, "Second")

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/teams/"+second.ID+"/vote", u1, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("vote: %d %s", rec.Code, rec.Body.String())
		}
	}
	expectError(t, env.do(t, http.MethodPost, "/teams/"+first.ID+"/vote", "", nil), http.StatusUnauthorized, "authentication required")

	var teams []domain.Team
	decode(t, env.do(t, http.MethodGet, "/teams", "", nil), &teams)
	if len(teams) != 2 || teams[0].ID != second.ID || teams[0].Votes != 3 || teams[1].ID != first.ID {
		t.Fatalf("unexpected leaderboard %+v", teams)
	}
}

func TestCommentsVisibility(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u1 := env.signup(t, "u1@example.com")
	u2 := env.signup(t, "u2@example.com")
	rockets := env.createTeam(t, u1, "Rockets")
	path := "/teams/" + rockets.ID + "/comments"

	for _, text := range []string{"kickoff", "demo at 5"} {
		if rec := env.do(t, http.MethodPost, path, u1, map[string]string{"content": text}); rec.Code != http.StatusCreated {
			t.Fatalf("comment: %d %s", rec.Code, rec.Body.String())
		}
	}
	expectError(t, env.do(t, http.MethodPost, path, u2, map[string]string{"content": "hi"}), http.StatusForbidden, "only team members can comment")
	expectError(t, env.do(t, http.MethodPost, path, u1, map[string]string{"content": strings.Repeat("x", 51)}), http.StatusBadRequest, "")

	var comments []domain.TeamComment
	decode(t, env.do(t, http.MethodGet, path, u1, nil), &comments)
	if len(comments) != 2 || comments[0].Content != "kickoff" {
		t.Fatalf("unexpected comments %+v", comments)
	}
	for _, token := range []string{u2, ""} {
		rec := env.do(t, http.MethodGet, path, token, nil)
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Fatalf("expected empty feed, got %d %s", rec.Code, rec.Body.String())
		}
	}
}

func TestProfileAndMembers(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u1 := env.signup(t, "u1@example.com")
	u2 := env.signup(t, "u2@example.com")

	rec := env.do(t, http.MethodGet, "/profile", u1, nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("expected null profile, got %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPut, "/profile", u1, map[string]string{"name": "Ada", "role": "backend"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update profile: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(t, http.MethodPut, "/profile", "", map[string]string{"name": "x"}), http.StatusUnauthorized, "")

	rockets := env.createTeam(t, u1, "Rockets")
	if rec := env.do(t, http.MethodPost, "/teams/"+rockets.ID+"/join", u2, nil); rec.Code != http.StatusOK {
		t.Fatalf("join: %d", rec.Code)
	}
	var members []domain.MemberProfile
	decode(t, env.do(t, http.MethodGet, "/teams/"+rockets.ID+"/members", "", nil), &members)
	if len(members) != 2 || members[0].Profile == nil || members[0].Profile.Name != "Ada" || members[1].Profile != nil {
		t.Fatalf("unexpected members %+v", members)
	}

	rec = env.do(t, http.MethodGet, "/teams/missing/members", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty roster, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAvatarUploadFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u1 := env.signup(t, "u1@example.com")

	rec := env.do(t, http.MethodPost, "/profile/upload-target", u1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload target: %d %s", rec.Code, rec.Body.String())
	}
	var target domain.UploadTarget
	decode(t, rec, &target)
	uploadURL, err := url.Parse(target.URL)
	if err != nil {
		t.Fatalf("parse upload url: %v", err)
	}

	png := []byte("\x89PNG\r\n\x1a\nfake-image")
	upload := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, uploadURL.RequestURI(), bytes.NewReader(png))
		req.Header.Set("Content-Type", "image/png")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		return rec
	}
	if rec := upload(); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, upload(), http.StatusConflict, "upload target already used")

	rec = env.do(t, http.MethodPut, "/profile/image", u1, map[string]string{"storage_id": target.StorageID})
	if rec.Code != http.StatusOK {
		t.Fatalf("attach image: %d %s", rec.Code, rec.Body.String())
	}
	var p domain.Profile
	decode(t, rec, &p)
	if p.ImageURL != "http://hub.test/storage/"+target.StorageID || p.Name != "" {
		t.Fatalf("unexpected profile %+v", p)
	}

	rec = env.do(t, http.MethodGet, "/storage/"+target.StorageID, "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" || !bytes.Equal(rec.Body.Bytes(), png) {
		t.Fatalf("download: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	expectError(t, env.do(t, http.MethodPut, "/profile/image", u1, map[string]string{"storage_id": "00000000-0000-0000-0000-000000000000"}), http.StatusNotFound, "file not found")
}

func TestInvalidTokenRejectedOnOptionalRoutes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	expectError(t, env.do(t, http.MethodGet, "/teams/mine", "garbage", nil), http.StatusUnauthorized, "authentication failed")
}

func TestRateLimitExceeded(t *testing.T) {
	limiter := stubLimiter{allow: func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: false, count: limit + 1, windowEnd: time.Now().Add(window)}
	}}
	env := newTestEnv(t, limiter, nil)
	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "a@b.c", "password": "x"})
	expectError(t, rec, http.StatusTooManyRequests, "rate limit exceeded")
	if rec.Header().Get("X-RateLimit-Limit") != "12" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected rate headers %v", rec.Header())
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()
	for i := 1; i <= 2; i++ {
		if d := rl.Allow("ip:1", 2, time.Minute); !d.allowed || d.count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow("ip:1", 2, time.Minute); d.allowed {
		t.Fatalf("third request must be limited")
	}
	if d := rl.Allow("ip:2", 2, time.Minute); !d.allowed {
		t.Fatalf("other keys are independent")
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	env := newTestEnv(t, nil, func(context.Context) error { return errors.New("connection refused") })
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["status"] != "degraded" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.do(t, http.MethodGet, "/teams", "", nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `hackhub_api_http_requests_total{method="GET",route="/teams",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output, got %d", rec.Code)
	}
}

func TestLiveTopicAuthorization(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	u1 := env.signup(t, "u1@example.com")
	u2 := env.signup(t, "u2@example.com")
	rockets := env.createTeam(t, u1, "Rockets")
	comments := url.QueryEscape(domain.TeamCommentsTopic(rockets.ID))

	expectError(t, env.do(t, http.MethodGet, "/events?topic="+comments, "", nil), http.StatusUnauthorized, "")
	expectError(t, env.do(t, http.MethodGet, "/events?topic="+comments, u2, nil), http.StatusForbidden, "")
	expectError(t, env.do(t, http.MethodGet, "/events?topic=bogus", "", nil), http.StatusBadRequest, "")
	expectError(t, env.do(t, http.MethodGet, "/events", "", nil), http.StatusBadRequest, "topic query parameter required")
}

func TestLiveWebsocketReceivesTeamEvents(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	u1 := env.signup(t, "u1@example.com")
	rockets := env.createTeam(t, u1, "Rockets")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live?topic=" + url.QueryEscape(domain.TeamTopic(rockets.ID))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	received := make(chan domain.Event, 1)
	go func() {
		var event domain.Event
		if err := conn.ReadJSON(&event); err == nil {
			received <- event
		}
	}()

	// Registration completes after the handshake, so vote until an event arrives.
	deadline := time.After(3 * time.Second)
	for {
		env.do(t, http.MethodPost, "/teams/"+rockets.ID+"/vote", u1, nil)
		select {
		case event := <-received:
			if event.Kind != domain.EventVoteCast || event.TeamID != rockets.ID {
				t.Fatalf("unexpected event %+v", event)
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for live event")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestLiveSSEStreamsEvents(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?topic=teams", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(50 * time.Millisecond):
				env.hub.Publish(domain.Event{Topic: domain.TopicTeams, Kind: domain.EventTeamCreated, TeamID: "t1"})
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event domain.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.Kind != domain.EventTeamCreated {
			t.Fatalf("unexpected event %+v", event)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}

func TestLiveCommentFeedEndsWhenMemberLeaves(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	captain := env.signup(t, "cap@example.com")
	member := env.signup(t, "member@example.com")
	created := env.createTeam(t, captain, "Rockets")
	if rec := env.do(t, http.MethodPost, "/teams/"+created.ID+"/join", member, nil); rec.Code != http.StatusOK {
		t.Fatalf("join: %d %s", rec.Code, rec.Body.String())
	}

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	topic := domain.TeamCommentsTopic(created.ID)
	target := srv.URL + "/events?topic=" + url.QueryEscape(topic) + "&access_token=" + url.QueryEscape(member)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe status %d", resp.StatusCode)
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-stop:
				return
			case <-time.After(50 * time.Millisecond):
				env.hub.Publish(domain.Event{Topic: topic, Kind: domain.EventCommentAdded, TeamID: created.ID})
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	gotFirst := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			gotFirst = true
			break
		}
	}
	close(stop)
	<-stopped
	if !gotFirst {
		t.Fatalf("no comment event before leaving: %v", scanner.Err())
	}

	if rec := env.do(t, http.MethodPost, "/teams/"+created.ID+"/leave", member, nil); rec.Code != http.StatusOK {
		t.Fatalf("leave: %d %s", rec.Code, rec.Body.String())
	}
	env.hub.Publish(domain.Event{Topic: topic, Kind: domain.EventCommentAdded, TeamID: created.ID})

	for scanner.Scan() {
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("expected the feed to close after leaving, got %v", err)
	}
}

func TestEveryRouteFollowsItsRatePolicy(t *testing.T) {
	var calls []string
	var limits []int
	deny := false
	limiter := stubLimiter{allow: func(key string, limit int, window time.Duration) rateDecision {
		if !deny {
			return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
		}
		calls = append(calls, key)
		limits = append(limits, limit)
		return rateDecision{allowed: false, count: limit + 1, windowEnd: time.Now().Add(window)}
	}}
	env := newTestEnv(t, limiter, nil)
	token := env.signup(t, "policy@hub.test")
	deny = true

	for name, policy := range routePolicies {
		method, route, _ := strings.Cut(name, " ")
		path := strings.ReplaceAll(route, "{id}", "00000000-0000-0000-0000-000000000001")

		if policy.auth == authRequired {
			expectError(t, env.do(t, method, path, "", nil), http.StatusUnauthorized, "authentication required")
			if len(calls) != 0 {
				t.Fatalf("%s: limiter consulted before auth: %v", name, calls)
			}
		}

		rec := env.do(t, method, path, token, nil)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("%s: expected 429, got %d", name, rec.Code)
		}
		if len(calls) != 1 || limits[0] != policy.limit {
			t.Fatalf("%s: limiter calls %v limits %v", name, calls, limits)
		}
		wantPrefix := "ip:"
		if policy.auth != authNone {
			wantPrefix = "user:"
		}
		if !strings.HasPrefix(calls[0], wantPrefix) {
			t.Fatalf("%s: key %q, want prefix %q", name, calls[0], wantPrefix)
		}
		calls, limits = nil, nil
	}
}
