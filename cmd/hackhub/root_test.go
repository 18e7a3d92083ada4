package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginStoresSessionAndAuthorisesLaterCalls(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "hunter2" {
				t.Errorf("password not read from stdin: %q", body["password"])
			}
			_, _ = io.WriteString(w, `{"user":{"id":"u1","email":"ada@example.com"},"tokens":{"access_token":"acc","refresh_token":"ref","expires_in":900}}`)
		case "/teams/t1/vote":
			gotAuth = r.Header.Get("Authorization")
			_, _ = io.WriteString(w, `{"votes":3}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := filepath.Join(t.TempDir(), "hackhub", "config.json")
	out, err := runCLI(t, "hunter2\n", "--config", cfg, "--api", srv.URL, "login", "--email", "ada@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "ada@example.com") {
		t.Fatalf("unexpected output %q", out)
	}
	info, err := os.Stat(cfg)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 config, got %v", info.Mode().Perm())
	}

	out, err = runCLI(t, "", "--config", cfg, "--api", srv.URL, "team", "vote", "t1")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if gotAuth != "Bearer acc" {
		t.Fatalf("expected stored token, got %q", gotAuth)
	}
	if !strings.Contains(out, "3 votes") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestAuthedCommandsRequireLogin(t *testing.T) {
	t.Setenv("HACKHUB_TOKEN", "")
	cfg := filepath.Join(t.TempDir(), "config.json")
	_, err := runCLI(t, "", "--config", cfg, "team", "join", "t1")
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected login error, got %v", err)
	}
}

func TestTeamListPrintsLeaderboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teams" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"t2","name":"Comets","members":["a","b"],"votes":7},{"id":"t1","name":"Rockets","members":["c"],"votes":2}]`)
	}))
	defer srv.Close()

	out, err := runCLI(t, "", "--config", filepath.Join(t.TempDir(), "c.json"), "--api", srv.URL, "team", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus two rows, got %q", out)
	}
	if !strings.HasPrefix(lines[1], "1") || !strings.Contains(lines[1], "Comets") {
		t.Fatalf("expected Comets first, got %q", lines[1])
	}
}

func TestTeamCommandsSurfaceAPIErrors(t *testing.T) {
	t.Setenv("HACKHUB_TOKEN", "tok")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"team captains cannot leave their own team"}`)
	}))
	defer srv.Close()

	_, err := runCLI(t, "", "--config", filepath.Join(t.TempDir(), "c.json"), "--api", srv.URL, "team", "leave", "t1")
	if err == nil || !strings.Contains(err.Error(), "captains cannot leave") {
		t.Fatalf("expected captain error, got %v", err)
	}
}

func TestExpiredTokenIsRefreshedAndRetried(t *testing.T) {
	var votes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/refresh":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["refresh_token"] != "ref-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"invalid or expired token"}`)
				return
			}
			_, _ = io.WriteString(w, `{"tokens":{"access_token":"acc-2","refresh_token":"ref-2","expires_in":900}}`)
		case "/teams/t1/vote":
			if r.Header.Get("Authorization") != "Bearer acc-2" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"error":"invalid or expired token"}`)
				return
			}
			votes++
			_, _ = io.WriteString(w, `{"votes":1}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(cfg, []byte(`{"access_token":"acc-1","refresh_token":"ref-1"}`), 0o600); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	t.Setenv("HACKHUB_TOKEN", "")

	out, err := runCLI(t, "", "--config", cfg, "--api", srv.URL, "team", "vote", "t1")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if votes != 1 || !strings.Contains(out, "1 votes") {
		t.Fatalf("expected one retried vote, got %d votes and %q", votes, out)
	}
	raw, err := os.ReadFile(cfg)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var saved map[string]any
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if saved["access_token"] != "acc-2" || saved["refresh_token"] != "ref-2" {
		t.Fatalf("refreshed session not saved: %s", raw)
	}
}

func TestRefreshFailureAsksForLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid or expired token"}`)
	}))
	defer srv.Close()

	cfg := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(cfg, []byte(`{"access_token":"acc-1","refresh_token":"stale"}`), 0o600); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	t.Setenv("HACKHUB_TOKEN", "")

	_, err := runCLI(t, "", "--config", cfg, "--api", srv.URL, "team", "join", "t1")
	if err == nil || !strings.Contains(err.Error(), "hackhub login") {
		t.Fatalf("expected login hint, got %v", err)
	}
}
