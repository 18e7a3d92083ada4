package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJoinTeamSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teams/t1/join" || r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"you must leave your current team before joining another"}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	err = c.JoinTeam(context.Background(), "tok", "t1")
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected conflict APIError, got %v", err)
	}
	if !strings.Contains(apiErr.Message, "leave your current team") {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestGetProfileNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "u 1" {
			t.Errorf("user_id not forwarded: %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, "null\n")
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	p, err := c.GetProfile(context.Background(), "", "u 1")
	if err != nil || p != nil {
		t.Fatalf("expected nil profile, got %+v, %v", p, err)
	}
}

func TestUploadSendsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("Content-Type") != "image/png" || string(body) != "png-bytes" || r.URL.Query().Get("token") != "abc" {
			t.Errorf("unexpected upload %q %q %q", r.Header.Get("Content-Type"), body, r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"storage_id": "blob-1"})
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	id, err := c.Upload(context.Background(), UploadTarget{URL: srv.URL + "/storage/upload?token=abc"}, "image/png", strings.NewReader("png-bytes"))
	if err != nil || id != "blob-1" {
		t.Fatalf("upload: %q, %v", id, err)
	}
}

func TestNewNormalisesBaseURL(t *testing.T) {
	c, err := New(" localhost:4000/ ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.baseURL != "http://localhost:4000" {
		t.Fatalf("unexpected base url %q", c.baseURL)
	}
}
