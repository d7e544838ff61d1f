package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubPresenceStore struct {
	online []string
	err    error
}

func (s *stubPresenceStore) GetOnlineUsers(context.Context) ([]string, error) {
	return s.online, s.err
}

func (s *stubPresenceStore) IsUserOnline(_ context.Context, userID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, id := range s.online {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func newPresenceRouter(store PresenceStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewPresenceHandler(store)
	router.GET("/internal/presence", h.List)
	router.GET("/internal/presence/:id", h.Check)
	return router
}

func TestPresenceList(t *testing.T) {
	router := newPresenceRouter(&stubPresenceStore{online: []string{"1", "7"}})

	req := httptest.NewRequest(http.MethodGet, "/internal/presence", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Online []string `json:"online"`
		Count  int      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body does not parse: %v", err)
	}
	if body.Count != 2 || len(body.Online) != 2 {
		t.Fatalf("expected 2 online users, got %+v", body)
	}
}

func TestPresenceCheck(t *testing.T) {
	router := newPresenceRouter(&stubPresenceStore{online: []string{"7"}})

	cases := []struct {
		userID string
		online bool
	}{
		{"7", true},
		{"9", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/internal/presence/"+tc.userID, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("user %s: expected 200, got %d", tc.userID, w.Code)
		}
		var body struct {
			Online bool `json:"online"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("response body does not parse: %v", err)
		}
		if body.Online != tc.online {
			t.Fatalf("user %s: online = %v, want %v", tc.userID, body.Online, tc.online)
		}
	}
}

func TestPresenceStoreFailure(t *testing.T) {
	router := newPresenceRouter(&stubPresenceStore{err: errors.New("redis down")})

	for _, path := range []string{"/internal/presence", "/internal/presence/7"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, w.Code)
		}
	}
}
