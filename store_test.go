package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStore_ActiveSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/active-sessions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]StoreSession{
			{ID: "s1", UserID: "u1", Type: KindWork, Duration: 25, TimeRemaining: 900},
		})
	}))
	defer srv.Close()

	sessions, err := NewHTTPStore(srv.URL).ActiveSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("unexpected sessions: %+v", sessions)
	}
}

func TestHTTPStore_ActiveSessionsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewHTTPStore(srv.URL).ActiveSessions(context.Background()); err == nil {
		t.Error("non-200 must surface as an error")
	}
}

func TestHTTPStore_PersistChatMessage(t *testing.T) {
	var got ChatMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat-messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	msg := ChatMessage{ID: "m1", Username: "ann", Action: ActionSessionStart, Kind: ChatKindSystem}
	if err := NewHTTPStore(srv.URL).PersistChatMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if got.ID != "m1" || got.Action != ActionSessionStart {
		t.Errorf("unexpected persisted body: %+v", got)
	}
}
