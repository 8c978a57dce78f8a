package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StoreSession is one record from the authoritative active-session
// list.
type StoreSession struct {
	ID            string `json:"id"`
	UserID        string `json:"userId,omitempty"`
	AnonymousID   string `json:"anonymousId,omitempty"`
	Username      string `json:"username,omitempty"`
	Task          string `json:"task,omitempty"`
	Type          string `json:"type"`
	Duration      int    `json:"duration"`
	TimeRemaining int    `json:"timeRemaining"`
	StartedAt     string `json:"startedAt,omitempty"`
}

// StoreClient is the fixed HTTP contract to the persistent store. The
// store itself lives in the main web application; this process only
// reads the active-session list and writes system chat messages.
type StoreClient interface {
	ActiveSessions(ctx context.Context) ([]StoreSession, error)
	PersistChatMessage(ctx context.Context, msg ChatMessage) error
}

type httpStore struct {
	baseURL string
	client  *http.Client
}

func NewHTTPStore(baseURL string) StoreClient {
	return &httpStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *httpStore) ActiveSessions(ctx context.Context) ([]StoreSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/active-sessions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("active-sessions: unexpected status %d", resp.StatusCode)
	}
	var sessions []StoreSession
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("active-sessions: decode: %w", err)
	}
	return sessions, nil
}

func (s *httpStore) PersistChatMessage(ctx context.Context, msg ChatMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat-messages: unexpected status %d", resp.StatusCode)
	}
	return nil
}
