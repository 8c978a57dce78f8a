package main

import "encoding/json"

// Envelope is the wire format in both directions: an event name plus
// an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	evJoinPresence      = "join-presence"
	evSessionStart      = "session-start"
	evSessionSync       = "session-sync"
	evSessionPause      = "session-pause"
	evSessionEnd        = "session-end"
	evTimerTick         = "timer-tick"
	evChatSend          = "chat-send"
	evChatTyping        = "chat-typing"
	evGetActiveSessions = "get-active-sessions"
	evGetOnlineUsers    = "get-online-users"
)

// Outbound event names.
const (
	evSessionUpdate = "session-update"
	evOnlineUsers   = "online-users"
	evChatNew       = "chat-new"
	evUserOnline    = "user-online"
)

type JoinPresencePayload struct {
	UserID      string `json:"userId,omitempty"`
	AnonymousID string `json:"anonymousId,omitempty"`
	Username    string `json:"username,omitempty"`
	Token       string `json:"token,omitempty"`
}

type SessionPayload struct {
	ID            string `json:"id"`
	UserID        string `json:"userId,omitempty"`
	AnonymousID   string `json:"anonymousId,omitempty"`
	Username      string `json:"username,omitempty"`
	Task          string `json:"task,omitempty"`
	Type          string `json:"type"`
	Duration      int    `json:"duration"`                // minutes
	TimeRemaining *int   `json:"timeRemaining,omitempty"` // seconds
}

type SessionPausePayload struct {
	SessionID string `json:"sessionId"`
	IsPaused  *bool  `json:"isPaused,omitempty"` // absent means pause
}

type SessionEndPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type TimerTickPayload struct {
	SessionID     string `json:"sessionId"`
	TimeRemaining int    `json:"timeRemaining"` // seconds
}

type ChatSendPayload struct {
	Text string `json:"text"`
}

type ChatTypingPayload struct {
	Username string `json:"username,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

type SessionUpdatePayload struct {
	Sessions []SessionView `json:"sessions"`
}

type UserOnlinePayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
