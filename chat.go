package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Chat message kinds.
const (
	ChatKindUser   = "user"
	ChatKindSystem = "system"
)

// System-message actions derived from session lifecycle transitions.
const (
	ActionSessionStart    = "session_start"
	ActionSessionComplete = "session_complete"
)

// ChatMessage is one relayed chat entry. System messages carry an
// Action instead of free text and are additionally persisted through
// the store.
type ChatMessage struct {
	ID          string `json:"id"`
	UserID      string `json:"userId,omitempty"`
	AnonymousID string `json:"anonymousId,omitempty"`
	Username    string `json:"username,omitempty"`
	Text        string `json:"text,omitempty"`
	Action      string `json:"action,omitempty"`
	Kind        string `json:"kind"`
	Timestamp   int64  `json:"timestamp"`
}

// ChatRelay keeps the most recent messages in a bounded ring. Older
// history stays queryable through the persistent store only.
type ChatRelay struct {
	messages []ChatMessage
	cap      int
	maxLen   int
	now      func() time.Time
}

func NewChatRelay(capacity, maxLen int) *ChatRelay {
	return &ChatRelay{
		cap:    capacity,
		maxLen: maxLen,
		now:    time.Now,
	}
}

// Append validates and stores a user message. Empty or oversized text
// is dropped at the boundary.
func (c *ChatRelay) Append(userID, anonymousID, username, text string) (ChatMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > c.maxLen {
		return ChatMessage{}, false
	}
	msg := ChatMessage{
		ID:          uuid.NewString(),
		UserID:      userID,
		AnonymousID: anonymousID,
		Username:    username,
		Text:        text,
		Kind:        ChatKindUser,
		Timestamp:   c.now().UnixMilli(),
	}
	c.push(msg)
	return msg, true
}

// AppendSystem stores a lifecycle-derived system message.
func (c *ChatRelay) AppendSystem(userID, username, action, text string) ChatMessage {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		Text:      text,
		Action:    action,
		Kind:      ChatKindSystem,
		Timestamp: c.now().UnixMilli(),
	}
	c.push(msg)
	return msg
}

func (c *ChatRelay) push(msg ChatMessage) {
	c.messages = append(c.messages, msg)
	if len(c.messages) > c.cap {
		c.messages = c.messages[len(c.messages)-c.cap:]
	}
}

func (c *ChatRelay) Len() int { return len(c.messages) }

func (c *ChatRelay) Reset() { c.messages = nil }

// startMessage words a session-start system message per session kind.
func startMessage(username, kind, task string) string {
	name := username
	if name == "" {
		name = "Someone"
	}
	switch kind {
	case KindShortBreak:
		return name + " started a short break"
	case KindLongBreak:
		return name + " started a long break"
	case KindTimeTracking:
		if task != "" {
			return name + " started tracking time on \"" + task + "\""
		}
		return name + " started tracking time"
	default:
		if task != "" {
			return name + " started working on \"" + task + "\""
		}
		return name + " started a focus session"
	}
}

// completeMessage words the completion message for a finished WORK
// session.
func completeMessage(username, task string, durationMin int) string {
	name := username
	if name == "" {
		name = "Someone"
	}
	what := "a focus session"
	if task != "" {
		what = "\"" + task + "\""
	}
	return fmt.Sprintf("%s completed %s (%d min)", name, what, durationMin)
}
