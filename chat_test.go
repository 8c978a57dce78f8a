package main

import (
	"strings"
	"testing"
)

func TestChatRelay_RingNeverExceedsCap(t *testing.T) {
	c := NewChatRelay(5, 500)
	for i := 0; i < 42; i++ {
		if _, ok := c.Append("u1", "", "ann", "hello"); !ok {
			t.Fatal("valid message rejected")
		}
	}
	if c.Len() != 5 {
		t.Errorf("ring must stay at cap, got %d", c.Len())
	}
	if c.messages[0].Text != "hello" {
		t.Errorf("unexpected ring content: %+v", c.messages[0])
	}
}

func TestChatRelay_RingEvictsOldest(t *testing.T) {
	c := NewChatRelay(3, 500)
	for _, text := range []string{"one", "two", "three", "four"} {
		c.Append("u1", "", "ann", text)
	}
	if got := c.messages[0].Text; got != "two" {
		t.Errorf("oldest entry must be evicted first, front is %q", got)
	}
}

func TestChatRelay_RejectsMalformedText(t *testing.T) {
	c := NewChatRelay(10, 20)
	if _, ok := c.Append("u1", "", "ann", "   "); ok {
		t.Error("whitespace-only text must be dropped")
	}
	if _, ok := c.Append("u1", "", "ann", strings.Repeat("x", 21)); ok {
		t.Error("oversized text must be dropped")
	}
	if c.Len() != 0 {
		t.Errorf("rejected messages must not be buffered, got %d", c.Len())
	}
}

func TestChatRelay_TrimsAndAttributes(t *testing.T) {
	c := NewChatRelay(10, 500)
	msg, ok := c.Append("u1", "", "ann", "  hi there  ")
	if !ok {
		t.Fatal("valid message rejected")
	}
	if msg.Text != "hi there" || msg.Username != "ann" || msg.Kind != ChatKindUser {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.ID == "" {
		t.Error("message must get an id")
	}
}

func TestStartMessageWording(t *testing.T) {
	if got := startMessage("ann", KindWork, "report"); !strings.Contains(got, "report") {
		t.Errorf("work start must mention the task, got %q", got)
	}
	if got := startMessage("ann", KindShortBreak, ""); !strings.Contains(got, "short break") {
		t.Errorf("unexpected short-break wording %q", got)
	}
	if got := startMessage("", KindLongBreak, ""); !strings.HasPrefix(got, "Someone") {
		t.Errorf("nameless start must fall back, got %q", got)
	}
}

func TestCompleteMessageWording(t *testing.T) {
	got := completeMessage("ann", "report", 25)
	if !strings.Contains(got, "report") || !strings.Contains(got, "25 min") {
		t.Errorf("completion must carry task and duration, got %q", got)
	}
}
