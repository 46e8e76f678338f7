package model

import (
	"sync"
	"time"
)

// DefaultHistoryLimit is the bound on retained messages per session.
const DefaultHistoryLimit = 20

// historyStore holds the bounded conversation history per session. Appends
// truncate from the oldest end, preserving turn order. Sessions are
// independent; callers for the same session are assumed serialized upstream.
type historyStore struct {
	mu       sync.Mutex
	limit    int
	sessions map[string][]Message
}

func newHistoryStore(limit int) *historyStore {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &historyStore{
		limit:    limit,
		sessions: make(map[string][]Message),
	}
}

func (h *historyStore) Append(sessionID, role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := append(h.sessions[sessionID], Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(msgs) > h.limit {
		msgs = msgs[len(msgs)-h.limit:]
	}
	h.sessions[sessionID] = msgs
}

func (h *historyStore) Snapshot(sessionID string) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := h.sessions[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

func (h *historyStore) Clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

func (h *historyStore) Len(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}
