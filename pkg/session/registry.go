// Package session tracks active conversations: an in-memory registry with
// idle eviction, a cron-driven sweeper, and JSONL transcript persistence.
package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultIdleTimeout is how long a session may stay inactive before the
// sweep evicts it.
const DefaultIdleTimeout = 30 * time.Minute

// Record is the bookkeeping for one active conversation.
type Record struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
}

// HistoryClearer discards a session's conversation history; satisfied by
// *model.Gateway.
type HistoryClearer interface {
	ClearContext(sessionID string)
}

// Registry owns the session records. It is the only component that creates
// or evicts them.
type Registry struct {
	mu          sync.Mutex
	records     map[string]*Record
	idleTimeout time.Duration
	history     HistoryClearer
}

// NewRegistry creates a registry. history may be nil when no conversation
// state needs clearing on eviction.
func NewRegistry(idleTimeout time.Duration, history HistoryClearer) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		records:     make(map[string]*Record),
		idleTimeout: idleTimeout,
		history:     history,
	}
}

// Touch creates the record on first use and bumps activity and message
// count on every call. LastActivity never moves backwards.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rec, ok := r.records[sessionID]
	if !ok {
		r.records[sessionID] = &Record{
			ID:           sessionID,
			CreatedAt:    now,
			LastActivity: now,
			MessageCount: 1,
		}
		log.Debug().Str("session_id", sessionID).Msg("Session created")
		return
	}

	rec.MessageCount++
	if now.After(rec.LastActivity) {
		rec.LastActivity = now
	}
}

// Get returns a copy of a session record.
func (r *Registry) Get(sessionID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sessionID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Clear evicts one session and clears its conversation history.
func (r *Registry) Clear(sessionID string) {
	r.mu.Lock()
	_, existed := r.records[sessionID]
	delete(r.records, sessionID)
	r.mu.Unlock()

	if r.history != nil {
		r.history.ClearContext(sessionID)
	}
	if existed {
		log.Info().Str("session_id", sessionID).Msg("Session cleared")
	}
}

// Sweep evicts every session idle for longer than the threshold and clears
// its history. Returns the number evicted.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var evicted []string
	for id, rec := range r.records {
		if rec.LastActivity.Before(cutoff) {
			evicted = append(evicted, id)
			delete(r.records, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		if r.history != nil {
			r.history.ClearContext(id)
		}
		log.Info().Str("session_id", id).Msg("Idle session evicted")
	}
	return len(evicted)
}
