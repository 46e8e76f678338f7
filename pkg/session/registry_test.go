package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	cleared []string
}

func (f *fakeHistory) ClearContext(sessionID string) {
	f.cleared = append(f.cleared, sessionID)
}

func TestRegistry_TouchCreatesAndIncrements(t *testing.T) {
	r := NewRegistry(time.Hour, nil)

	r.Touch("s1")
	rec, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, 1, rec.MessageCount)
	assert.False(t, rec.CreatedAt.IsZero())

	r.Touch("s1")
	r.Touch("s1")
	rec, _ = r.Get("s1")
	assert.Equal(t, 3, rec.MessageCount)
	assert.False(t, rec.LastActivity.Before(rec.CreatedAt))

	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry(time.Hour, nil)

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry(time.Hour, nil)
	r.Touch("s1")

	rec, _ := r.Get("s1")
	rec.MessageCount = 999

	fresh, _ := r.Get("s1")
	assert.Equal(t, 1, fresh.MessageCount)
}

func TestRegistry_ClearEvictsAndClearsHistory(t *testing.T) {
	h := &fakeHistory{}
	r := NewRegistry(time.Hour, h)
	r.Touch("s1")

	r.Clear("s1")
	_, ok := r.Get("s1")
	assert.False(t, ok)
	assert.Equal(t, []string{"s1"}, h.cleared)

	// Clearing an unknown session still clears any stray history.
	r.Clear("ghost")
	assert.Equal(t, []string{"s1", "ghost"}, h.cleared)
}

func TestRegistry_SweepEvictsIdleSessions(t *testing.T) {
	h := &fakeHistory{}
	r := NewRegistry(10*time.Minute, h)

	r.Touch("idle")
	r.Touch("active")

	// Age one session past the idle threshold.
	r.mu.Lock()
	r.records["idle"].LastActivity = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	evicted := r.Sweep()
	assert.Equal(t, 1, evicted)

	_, ok := r.Get("idle")
	assert.False(t, ok)
	_, ok = r.Get("active")
	assert.True(t, ok)
	assert.Equal(t, []string{"idle"}, h.cleared)

	// A second sweep finds nothing to do.
	assert.Zero(t, r.Sweep())
}

func TestRegistry_DefaultIdleTimeout(t *testing.T) {
	r := NewRegistry(0, nil)
	assert.Equal(t, DefaultIdleTimeout, r.idleTimeout)
}
