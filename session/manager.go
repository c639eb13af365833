// Package session owns the browser-identity lifecycle: one coherent
// fingerprint used for a bounded number of page scrapes before rotation.
// A fingerprint that never changes across hundreds of requests is a stronger
// bot signal than any single request property, so identities expire on both
// a request count and a wall-clock age.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/fingerprint"
)

// Session is one browser identity plus its usage counters. RequestCount and
// age only grow; rotation replaces the whole value rather than resetting
// fields in place.
type Session struct {
	ID           string
	Fingerprint  fingerprint.Fingerprint
	RequestCount int
	CreatedAt    time.Time
}

// Age returns how long the session has been alive.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Manager serializes all session access. At most one session is current at
// any time; rotation is atomic from the caller's perspective.
type Manager struct {
	mu  sync.Mutex
	cfg config.SessionConfig

	current   *Session
	rotations int

	// now is swapped in tests to drive the age threshold without sleeping.
	now func() time.Time
}

// NewManager builds a Manager with the given rotation thresholds. No session
// exists until the first Current call.
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{cfg: cfg, now: time.Now}
}

// Current returns the active session, creating one on first use.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		m.current = m.newSession()
	}
	return m.current
}

// ShouldRotate reports whether the active session has hit the request-count
// or wall-clock threshold. A nil session never needs rotation; Current will
// mint a fresh one.
func (m *Manager) ShouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return false
	}
	if m.current.RequestCount >= m.cfg.RequestLimit {
		return true
	}
	return m.current.Age(m.now()) >= m.cfg.MaxAge
}

// Rotate discards the current session and installs a freshly generated one.
// Returns the new session.
func (m *Manager) Rotate() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.current
	m.current = m.newSession()
	m.rotations++

	if old != nil {
		slog.Debug("session retired",
			"old_id", old.ID,
			"new_id", m.current.ID,
			"old_requests", old.RequestCount,
			"old_age", m.now().Sub(old.CreatedAt).Round(time.Second),
		)
	}
	return m.current
}

// RecordRequest increments the active session's request counter. Called
// exactly once per page-scrape attempt.
func (m *Manager) RecordRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		m.current = m.newSession()
	}
	m.current.RequestCount++
}

// Rotations returns how many times the manager has rotated since creation.
func (m *Manager) Rotations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotations
}

func (m *Manager) newSession() *Session {
	return &Session{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint.Generate(),
		CreatedAt:   m.now(),
	}
}
