// Package domain contains entity without logic, just meta-data
package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	SessionID string
	StreamID  string
)

// State is the lifecycle phase of a publish session.
type State string

const (
	StateNegotiating State = "negotiating"
	StateConnected   State = "connected"
	StateFailed      State = "failed"
	StateClosed      State = "closed"
)

// Session represents one outbound live-publish attempt. Transport handles
// (peer connection, ingest) live in the registry entry, not here.
type Session struct {
	ID       SessionID
	StreamID StreamID

	mu           sync.Mutex
	state        State
	createdAt    time.Time
	lastActivity time.Time
}

// NewSession avoids raw literals in adapters and keeps construction obvious.
func NewSession(streamID StreamID) *Session {
	now := time.Now()
	return &Session{
		ID:           SessionID(uuid.NewString()),
		StreamID:     streamID,
		state:        StateNegotiating,
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to a new state and reports whether the move
// was applied. StateClosed is terminal: once reached, every further
// transition is refused.
func (s *Session) Transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	if s.state == to {
		return true
	}
	s.state = to
	s.lastActivity = time.Now()
	return true
}

// Touch refreshes the activity timestamp used by the idle sweep.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IdleFor returns how long the session has gone without activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}
