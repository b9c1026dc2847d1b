package app

import (
	"context"
	"sync"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/rs/zerolog/log"
)

// sessionEntry binds the session meta-data to the live transport handles.
// Handle fields are guarded by mu so a bind racing teardown never leaks.
type sessionEntry struct {
	Session *domain.Session

	mu      sync.Mutex
	media   core.MediaConnection
	ingest  *domain.IngestHandle
	sink    core.MediaSink
	cancel  context.CancelFunc
	stopped bool

	// ready is closed once egress is up; forwarders block on it.
	ready chan struct{}
}

// bindMedia attaches the peer connection and the session context cancel.
// Returns false if teardown already ran for this entry.
func (e *sessionEntry) bindMedia(mc core.MediaConnection, cancel context.CancelFunc) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.media = mc
	e.cancel = cancel
	return true
}

// bindEgress attaches the provider handle and the RTMP sink, and unblocks
// the forwarders. Returns false if teardown already ran.
func (e *sessionEntry) bindEgress(handle *domain.IngestHandle, sink core.MediaSink) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.ingest = handle
	e.sink = sink
	close(e.ready)
	return true
}

// takeForStop claims the entry for teardown. Only the first caller gets
// first=true together with whatever handles exist; later callers get a no-op.
func (e *sessionEntry) takeForStop() (media core.MediaConnection, ingest *domain.IngestHandle, sink core.MediaSink, cancel context.CancelFunc, first bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, nil, nil, nil, false
	}
	e.stopped = true
	return e.media, e.ingest, e.sink, e.cancel, true
}

// Registry is the single source of truth for live publish sessions.
// Process-lifetime, in-memory only; a restart loses all active sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*sessionEntry),
	}
}

// Create inserts a new session in state negotiating and returns it.
func (r *Registry) Create(streamID domain.StreamID) *domain.Session {
	sess := domain.NewSession(streamID)
	r.mu.Lock()
	r.sessions[sess.ID] = &sessionEntry{
		Session: sess,
		ready:   make(chan struct{}),
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID)).Str("stream", string(streamID)).Msg("created session")
	return sess
}

func (r *Registry) Get(sid domain.SessionID) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) entry(sid domain.SessionID) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	return e, ok
}

// Remove deletes the entry. Removing an absent id is a no-op.
func (r *Registry) Remove(sid domain.SessionID) {
	r.mu.Lock()
	delete(r.sessions, sid)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed session")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current sessions for the idle sweep.
func (r *Registry) Snapshot() []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.Session)
	}
	return out
}
