package app

import (
	"context"
	"time"

	"github.com/dkeye/Beam/internal/domain"
	"github.com/rs/zerolog/log"
)

// Stop tears a session down and evicts it from the registry. Idempotent and
// never errors outward: explicit client stop, the peer-connection failure
// callback and the idle sweep all converge here.
func (e *Engine) Stop(sid domain.SessionID) {
	ent, ok := e.Registry.entry(sid)
	if !ok {
		log.Debug().Str("module", "app.teardown").Str("sid", string(sid)).Msg("stop on absent session")
		return
	}

	media, ingest, sink, cancel, first := ent.takeForStop()
	if !first {
		log.Debug().Str("module", "app.teardown").Str("sid", string(sid)).Msg("stop already ran")
		return
	}

	// Cancels any in-flight provider call and the forwarder loops.
	if cancel != nil {
		cancel()
	}
	if media != nil {
		media.Close()
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Str("module", "app.teardown").Str("sid", string(sid)).Msg("sink close")
		}
	}
	if ingest != nil {
		e.releaseIngest(sid, ingest)
	}

	ent.Session.Transition(domain.StateClosed)
	e.Registry.Remove(sid)
	log.Info().Str("module", "app.teardown").Str("sid", string(sid)).Msg("session torn down")
}

// releaseIngest deletes the upstream stream with its own deadline so
// teardown cannot hang on a slow provider.
func (e *Engine) releaseIngest(sid domain.SessionID, handle *domain.IngestHandle) {
	timeout := e.ReleaseTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := e.Egress.Close(ctx, handle); err != nil {
		log.Error().Err(err).
			Str("module", "app.teardown").
			Str("sid", string(sid)).
			Str("upstream", handle.UpstreamID).
			Msg("upstream release failed")
	}
}
