package app

import (
	"context"
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Engine drives the offer/answer exchange for publish sessions and kicks
// off egress toward the live-video provider.
type Engine struct {
	Registry *Registry
	Dialer   core.MediaDialer
	Egress   core.EgressOpener

	// ReleaseTimeout bounds provider cleanup calls during teardown.
	ReleaseTimeout time.Duration
}

// Negotiate accepts a client SDP offer for streamID, registers a session and
// returns the local answer. Egress setup runs in the background: the answer
// goes back to the client immediately so ICE can start, and a provider
// failure is surfaced through the session state, not this return path.
func (e *Engine) Negotiate(ctx context.Context, streamID domain.StreamID, offerSDP string) (domain.SessionID, string, error) {
	if err := validateOffer(offerSDP); err != nil {
		return "", "", err
	}

	sess := e.Registry.Create(streamID)
	sid := sess.ID

	mc, err := e.Dialer.Dial(sid)
	if err != nil {
		e.Registry.Remove(sid)
		return "", "", &core.NegotiationError{Stage: "peer connection", Err: err}
	}

	// The session outlives the HTTP request that created it.
	sessCtx, cancel := context.WithCancel(context.Background())

	ent, ok := e.Registry.entry(sid)
	if !ok || !ent.bindMedia(mc, cancel) {
		cancel()
		mc.Close()
		return "", "", &core.NegotiationError{Stage: "register", Err: core.ErrSessionNotFound}
	}

	mc.OnConnected(func() {
		if sess.Transition(domain.StateConnected) {
			log.Info().Str("module", "app.engine").Str("sid", string(sid)).Msg("session connected")
		}
	})
	mc.OnClosed(func() {
		if sess.Transition(domain.StateFailed) {
			log.Warn().Str("module", "app.engine").Str("sid", string(sid)).Msg("peer connection lost")
		}
		e.Stop(sid)
	})
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.onTrack(trackCtx, sid, mc, track)
	})

	if err := mc.Start(sessCtx); err != nil {
		e.fail(sid, err)
		e.Stop(sid)
		return "", "", &core.NegotiationError{Stage: "start", Err: err}
	}

	answer, err := mc.ApplyOfferAndCreateAnswer(offerSDP)
	if err != nil {
		e.fail(sid, err)
		e.Stop(sid)
		return "", "", &core.NegotiationError{Stage: "offer/answer", Err: err}
	}

	go e.openEgress(sessCtx, sid, streamID)

	return sid, answer, nil
}

// openEgress runs after the local answer exists, never before.
func (e *Engine) openEgress(ctx context.Context, sid domain.SessionID, streamID domain.StreamID) {
	handle, sink, err := e.Egress.Open(ctx, streamID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.engine").Str("sid", string(sid)).Msg("egress setup failed")
		e.fail(sid, err)
		e.Stop(sid)
		return
	}

	ent, ok := e.Registry.entry(sid)
	if !ok || !ent.bindEgress(handle, sink) {
		// Teardown won the race; release what was just opened.
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Str("module", "app.engine").Str("sid", string(sid)).Msg("sink close after race")
		}
		e.releaseIngest(sid, handle)
		return
	}

	log.Info().
		Str("module", "app.engine").
		Str("sid", string(sid)).
		Str("stream", string(streamID)).
		Str("upstream", handle.UpstreamID).
		Msg("egress ready")
}

// Lookup exposes session meta-data for status queries.
func (e *Engine) Lookup(sid domain.SessionID) (*domain.Session, bool) {
	return e.Registry.Get(sid)
}

func (e *Engine) fail(sid domain.SessionID, err error) {
	sess, ok := e.Registry.Get(sid)
	if !ok {
		return
	}
	if sess.Transition(domain.StateFailed) {
		log.Warn().Err(err).Str("module", "app.engine").Str("sid", string(sid)).Msg("session failed")
	}
}
