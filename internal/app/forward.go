package app

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// onTrack is called when a new remote media track appears for a session.
// Video is forwarded to the RTMP sink; everything without an FLV mapping is
// drained so RTCP keeps flowing and the session still counts as active.
func (e *Engine) onTrack(ctx context.Context, sid domain.SessionID, mc core.MediaConnection, track *webrtc.TrackRemote) {
	ent, ok := e.Registry.entry(sid)
	if !ok {
		return
	}
	logger := log.With().
		Str("module", "app.forward").
		Str("sid", string(sid)).
		Str("kind", track.Kind().String()).
		Str("mime", track.Codec().MimeType).
		Logger()

	switch track.Kind() {
	case webrtc.RTPCodecTypeVideo:
		if !strings.Contains(strings.ToLower(track.Codec().MimeType), "h264") {
			logger.Warn().Msg("unsupported video codec, draining")
			go drainTrack(ctx, ent.Session, track)
			return
		}
		logger.Info().Msg("starting video forwarder")
		go e.forwardVideo(ctx, ent, mc, track, &logger)
	case webrtc.RTPCodecTypeAudio:
		// Opus has no FLV codec id; re-encoding is not done here.
		logger.Warn().Msg("audio not forwarded to RTMP, draining")
		go drainTrack(ctx, ent.Session, track)
	}
}

// forwardVideo reassembles H.264 access units from RTP and feeds them to
// the egress sink. Blocks until egress is up so no frame is written to a
// half-established ingest.
func (e *Engine) forwardVideo(ctx context.Context, ent *sessionEntry, mc core.MediaConnection, track *webrtc.TrackRemote, logger *zerolog.Logger) {
	select {
	case <-ent.ready:
	case <-ctx.Done():
		return
	}

	ent.mu.Lock()
	sink := ent.sink
	ent.mu.Unlock()
	if sink == nil {
		return
	}

	// The publisher has been sending since before the ingest existed; ask
	// for a fresh IDR so the provider does not wait on a stale GOP.
	if err := mc.RequestKeyframe(uint32(track.SSRC())); err != nil {
		logger.Debug().Err(err).Msg("keyframe request")
	}

	depkt := &codecs.H264Packet{}
	var (
		au       []byte
		baseTS   uint32
		haveBase bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("rtp read")
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		nalus, err := depkt.Unmarshal(pkt.Payload)
		if err != nil {
			logger.Debug().Err(err).Msg("h264 depacketize")
			continue
		}
		if !haveBase {
			baseTS = pkt.Timestamp
			haveBase = true
		}
		au = append(au, nalus...)

		// Marker bit closes the access unit for this timestamp.
		if pkt.Marker && len(au) > 0 {
			tsMs := (pkt.Timestamp - baseTS) / 90
			if err := sink.WriteVideo(tsMs, au); err != nil {
				logger.Error().Err(err).Msg("egress write failed")
				e.fail(ent.Session.ID, err)
				e.Stop(ent.Session.ID)
				return
			}
			au = nil
			ent.Session.Touch()
		}
	}
}

// drainTrack consumes RTP so the peer keeps the track alive, counting reads
// as session activity.
func drainTrack(ctx context.Context, sess *domain.Session, track *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		sess.Touch()
	}
}
