// Package egress combines the provider API client and the RTMP publisher
// into the single opener the engine works against: one call yields an
// upstream stream plus a live media sink, or nothing at all.
package egress

import (
	"context"
	"time"

	"github.com/dkeye/Beam/internal/adapters/provider"
	"github.com/dkeye/Beam/internal/adapters/rtmp"
	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/rs/zerolog/log"
)

type Adapter struct {
	API         *provider.Client
	DialTimeout time.Duration
}

// Open creates the upstream stream and dials its RTMP ingest. If the dial
// fails after the provider call succeeded, the upstream stream is deleted
// here so callers never have to know what was partially allocated.
func (a *Adapter) Open(ctx context.Context, streamID domain.StreamID) (*domain.IngestHandle, core.MediaSink, error) {
	handle, err := a.API.Open(ctx, streamID)
	if err != nil {
		return nil, nil, err
	}

	sink, err := rtmp.DialPublish(handle.IngestURL, handle.StreamKey, a.DialTimeout)
	if err != nil {
		log.Error().Err(err).
			Str("module", "egress").
			Str("stream", string(streamID)).
			Str("upstream", handle.UpstreamID).
			Msg("ingest dial failed, releasing upstream stream")
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := a.API.Close(cleanupCtx, handle); cerr != nil {
			log.Error().Err(cerr).Str("module", "egress").Str("upstream", handle.UpstreamID).Msg("upstream cleanup failed")
		}
		return nil, nil, err
	}

	return handle, sink, nil
}

func (a *Adapter) Close(ctx context.Context, handle *domain.IngestHandle) error {
	return a.API.Close(ctx, handle)
}
