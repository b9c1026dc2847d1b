package core

import (
	"context"

	"github.com/dkeye/Beam/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaConnection abstracts the browser-facing peer connection.
// Owned by the adapter; the engine must Close() it exactly once via teardown.
type MediaConnection interface {
	// Start registers state-change and track handlers. Must be called before
	// ApplyOfferAndCreateAnswer.
	Start(ctx context.Context) error
	// ApplyOfferAndCreateAnswer sets the remote offer and returns the local
	// answer SDP after ICE gathering completes.
	ApplyOfferAndCreateAnswer(offerSDP string) (string, error)
	// RequestKeyframe asks the publisher for an IDR via PLI.
	RequestKeyframe(mediaSSRC uint32) error
	Close()

	OnConnected(func())
	OnClosed(func())
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
}

// MediaDialer builds a fresh MediaConnection for a session.
type MediaDialer interface {
	Dial(sid domain.SessionID) (MediaConnection, error)
}

// MediaSink accepts depacketized media and forwards it to the ingest.
type MediaSink interface {
	// WriteVideo takes one H.264 access unit in Annex-B form with a
	// millisecond timestamp relative to stream start.
	WriteVideo(timestampMs uint32, annexB []byte) error
	Close() error
}

// EgressOpener opens and releases the provider-side ingest for a stream.
// Open must clean up anything it allocated itself when it fails partway.
type EgressOpener interface {
	Open(ctx context.Context, streamID domain.StreamID) (*domain.IngestHandle, MediaSink, error)
	Close(ctx context.Context, handle *domain.IngestHandle) error
}
