package domain

// IngestHandle is whatever the egress adapter opened with the live-video
// provider. Opaque to everyone but the adapter that created it.
type IngestHandle struct {
	UpstreamID string
	IngestURL  string
	StreamKey  string
	PlaybackID string
}
