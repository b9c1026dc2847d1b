package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means a required secret or API key is absent. An
	// operator problem, never retried automatically.
	ErrNotConfigured = errors.New("required secret not configured")

	// ErrInvalidOffer means the client sent an empty or malformed SDP offer.
	ErrInvalidOffer = errors.New("invalid or empty SDP offer")

	// ErrSessionNotFound means the session id is absent or already closed.
	ErrSessionNotFound = errors.New("session not found")
)

// ProviderError is a rejection or timeout from the live-video provider API.
// Status is the upstream HTTP status, or 0 for transport-level failures.
type ProviderError struct {
	Status int
	Msg    string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider returned %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("provider unreachable: %s", e.Msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NegotiationError is a local peer-connection or ICE failure during
// offer/answer handling.
type NegotiationError struct {
	Stage string
	Err   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed at %s: %v", e.Stage, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
