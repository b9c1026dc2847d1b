// Package provider talks to the third-party live-video provider's HTTP API
// to create and release ingest targets for a stream.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

type createStreamRequest struct {
	Name   string `json:"name"`
	Record bool   `json:"record"`
}

type createStreamResponse struct {
	ID         string `json:"id"`
	StreamKey  string `json:"stream_key"`
	IngestURL  string `json:"ingest_url"`
	PlaybackID string `json:"playback_id"`
}

// Open creates (or resolves, the provider dedupes by name) the ingest
// target for streamID. Timeouts and upstream rejections come back as
// *core.ProviderError so the engine can fold them into the failed state.
func (c *Client) Open(ctx context.Context, streamID domain.StreamID) (*domain.IngestHandle, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("provider API key: %w", core.ErrNotConfigured)
	}

	body, err := json.Marshal(createStreamRequest{Name: string(streamID)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/live-streams", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &core.ProviderError{Msg: "create live stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &core.ProviderError{Status: resp.StatusCode, Msg: readErrorBody(resp.Body)}
	}

	var out createStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &core.ProviderError{Msg: "decode create response", Err: err}
	}
	if out.ID == "" || out.StreamKey == "" || out.IngestURL == "" {
		return nil, &core.ProviderError{Status: resp.StatusCode, Msg: "incomplete ingest descriptor"}
	}

	log.Info().
		Str("module", "provider").
		Str("stream", string(streamID)).
		Str("upstream", out.ID).
		Str("playback", out.PlaybackID).
		Msg("ingest target ready")

	return &domain.IngestHandle{
		UpstreamID: out.ID,
		IngestURL:  out.IngestURL,
		StreamKey:  out.StreamKey,
		PlaybackID: out.PlaybackID,
	}, nil
}

// Close deletes the upstream stream. A 404 means it is already gone and is
// not an error.
func (c *Client) Close(ctx context.Context, handle *domain.IngestHandle) error {
	if handle == nil || handle.UpstreamID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/live-streams/"+handle.UpstreamID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &core.ProviderError{Msg: "delete live stream", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &core.ProviderError{Status: resp.StatusCode, Msg: readErrorBody(resp.Body)}
	}
	return nil
}

// readErrorBody keeps a short snippet of the upstream error for logs.
func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no response body"
	}
	return string(b)
}
