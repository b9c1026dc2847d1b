// Package rtmp pushes a publish session's media to the provider's
// RTMP ingest endpoint.
package rtmp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
	gortmp "github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

const (
	DefaultDialTimeout = 10 * time.Second

	chunkSize          = 128
	videoChunkStreamID = 6
)

var ErrPublisherClosed = errors.New("rtmp publisher closed")

// Publisher is a single-stream RTMP client session toward one ingest URL.
// Satisfies core.MediaSink.
type Publisher struct {
	conn   *gortmp.ClientConn
	stream *gortmp.Stream

	mu         sync.Mutex
	closed     bool
	sps, pps   []byte
	configSent bool
	keySeen    bool
}

// DialPublish dials the ingest URL and runs the connect/createStream/publish
// handshake with the stream key. Anything it allocated is released before an
// error return.
func DialPublish(ingestURL, streamKey string, timeout time.Duration) (*Publisher, error) {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	addr, app, tcURL, err := parseIngestURL(ingestURL)
	if err != nil {
		return nil, err
	}

	// go-rtmp logs through logrus; keep zerolog the only voice.
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	conn, err := gortmp.DialWithDialer(
		&net.Dialer{Timeout: timeout},
		"rtmp", addr,
		&gortmp.ConnConfig{Logger: quiet},
	)
	if err != nil {
		return nil, fmt.Errorf("rtmp dial %s: %w", addr, err)
	}

	if err := conn.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      app,
			Type:     "nonprivate",
			FlashVer: "FMLE/3.0",
			TCURL:    tcURL,
		},
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmp connect app %q: %w", app, err)
	}

	stream, err := conn.CreateStream(nil, chunkSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmp create stream: %w", err)
	}

	if err := stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: streamKey,
		PublishingType: "live",
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtmp publish: %w", err)
	}

	log.Info().Str("module", "rtmp").Str("addr", addr).Str("app", app).Msg("publishing to ingest")
	return &Publisher{conn: conn, stream: stream}, nil
}

// WriteVideo takes one H.264 access unit in Annex-B form. The first call
// carrying SPS/PPS emits the AVC sequence header; inter frames before the
// first keyframe are dropped so the provider never decodes from a torn GOP.
func (p *Publisher) WriteVideo(timestampMs uint32, annexB []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}

	var frame [][]byte
	keyframe := false
	for _, nalu := range splitAnnexB(annexB) {
		switch naluType(nalu) {
		case naluTypeSPS:
			// The decoder config needs the profile/level bytes; a truncated
			// SPS off the wire is dropped, not cached.
			if len(nalu) >= 4 {
				p.sps = append([]byte(nil), nalu...)
			}
		case naluTypePPS:
			p.pps = append([]byte(nil), nalu...)
		case naluTypeAUD:
			// FLV has no use for access unit delimiters.
		case naluTypeIDR:
			keyframe = true
			frame = append(frame, nalu)
		default:
			frame = append(frame, nalu)
		}
	}

	if !p.configSent {
		if p.sps == nil || p.pps == nil {
			return nil
		}
		body := flvVideoTagBody(true, avcPacketSeqHeader, buildAVCConfig(p.sps, p.pps))
		if err := p.stream.Write(videoChunkStreamID, timestampMs, &rtmpmsg.VideoMessage{Payload: bytes.NewReader(body)}); err != nil {
			return fmt.Errorf("rtmp write sequence header: %w", err)
		}
		p.configSent = true
	}

	if len(frame) == 0 {
		return nil
	}
	if !p.keySeen && !keyframe {
		return nil
	}
	p.keySeen = true

	body := flvVideoTagBody(keyframe, avcPacketNALU, toAVCC(frame))
	if err := p.stream.Write(videoChunkStreamID, timestampMs, &rtmpmsg.VideoMessage{Payload: bytes.NewReader(body)}); err != nil {
		return fmt.Errorf("rtmp write video: %w", err)
	}
	return nil
}

// Close is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

// parseIngestURL splits rtmp://host[:port]/app into a dial address, an
// application name and the tcUrl for the connect command.
func parseIngestURL(raw string) (addr, app, tcURL string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("ingest url %q: %w", raw, err)
	}
	if u.Scheme != "rtmp" {
		return "", "", "", fmt.Errorf("ingest url %q: unsupported scheme %q", raw, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", "", "", fmt.Errorf("ingest url %q: missing host", raw)
	}
	port := u.Port()
	if port == "" {
		port = "1935"
	}
	app = strings.Trim(u.Path, "/")
	if app == "" {
		return "", "", "", fmt.Errorf("ingest url %q: missing application name", raw)
	}
	return net.JoinHostPort(host, port), app, raw, nil
}
