package rtc

import (
	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// DefaultICEURLs is the fallback when no ICE servers are configured.
func DefaultICEURLs() []string {
	return []string{"stun:stun.l.google.com:19302"}
}

// Dialer builds peer connections from one shared webrtc.API so codec and
// interceptor registration happens once per process.
type Dialer struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewDialer(iceURLs []string) (*Dialer, error) {
	if len(iceURLs) == 0 {
		iceURLs = DefaultICEURLs()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(reg))

	return &Dialer{
		api: api,
		cfg: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: iceURLs}},
		},
	}, nil
}

func (d *Dialer) Dial(sid domain.SessionID) (core.MediaConnection, error) {
	pc, err := d.api.NewPeerConnection(d.cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{pc: pc, sid: sid}, nil
}
