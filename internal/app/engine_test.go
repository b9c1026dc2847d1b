package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
	"github.com/pion/webrtc/v4"
)

var validOffer = strings.Join([]string{
	"v=0",
	"o=- 123 2 IN IP4 127.0.0.1",
	"s=-",
	"c=IN IP4 0.0.0.0",
	"t=0 0",
	"m=video 9 UDP/TLS/RTP/SAVPF 96",
	"a=rtpmap:96 H264/90000",
	"",
}, "\r\n")

// recorder keeps the order of interesting calls across fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeConn struct {
	rec *recorder

	mu          sync.Mutex
	closed      bool
	answerErr   error
	onConnected func()
	onClosed    func()
}

func (f *fakeConn) Start(ctx context.Context) error { return nil }

func (f *fakeConn) ApplyOfferAndCreateAnswer(offerSDP string) (string, error) {
	if f.rec != nil {
		f.rec.add("answer")
	}
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return "answer-sdp", nil
}

func (f *fakeConn) RequestKeyframe(uint32) error { return nil }

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) OnConnected(fn func()) { f.onConnected = fn }
func (f *fakeConn) OnClosed(fn func())    { f.onClosed = fn }
func (f *fakeConn) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

type fakeDialer struct {
	rec     *recorder
	dialErr error

	mu   sync.Mutex
	last *fakeConn
}

func (f *fakeDialer) Dial(sid domain.SessionID) (core.MediaConnection, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	c := &fakeConn{rec: f.rec}
	f.mu.Lock()
	f.last = c
	f.mu.Unlock()
	return c, nil
}

type fakeSink struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeSink) WriteVideo(uint32, []byte) error { return nil }

func (f *fakeSink) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakeOpener struct {
	rec     *recorder
	openErr error

	mu       sync.Mutex
	opened   int
	released []string
	sink     *fakeSink
}

func (f *fakeOpener) Open(ctx context.Context, streamID domain.StreamID) (*domain.IngestHandle, core.MediaSink, error) {
	if f.rec != nil {
		f.rec.add("open")
	}
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	sink := &fakeSink{}
	f.mu.Lock()
	f.opened++
	f.sink = sink
	f.mu.Unlock()
	return &domain.IngestHandle{UpstreamID: "up-" + string(streamID), IngestURL: "rtmp://x/app", StreamKey: "sk"}, sink, nil
}

func (f *fakeOpener) Close(ctx context.Context, h *domain.IngestHandle) error {
	f.mu.Lock()
	f.released = append(f.released, h.UpstreamID)
	f.mu.Unlock()
	return nil
}

func newTestEngine(rec *recorder) (*Engine, *fakeDialer, *fakeOpener) {
	dialer := &fakeDialer{rec: rec}
	opener := &fakeOpener{rec: rec}
	eng := &Engine{
		Registry: NewRegistry(),
		Dialer:   dialer,
		Egress:   opener,
	}
	return eng, dialer, opener
}

// eventually polls cond for up to a second; egress setup is asynchronous.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNegotiate_emptyOffer(t *testing.T) {
	eng, _, _ := newTestEngine(nil)
	_, _, err := eng.Negotiate(context.Background(), "s1", "")
	if !errors.Is(err, core.ErrInvalidOffer) {
		t.Fatalf("expected ErrInvalidOffer, got %v", err)
	}
	if eng.Registry.Len() != 0 {
		t.Errorf("registry size = %d after rejected offer, want 0", eng.Registry.Len())
	}
}

func TestNegotiate_malformedOffer(t *testing.T) {
	eng, _, _ := newTestEngine(nil)
	_, _, err := eng.Negotiate(context.Background(), "s1", "not sdp at all")
	if !errors.Is(err, core.ErrInvalidOffer) {
		t.Fatalf("expected ErrInvalidOffer, got %v", err)
	}
	if eng.Registry.Len() != 0 {
		t.Errorf("registry size = %d after rejected offer, want 0", eng.Registry.Len())
	}
}

func TestNegotiate_answerBeforeEgress(t *testing.T) {
	rec := &recorder{}
	eng, _, opener := newTestEngine(rec)

	sid, answer, err := eng.Negotiate(context.Background(), "s1", validOffer)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if answer != "answer-sdp" {
		t.Errorf("answer = %q", answer)
	}
	eventually(t, func() bool {
		opener.mu.Lock()
		defer opener.mu.Unlock()
		return opener.opened == 1
	}, "egress never opened")

	calls := rec.snapshot()
	if len(calls) < 2 || calls[0] != "answer" || calls[1] != "open" {
		t.Errorf("call order = %v, want answer before open", calls)
	}

	sess, ok := eng.Registry.Get(sid)
	if !ok {
		t.Fatal("session missing after negotiate")
	}
	if sess.State() != domain.StateNegotiating {
		t.Errorf("state = %s, want negotiating", sess.State())
	}
}

func TestNegotiate_dialFailure(t *testing.T) {
	eng, dialer, _ := newTestEngine(nil)
	dialer.dialErr = errors.New("no pc")

	_, _, err := eng.Negotiate(context.Background(), "s1", validOffer)
	var nerr *core.NegotiationError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NegotiationError, got %v", err)
	}
	if eng.Registry.Len() != 0 {
		t.Errorf("registry size = %d, want 0", eng.Registry.Len())
	}
}

func TestNegotiate_providerFailureReachesFailed(t *testing.T) {
	eng, dialer, opener := newTestEngine(nil)
	opener.openErr = &core.ProviderError{Status: 401, Msg: "bad key"}

	sid, _, err := eng.Negotiate(context.Background(), "s1", validOffer)
	if err != nil {
		t.Fatalf("Negotiate should still return the answer, got %v", err)
	}
	sess, ok := eng.Registry.Get(sid)
	if !ok {
		t.Fatal("session missing right after negotiate")
	}

	// The background failure must drive the session to failed and then
	// through teardown out of the registry.
	eventually(t, func() bool {
		_, present := eng.Registry.Get(sid)
		return !present
	}, "session never torn down after provider failure")

	if sess.State() != domain.StateClosed {
		t.Errorf("state = %s, want closed after teardown", sess.State())
	}
	dialer.mu.Lock()
	pc := dialer.last
	dialer.mu.Unlock()
	if !pc.isClosed() {
		t.Error("peer connection left open after provider failure")
	}
}

func TestStop_idempotent(t *testing.T) {
	eng, _, opener := newTestEngine(nil)

	sid, _, err := eng.Negotiate(context.Background(), "s1", validOffer)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	eventually(t, func() bool {
		opener.mu.Lock()
		defer opener.mu.Unlock()
		return opener.opened == 1
	}, "egress never opened")

	eng.Stop(sid)
	if _, ok := eng.Registry.Get(sid); ok {
		t.Fatal("session still registered after stop")
	}

	// Second stop and stop of a never-created id are silent no-ops.
	eng.Stop(sid)
	eng.Stop("never-created")

	opener.mu.Lock()
	released := len(opener.released)
	sink := opener.sink
	opener.mu.Unlock()
	if released != 1 {
		t.Errorf("upstream released %d times, want exactly 1", released)
	}
	sink.mu.Lock()
	sinkClosed := sink.closed
	sink.mu.Unlock()
	if !sinkClosed {
		t.Error("sink left open after stop")
	}
}

func TestStop_beforeEgressCompletes(t *testing.T) {
	eng, _, opener := newTestEngine(nil)

	sid, _, err := eng.Negotiate(context.Background(), "s1", validOffer)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	eng.Stop(sid)

	// Whichever way the race went, the upstream stream must end up
	// released and the sink closed.
	eventually(t, func() bool {
		opener.mu.Lock()
		defer opener.mu.Unlock()
		if opener.opened == 0 {
			return len(opener.released) == 0
		}
		return len(opener.released) == 1 && opener.sink != nil
	}, "egress resources leaked across stop race")
}

func TestStateMonotonicity_closedIsTerminal(t *testing.T) {
	eng, _, _ := newTestEngine(nil)

	sid, _, err := eng.Negotiate(context.Background(), "s1", validOffer)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	sess, _ := eng.Registry.Get(sid)
	eng.Stop(sid)

	if sess.State() != domain.StateClosed {
		t.Fatalf("state = %s, want closed", sess.State())
	}
	for _, to := range []domain.State{domain.StateNegotiating, domain.StateConnected, domain.StateFailed} {
		if sess.Transition(to) {
			t.Errorf("transition to %s applied after closed", to)
		}
	}
	if sess.State() != domain.StateClosed {
		t.Errorf("state moved to %s after closed", sess.State())
	}
}

func TestConnectionCallbacks(t *testing.T) {
	eng, dialer, _ := newTestEngine(nil)

	sid, _, err := eng.Negotiate(context.Background(), "s1", validOffer)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	dialer.mu.Lock()
	pc := dialer.last
	dialer.mu.Unlock()

	pc.onConnected()
	sess, _ := eng.Registry.Get(sid)
	if sess.State() != domain.StateConnected {
		t.Fatalf("state = %s after connect callback, want connected", sess.State())
	}

	pc.onClosed()
	eventually(t, func() bool {
		_, present := eng.Registry.Get(sid)
		return !present
	}, "session never evicted after disconnect callback")
	if sess.State() != domain.StateClosed {
		t.Errorf("state = %s, want closed", sess.State())
	}
}
