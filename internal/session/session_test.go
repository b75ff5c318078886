package session

import (
	"bytes"
	"context"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/arledge/webrd/internal/config"
	"github.com/arledge/webrd/internal/protocol"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ControlPassword = "a"
	cfg.MaxFPS = 120 // keep pacing out of the way unless a test wants it
	cfg.MinQuality = 1
	cfg.MaxQuality = 100
	return cfg
}

type testHarness struct {
	client   *msgPipe
	capturer *stubCapturer
	synth    *recordingSynth
	done     chan struct{}
}

func startSession(t *testing.T, cfg *config.Config, capturer *stubCapturer) *testHarness {
	t.Helper()

	client, server := newConnPair()
	synth := &recordingSynth{}
	s := New("test", "pipe", server, cfg, capturer, synth, nil)

	h := &testHarness{
		client:   client,
		capturer: capturer,
		synth:    synth,
		done:     make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(h.done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		client.Close()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("session did not stop")
		}
	})
	return h
}

func (h *testHarness) read(t *testing.T) []byte {
	t.Helper()
	type result struct {
		msg []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := h.client.ReadMessage()
		ch <- result{msg, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read: %v", r.err)
		}
		return r.msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server message")
		return nil
	}
}

func (h *testHarness) login(t *testing.T, password string, wantStatus byte) {
	t.Helper()
	if err := h.client.WriteMessage(protocol.EncodeLogin(password)); err != nil {
		t.Fatalf("send login: %v", err)
	}
	status, err := protocol.DecodeAuthResult(h.read(t))
	if err != nil {
		t.Fatalf("decode auth result: %v", err)
	}
	if status != wantStatus {
		t.Fatalf("auth status 0x%02x, want 0x%02x", status, wantStatus)
	}
}

func (h *testHarness) requestFrame(t *testing.T, w, hgt uint16, q uint8) protocol.FrameResponse {
	t.Helper()
	if err := h.client.WriteMessage(protocol.EncodeFrameRequest(protocol.FrameRequest{ViewportW: w, ViewportH: hgt, Quality: q})); err != nil {
		t.Fatalf("send frame request: %v", err)
	}
	resp, err := protocol.DecodeFrameResponse(h.read(t))
	if err != nil {
		t.Fatalf("decode frame response: %v", err)
	}
	return resp
}

func TestAuthGateRejectsWrongPassword(t *testing.T) {
	capturer := newStubCapturer(640, 480)
	h := startSession(t, testConfig(), capturer)

	h.login(t, "b", protocol.AuthDenied)

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("session should close after failed login")
	}
	if n := h.capturer.captures.Load(); n != 0 {
		t.Fatalf("capture occurred %d times on an unauthenticated session", n)
	}
}

func TestUnauthenticatedFrameRequestIsRejected(t *testing.T) {
	capturer := newStubCapturer(640, 480)
	h := startSession(t, testConfig(), capturer)

	// A frame request is not a valid login message: the 5-byte payload does
	// not match its declared password length.
	msg := protocol.EncodeFrameRequest(protocol.FrameRequest{ViewportW: 640, ViewportH: 480, Quality: 50})
	if err := h.client.WriteMessage(msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("session should close on malformed login")
	}
	if n := h.capturer.captures.Load(); n != 0 {
		t.Fatalf("capture occurred %d times before login", n)
	}
}

func TestFirstFrameIsFull(t *testing.T) {
	h := startSession(t, testConfig(), newStubCapturer(1024, 768))
	h.login(t, "a", protocol.AuthController)

	resp := h.requestFrame(t, 640, 480, 50)
	if resp.Type != protocol.FrameFull {
		t.Fatalf("first frame type 0x%02x, want full", resp.Type)
	}
	if resp.RemoteW != 640 || resp.RemoteH != 480 {
		t.Fatalf("frame dimensions %dx%d, want 640x480", resp.RemoteW, resp.RemoteH)
	}
	img, err := jpeg.Decode(bytes.NewReader(resp.JPEG))
	if err != nil {
		t.Fatalf("frame payload is not a valid JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Fatalf("JPEG dimensions %dx%d, want 640x480", b.Dx(), b.Dy())
	}
}

func TestIdleYieldsEmptiesThenFull(t *testing.T) {
	cfg := testConfig()
	cfg.EmptyStreakLimit = 3
	h := startSession(t, cfg, newStubCapturer(640, 480))
	h.login(t, "a", protocol.AuthController)

	want := []byte{protocol.FrameFull, protocol.FrameEmpty, protocol.FrameEmpty, protocol.FrameFull}
	for i, wantType := range want {
		resp := h.requestFrame(t, 640, 480, 50)
		if resp.Type != wantType {
			t.Fatalf("request %d: frame type 0x%02x, want 0x%02x", i+1, resp.Type, wantType)
		}
	}
}

func TestPartialThenForcedFull(t *testing.T) {
	cfg := testConfig()
	cfg.PartialStreakLimit = 2
	capturer := newStubCapturer(640, 480)
	h := startSession(t, cfg, capturer)
	h.login(t, "a", protocol.AuthController)

	shade := uint8(0)
	nextFrame := func() protocol.FrameResponse {
		shade += 16
		capturer.setPixelBlock(100, 100, 10, color.RGBA{shade, 0, 0, 255})
		return h.requestFrame(t, 640, 480, 50)
	}

	want := []byte{protocol.FrameFull, protocol.FramePartial, protocol.FrameFull, protocol.FramePartial}
	for i, wantType := range want {
		resp := nextFrame()
		if resp.Type != wantType {
			t.Fatalf("request %d: frame type 0x%02x, want 0x%02x", i+1, resp.Type, wantType)
		}
		if resp.Type == protocol.FramePartial {
			if resp.CropX != 100 || resp.CropY != 100 {
				t.Fatalf("request %d: crop at %d,%d, want 100,100", i+1, resp.CropX, resp.CropY)
			}
			img, err := jpeg.Decode(bytes.NewReader(resp.JPEG))
			if err != nil {
				t.Fatalf("request %d: partial payload is not a valid JPEG: %v", i+1, err)
			}
			if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
				t.Fatalf("request %d: partial JPEG %dx%d, want 10x10", i+1, b.Dx(), b.Dy())
			}
		}
	}
}

func TestViewportChangeForcesFull(t *testing.T) {
	h := startSession(t, testConfig(), newStubCapturer(1024, 768))
	h.login(t, "a", protocol.AuthController)

	if resp := h.requestFrame(t, 640, 480, 50); resp.Type != protocol.FrameFull {
		t.Fatalf("first frame type 0x%02x, want full", resp.Type)
	}
	resp := h.requestFrame(t, 800, 600, 50)
	if resp.Type != protocol.FrameFull {
		t.Fatalf("frame after viewport change type 0x%02x, want full", resp.Type)
	}
	if resp.RemoteW != 800 || resp.RemoteH != 600 {
		t.Fatalf("frame dimensions %dx%d, want 800x600", resp.RemoteW, resp.RemoteH)
	}
}

func TestViewerInputIsIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.ViewPassword = "v"
	h := startSession(t, cfg, newStubCapturer(640, 480))
	h.login(t, "v", protocol.AuthViewer)

	// Negotiate a viewport first so the drop is attributable to the role.
	h.requestFrame(t, 640, 480, 50)

	batch, err := protocol.EncodeInputBatch([]protocol.InputEvent{
		{Kind: protocol.EventMouseDown, X: 10, Y: 10, Button: protocol.ButtonLeft},
	})
	if err != nil {
		t.Fatalf("encode batch: %v", err)
	}
	if err := h.client.WriteMessage(batch); err != nil {
		t.Fatalf("send batch: %v", err)
	}

	// A following frame exchange proves the batch was consumed.
	h.requestFrame(t, 640, 480, 50)

	if calls := h.synth.Calls(); len(calls) != 0 {
		t.Fatalf("synthesizer received %d calls from a viewer: %v", len(calls), calls)
	}
	select {
	case <-h.done:
		t.Fatal("viewer session should remain open after input")
	default:
	}
}

func TestControllerInputIsDispatched(t *testing.T) {
	h := startSession(t, testConfig(), newStubCapturer(1280, 960))
	h.login(t, "a", protocol.AuthController)
	h.requestFrame(t, 640, 480, 50)

	batch, err := protocol.EncodeInputBatch([]protocol.InputEvent{
		{Kind: protocol.EventMouseMove, X: 320, Y: 240},
		{Kind: protocol.EventKeyDown, Key: "Return"},
	})
	if err != nil {
		t.Fatalf("encode batch: %v", err)
	}
	if err := h.client.WriteMessage(batch); err != nil {
		t.Fatalf("send batch: %v", err)
	}
	h.requestFrame(t, 640, 480, 50)

	calls := h.synth.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 synthesizer calls, got %v", calls)
	}
	// Viewport 640x480 scales to the 1280x960 display.
	if calls[0] != "move 640,480" {
		t.Fatalf("unexpected scaled move: %s", calls[0])
	}
	if calls[1] != "keydown Return" {
		t.Fatalf("unexpected key call: %s", calls[1])
	}
}

func TestMalformedPacketClosesSession(t *testing.T) {
	h := startSession(t, testConfig(), newStubCapturer(640, 480))
	h.login(t, "a", protocol.AuthController)

	if err := h.client.WriteMessage([]byte{0x7f, 0x00}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("session should close on an unknown packet tag")
	}
}

func TestCaptureErrorYieldsEmptyFrame(t *testing.T) {
	capturer := newStubCapturer(640, 480)
	h := startSession(t, testConfig(), capturer)
	h.login(t, "a", protocol.AuthController)

	capturer.mu.Lock()
	capturer.err = errPipeClosed // any error will do
	capturer.mu.Unlock()

	resp := h.requestFrame(t, 640, 480, 50)
	if resp.Type != protocol.FrameEmpty {
		t.Fatalf("frame type 0x%02x after capture failure, want empty", resp.Type)
	}

	// The session recovers once capture works again.
	capturer.mu.Lock()
	capturer.err = nil
	capturer.mu.Unlock()
	if resp := h.requestFrame(t, 640, 480, 50); resp.Type != protocol.FrameFull {
		t.Fatalf("frame type 0x%02x after recovery, want full", resp.Type)
	}
}
