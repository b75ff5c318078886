// Package session implements the per-connection protocol state machine:
// login, role gating, and the serve loop that answers each serviced frame
// request with exactly one frame response while input batches are applied
// inline. Requests that arrive before the pending one is serviced replace
// it; a replaced request gets no response of its own.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arledge/webrd/internal/config"
	"github.com/arledge/webrd/internal/desktop"
	"github.com/arledge/webrd/internal/logging"
	"github.com/arledge/webrd/internal/protocol"
	"github.com/arledge/webrd/internal/workerpool"
)

// Role is the session's authorization level.
type Role int

const (
	RoleUnauthenticated Role = iota
	RoleViewer
	RoleController
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleController:
		return "controller"
	}
	return "unauthenticated"
}

// MessageConn is the duplex message transport a session runs on. Each call
// carries exactly one packet; the transport preserves message boundaries
// and ordering.
type MessageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// ErrProtocol wraps a malformed inbound message; the session closes on it.
var ErrProtocol = errors.New("protocol error")

const metricsLogInterval = 30 * time.Second

// Session drives one connected client. Two goroutines share it: the reader
// (inbound packets, input dispatch, request coalescing) and the producer
// (pacing, capture-encode, frame responses). The producer is the only frame
// writer, which also satisfies the transport's single-writer requirement.
type Session struct {
	id       string
	conn     MessageConn
	cfg      *config.Config
	capturer desktop.ScreenCapturer
	pipeline *framePipeline
	dispatch *dispatcher
	pacer    *pacer
	metrics  *StreamMetrics
	log      *slog.Logger

	role Role

	mu      sync.Mutex
	pending *protocol.FrameRequest

	reqSignal chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a session for an accepted connection. The capturer is owned by
// the session and closed when it ends; cfg, synth and encodePool are shared.
func New(id, remoteAddr string, conn MessageConn, cfg *config.Config, capturer desktop.ScreenCapturer, synth desktop.InputSynthesizer, encodePool *workerpool.Pool) *Session {
	log := logging.WithSession(logging.L("session"), id, remoteAddr)
	metrics := newStreamMetrics()
	return &Session{
		id:        id,
		conn:      conn,
		cfg:       cfg,
		capturer:  capturer,
		pipeline:  newFramePipeline(capturer, cfg, encodePool, metrics, log),
		dispatch:  newDispatcher(synth, cfg.MaxIPS, metrics, log),
		pacer:     newPacer(cfg.MaxFPS),
		metrics:   metrics,
		log:       log,
		reqSignal: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Run executes the session until the client disconnects, the context is
// cancelled, or a protocol violation closes it. It always returns with the
// connection closed and all session goroutines stopped.
func (s *Session) Run(ctx context.Context) {
	defer s.stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock the reader when the context is cancelled.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-s.done:
		}
	}()

	if err := s.authenticate(); err != nil {
		s.log.Info("login rejected", "error", err)
		return
	}
	s.log.Info("session started", "role", s.role.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.produceLoop(ctx)
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.metricsLogger()
	}()

	err := s.readLoop()
	cancel()

	snap := s.metrics.Snapshot()
	s.log.Info("session ended",
		"error", errString(err),
		"full", snap.FramesFull,
		"partial", snap.FramesPartial,
		"empty", snap.FramesEmpty,
		"inputs", snap.InputDispatched,
		"uptime", snap.Uptime.Round(time.Second),
	)
}

// authenticate performs the login exchange. Until it succeeds the session
// causes no capture, no input dispatch, and no outbound packet other than
// the auth result.
func (s *Session) authenticate() error {
	msg, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read login: %w", err)
	}
	password, err := protocol.DecodeLogin(msg)
	if err != nil {
		return err
	}

	switch {
	case secretsEqual(password, s.cfg.ControlPassword):
		s.role = RoleController
		return s.conn.WriteMessage(protocol.EncodeAuthResult(protocol.AuthController))
	case s.cfg.ViewPassword != "" && secretsEqual(password, s.cfg.ViewPassword):
		s.role = RoleViewer
		return s.conn.WriteMessage(protocol.EncodeAuthResult(protocol.AuthViewer))
	}

	// Fixed-shape failure result, then close.
	_ = s.conn.WriteMessage(protocol.EncodeAuthResult(protocol.AuthDenied))
	return fmt.Errorf("wrong password")
}

// readLoop consumes inbound packets until the connection drops or a packet
// is malformed. Frame requests only overwrite the pending slot — servicing
// happens on the producer goroutine, so input stays responsive while a
// frame is being captured or encoded.
func (s *Session) readLoop() error {
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if len(msg) == 0 {
			return fmt.Errorf("%w: empty message", ErrProtocol)
		}

		switch msg[0] {
		case protocol.PacketFrameRequest:
			req, err := protocol.DecodeFrameRequest(msg)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrProtocol, err)
			}
			s.setPending(req)

		case protocol.PacketInput:
			events, err := protocol.DecodeInputBatch(msg)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrProtocol, err)
			}
			s.dispatchInput(events)

		default:
			return fmt.Errorf("%w: unknown tag 0x%02x", ErrProtocol, msg[0])
		}
	}
}

// setPending coalesces queued requests: only the most recent parameters are
// honored, and the producer emits one response per serviced slot.
func (s *Session) setPending(req protocol.FrameRequest) {
	s.mu.Lock()
	s.pending = &req
	s.mu.Unlock()

	select {
	case s.reqSignal <- struct{}{}:
	default:
	}
}

func (s *Session) takePending() *protocol.FrameRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.pending
	s.pending = nil
	return req
}

func (s *Session) dispatchInput(events []protocol.InputEvent) {
	if s.role != RoleController {
		return
	}
	vw, vh := s.pipeline.Viewport()
	if vw == 0 || vh == 0 {
		// No viewport negotiated yet; coordinates cannot be mapped.
		return
	}
	dw, dh, err := s.capturer.Bounds()
	if err != nil {
		s.log.Warn("display bounds unavailable, input dropped", "error", err)
		return
	}
	s.dispatch.Dispatch(s.role, events, vw, vh, dw, dh)
}

// produceLoop is the frame-production half of the session: it waits for a
// pending request, spends the pacer budget, then captures, encodes and
// writes exactly one response.
func (s *Session) produceLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reqSignal:
		}

		for {
			req := s.takePending()
			if req == nil {
				break
			}
			if err := s.pacer.Wait(ctx); err != nil {
				return
			}

			resp := s.pipeline.Produce(*req)
			wire := protocol.EncodeFrameResponse(resp)
			if err := s.conn.WriteMessage(wire); err != nil {
				s.log.Debug("frame write failed", "error", err)
				return
			}
			s.pacer.MarkSent()
			s.metrics.RecordFrame(resp.Type, len(wire))
		}
	}
}

func (s *Session) metricsLogger() {
	ticker := time.NewTicker(metricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			snap := s.metrics.Snapshot()
			s.log.Info("stream metrics",
				"captured", snap.FramesCaptured,
				"full", snap.FramesFull,
				"partial", snap.FramesPartial,
				"empty", snap.FramesEmpty,
				"encodeMs", snap.EncodeMs,
				"frameBytes", snap.LastFrameSize,
				"bandwidthKBps", snap.BandwidthKBps,
				"inputs", snap.InputDispatched,
			)
		}
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	s.wg.Wait()
	if s.capturer != nil {
		s.capturer.Close()
	}
}

func secretsEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
