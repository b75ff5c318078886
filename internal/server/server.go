// Package server owns the HTTP listener: it serves the embedded browser UI,
// upgrades /ws connections, and supervises one session per client.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arledge/webrd/internal/config"
	"github.com/arledge/webrd/internal/desktop"
	"github.com/arledge/webrd/internal/logging"
	"github.com/arledge/webrd/internal/session"
	"github.com/arledge/webrd/internal/workerpool"
)

var log = logging.L("server")

//go:embed static/*
var staticFiles embed.FS

const (
	writeWait       = 10 * time.Second
	maxMessageSize  = 1 * 1024 * 1024
	shutdownTimeout = 10 * time.Second
)

// Server accepts connections and spawns sessions. Sessions share only the
// read-only config, the OS input synthesizer and the encode pool.
type Server struct {
	cfg        *config.Config
	synth      desktop.InputSynthesizer
	encodePool *workerpool.Pool
	upgrader   websocket.Upgrader

	// newCapturer is the per-session capturer factory; tests substitute it.
	newCapturer func(fullscreen bool) (desktop.ScreenCapturer, error)

	nextSessionID atomic.Uint64
	sessionWG     sync.WaitGroup
}

// New creates a server and verifies a display is available for capture.
func New(cfg *config.Config) (*Server, error) {
	// Probe capture support once at startup so a headless host fails fast
	// instead of on the first session.
	probe, err := desktop.NewScreenCapturer(cfg.Fullscreen)
	if err != nil {
		return nil, fmt.Errorf("screen capture unavailable: %w", err)
	}
	probe.Close()

	return &Server{
		cfg:         cfg,
		synth:       desktop.NewInputSynthesizer(),
		encodePool:  workerpool.New(cfg.EncodeWorkers, cfg.EncodeQueueSize),
		newCapturer: desktop.NewScreenCapturer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The shared-secret login is the access control; the UI may be
			// served from another origin or a file:// page during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// ListenAndServe runs the server until the context is cancelled or the
// listener fails. Active sessions are drained on shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("static file system: %w", err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", s.handleWebSocket)

	addr := net.JoinHostPort("", strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "fullscreen", s.cfg.Fullscreen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	s.sessionWG.Wait()
	s.encodePool.Shutdown(shutdownCtx)
	log.Info("server stopped")
	return nil
}

// handleWebSocket upgrades a connection and runs its session to completion.
// Session-local failures never propagate past the session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	capturer, err := s.newCapturer(s.cfg.Fullscreen)
	if err != nil {
		log.Warn("capturer init failed", "remoteAddr", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}

	id := fmt.Sprintf("s-%d", s.nextSessionID.Add(1))
	log.Info("connection accepted", "session", id, "remoteAddr", r.RemoteAddr)

	sess := session.New(id, r.RemoteAddr, &wsConn{conn: conn}, s.cfg, capturer, s.synth, s.encodePool)

	s.sessionWG.Add(1)
	defer s.sessionWG.Done()
	sess.Run(r.Context())
}

// wsConn adapts a gorilla connection to the session's message transport.
// The session's producer goroutine is the only frame writer, and the auth
// result is written before the producer starts, so writes never interleave.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.BinaryMessage {
			return data, nil
		}
		// Text frames are not part of the protocol; skip them rather than
		// tearing the session down.
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) Close() error {
	err := c.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
