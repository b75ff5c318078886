package session

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/arledge/webrd/internal/desktop"
)

// stubCapturer returns a programmable image and counts captures.
type stubCapturer struct {
	mu       sync.Mutex
	img      *image.RGBA
	err      error
	captures atomic.Int64
	closed   atomic.Bool
}

func newStubCapturer(w, h int) *stubCapturer {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x20
	}
	return &stubCapturer{img: img}
}

func (c *stubCapturer) Capture() (*image.RGBA, error) {
	c.captures.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out, nil
}

func (c *stubCapturer) Bounds() (int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.img.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (c *stubCapturer) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *stubCapturer) setPixelBlock(x0, y0, size int, col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			c.img.SetRGBA(x, y, col)
		}
	}
}

// recordingSynth records every synthesizer call in order.
type recordingSynth struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingSynth) record(format string, args ...any) {
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

func (s *recordingSynth) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recordingSynth) MouseMove(x, y int) error {
	s.record("move %d,%d", x, y)
	return nil
}

func (s *recordingSynth) MouseDown(x, y, button int) error {
	s.record("down %d,%d b%d", x, y, button)
	return nil
}

func (s *recordingSynth) MouseUp(x, y, button int) error {
	s.record("up %d,%d b%d", x, y, button)
	return nil
}

func (s *recordingSynth) Scroll(x, y, dy int) error {
	s.record("scroll %d,%d %d", x, y, dy)
	return nil
}

func (s *recordingSynth) KeyDown(name string) error {
	if name == "Bogus_Key" {
		return fmt.Errorf("%w: %q", desktop.ErrUnknownKey, name)
	}
	s.record("keydown %s", name)
	return nil
}

func (s *recordingSynth) KeyUp(name string) error {
	s.record("keyup %s", name)
	return nil
}

// msgPipe is an in-memory MessageConn. Two ends share a closed channel, so
// closing either end drops the connection for both, like a real socket.
type msgPipe struct {
	recv   chan []byte
	send   chan []byte
	closed chan struct{}
	once   *sync.Once
}

var errPipeClosed = errors.New("pipe closed")

func newConnPair() (client, server *msgPipe) {
	a2b := make(chan []byte, 256)
	b2a := make(chan []byte, 256)
	closed := make(chan struct{})
	once := &sync.Once{}
	client = &msgPipe{recv: b2a, send: a2b, closed: closed, once: once}
	server = &msgPipe{recv: a2b, send: b2a, closed: closed, once: once}
	return client, server
}

func (p *msgPipe) ReadMessage() ([]byte, error) {
	select {
	case msg := <-p.recv:
		return msg, nil
	case <-p.closed:
		// Drain anything that was sent before the close.
		select {
		case msg := <-p.recv:
			return msg, nil
		default:
			return nil, errPipeClosed
		}
	}
}

func (p *msgPipe) WriteMessage(data []byte) error {
	select {
	case <-p.closed:
		return errPipeClosed
	default:
	}
	select {
	case p.send <- data:
		return nil
	case <-p.closed:
		return errPipeClosed
	}
}

func (p *msgPipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
