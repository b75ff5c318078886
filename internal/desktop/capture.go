// Package desktop provides the host-side primitives the streaming sessions
// are built from: display capture, viewport resizing, frame differencing,
// JPEG encoding and OS input synthesis.
package desktop

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenCapturer captures the host display as an RGBA pixel buffer.
type ScreenCapturer interface {
	// Capture captures the screen and returns an image.
	Capture() (*image.RGBA, error)

	// Bounds returns the current capture dimensions.
	Bounds() (width, height int, err error)

	// Close releases any resources held by the capturer.
	Close() error
}

// ErrNotSupported is returned by the input synthesizer on platforms without
// an input backend.
var ErrNotSupported = fmt.Errorf("not supported on this platform")

// ErrDisplayNotFound is returned when no active display is available.
var ErrDisplayNotFound = fmt.Errorf("display not found")

// displayCapturer captures via the screenshot library: the primary display,
// or the union rectangle of all active displays in fullscreen mode.
type displayCapturer struct {
	fullscreen bool
}

// NewScreenCapturer creates a screen capturer. With fullscreen set it grabs
// the union of all active displays, otherwise the primary display only.
func NewScreenCapturer(fullscreen bool) (ScreenCapturer, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, ErrDisplayNotFound
	}
	return &displayCapturer{fullscreen: fullscreen}, nil
}

func (c *displayCapturer) Capture() (*image.RGBA, error) {
	rect, err := c.captureRect()
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("capture %v: %w", rect, err)
	}
	return img, nil
}

func (c *displayCapturer) Bounds() (int, int, error) {
	rect, err := c.captureRect()
	if err != nil {
		return 0, 0, err
	}
	return rect.Dx(), rect.Dy(), nil
}

func (c *displayCapturer) Close() error {
	return nil
}

// captureRect re-reads display geometry on every call so resolution changes
// and hot-plugged monitors are picked up without restarting the session.
func (c *displayCapturer) captureRect() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, ErrDisplayNotFound
	}
	if !c.fullscreen {
		return screenshot.GetDisplayBounds(0), nil
	}
	rect := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		rect = rect.Union(screenshot.GetDisplayBounds(i))
	}
	return rect, nil
}
