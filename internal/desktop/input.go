package desktop

import "errors"

// ErrUnknownKey is returned when a key name is outside the platform
// synthesizer's vocabulary. The dispatcher drops the event and continues.
var ErrUnknownKey = errors.New("unknown key name")

// InputSynthesizer applies mouse and keyboard events to the host OS.
// Coordinates are host-display pixels; buttons are 1=left 2=middle 3=right;
// key names arrive already normalized by the browser client.
type InputSynthesizer interface {
	// MouseMove moves the cursor to the specified position.
	MouseMove(x, y int) error

	// MouseDown presses a mouse button at the specified position.
	MouseDown(x, y, button int) error

	// MouseUp releases a mouse button at the specified position.
	MouseUp(x, y, button int) error

	// Scroll scrolls dy notches at the specified position; dy > 0 is up.
	Scroll(x, y, dy int) error

	// KeyDown presses a key by name.
	KeyDown(name string) error

	// KeyUp releases a key by name.
	KeyUp(name string) error
}

// NewInputSynthesizer creates a platform-specific input synthesizer.
// Implementation is in input_*.go files.
