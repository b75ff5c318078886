//go:build !linux && !windows

package desktop

// stubInputSynthesizer is used on platforms without an input backend.
// Sessions stay viewable; controller events fail and are dropped.
type stubInputSynthesizer struct{}

// NewInputSynthesizer creates a stub input synthesizer.
func NewInputSynthesizer() InputSynthesizer {
	return &stubInputSynthesizer{}
}

func (s *stubInputSynthesizer) MouseMove(x, y int) error        { return ErrNotSupported }
func (s *stubInputSynthesizer) MouseDown(x, y, button int) error { return ErrNotSupported }
func (s *stubInputSynthesizer) MouseUp(x, y, button int) error   { return ErrNotSupported }
func (s *stubInputSynthesizer) Scroll(x, y, dy int) error        { return ErrNotSupported }
func (s *stubInputSynthesizer) KeyDown(name string) error        { return ErrNotSupported }
func (s *stubInputSynthesizer) KeyUp(name string) error          { return ErrNotSupported }
