//go:build windows

package desktop

import (
	"fmt"
	"syscall"
	"unsafe"
)

var (
	user32        = syscall.NewLazyDLL("user32.dll")
	sendInput     = user32.NewProc("SendInput")
	setcursorpos  = user32.NewProc("SetCursorPos")
	mapvirtualkey = user32.NewProc("MapVirtualKeyW")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseeventfLeftdown   = 0x0002
	mouseeventfLeftup     = 0x0004
	mouseeventfRightdown  = 0x0008
	mouseeventfRightup    = 0x0010
	mouseeventfMiddledown = 0x0020
	mouseeventfMiddleup   = 0x0040
	mouseeventfWheel      = 0x0800

	keyeventfKeyup       = 0x0002
	keyeventfExtendedkey = 0x0001

	mapvkVkToVsc = 0

	wheelDelta = 120
)

type mouseInput struct {
	dx, dy      int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type winInput struct {
	inputType uint32
	padding   [4]byte
	mi        mouseInput
}

// windowsInputSynthesizer synthesizes input on Windows via SendInput.
type windowsInputSynthesizer struct{}

// NewInputSynthesizer creates a Windows input synthesizer.
func NewInputSynthesizer() InputSynthesizer {
	return &windowsInputSynthesizer{}
}

func (s *windowsInputSynthesizer) MouseMove(x, y int) error {
	ret, _, _ := setcursorpos.Call(uintptr(x), uintptr(y))
	if ret == 0 {
		return fmt.Errorf("SetCursorPos failed")
	}
	return nil
}

func (s *windowsInputSynthesizer) MouseDown(x, y, button int) error {
	// Position cursor before pressing so drags start from the right origin.
	if err := s.MouseMove(x, y); err != nil {
		return err
	}

	var flags uint32
	switch button {
	case 2:
		flags = mouseeventfMiddledown
	case 3:
		flags = mouseeventfRightdown
	default:
		flags = mouseeventfLeftdown
	}
	return sendMouse(flags, 0)
}

func (s *windowsInputSynthesizer) MouseUp(x, y, button int) error {
	if err := s.MouseMove(x, y); err != nil {
		return err
	}

	var flags uint32
	switch button {
	case 2:
		flags = mouseeventfMiddleup
	case 3:
		flags = mouseeventfRightup
	default:
		flags = mouseeventfLeftup
	}
	return sendMouse(flags, 0)
}

func (s *windowsInputSynthesizer) Scroll(x, y, dy int) error {
	if err := s.MouseMove(x, y); err != nil {
		return err
	}
	// dy > 0 scrolls up, matching the positive WHEEL direction.
	return sendMouse(mouseeventfWheel, uint32(dy*wheelDelta))
}

func (s *windowsInputSynthesizer) KeyDown(name string) error {
	vk, ok := keyNameToVK(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return sendKey(vk, false)
}

func (s *windowsInputSynthesizer) KeyUp(name string) error {
	vk, ok := keyNameToVK(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return sendKey(vk, true)
}

func sendMouse(flags, data uint32) error {
	inp := winInput{inputType: inputMouse}
	inp.mi.dwFlags = flags
	inp.mi.mouseData = data
	ret, _, _ := sendInput.Call(1, uintptr(unsafe.Pointer(&inp)), unsafe.Sizeof(inp))
	if ret == 0 {
		return fmt.Errorf("SendInput failed, flags=0x%x", flags)
	}
	return nil
}

func sendKey(vk uint16, up bool) error {
	inp := winInput{inputType: inputKeyboard}
	ki := (*keybdInput)(unsafe.Pointer(&inp.mi))
	ki.wVk = vk
	ki.wScan = vkToScanCode(vk)
	if up {
		ki.dwFlags = keyeventfKeyup
	}
	if isExtendedKey(vk) {
		ki.dwFlags |= keyeventfExtendedkey
	}
	ret, _, _ := sendInput.Call(1, uintptr(unsafe.Pointer(&inp)), unsafe.Sizeof(inp))
	if ret == 0 {
		return fmt.Errorf("SendInput failed for vk=0x%X", vk)
	}
	return nil
}

// vkToScanCode uses MapVirtualKeyW to derive the hardware scan code for a VK.
// Some apps require the scan code field to be populated for key events to
// register.
func vkToScanCode(vk uint16) uint16 {
	sc, _, _ := mapvirtualkey.Call(uintptr(vk), mapvkVkToVsc)
	return uint16(sc)
}

// isExtendedKey returns true for keys that require KEYEVENTF_EXTENDEDKEY
// (nav cluster, arrows, etc.).
func isExtendedKey(vk uint16) bool {
	switch vk {
	case 0x21, 0x22, 0x23, 0x24, // PageUp, PageDown, End, Home
		0x25, 0x26, 0x27, 0x28, // Arrow keys
		0x2D, 0x2E, // Insert, Delete
		0x5B, 0x5C: // LWin, RWin
		return true
	}
	return false
}

var namedKeyVK = map[string]uint16{
	"Return":      0x0D,
	"Tab":         0x09,
	"space":       0x20,
	"BackSpace":   0x08,
	"Escape":      0x1B,
	"Delete":      0x2E,
	"Insert":      0x2D,
	"Home":        0x24,
	"End":         0x23,
	"Page_Up":     0x21,
	"Page_Down":   0x22,
	"Up":          0x26,
	"Down":        0x28,
	"Left":        0x25,
	"Right":       0x27,
	"Shift_L":     0x10,
	"Shift_R":     0x10,
	"Control_L":   0x11,
	"Control_R":   0x11,
	"Alt_L":       0x12,
	"Alt_R":       0x12,
	"Super_L":     0x5B,
	"Super_R":     0x5C,
	"Caps_Lock":   0x14,
	"Menu":        0x5D,
	"Print":       0x2C,
	"Pause":       0x13,
	"F1":          0x70,
	"F2":          0x71,
	"F3":          0x72,
	"F4":          0x73,
	"F5":          0x74,
	"F6":          0x75,
	"F7":          0x76,
	"F8":          0x77,
	"F9":          0x78,
	"F10":         0x79,
	"F11":         0x7A,
	"F12":         0x7B,
}

// keyNameToVK maps the client's keysym vocabulary to Windows virtual keys.
func keyNameToVK(name string) (uint16, bool) {
	if vk, ok := namedKeyVK[name]; ok {
		return vk, true
	}
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return uint16(c - 'a' + 'A'), true
		case c >= 'A' && c <= 'Z':
			return uint16(c), true
		case c >= '0' && c <= '9':
			return uint16(c), true
		}
	}
	return 0, false
}
