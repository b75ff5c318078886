package desktop

import (
	"testing"
)

func TestResizeDimensions(t *testing.T) {
	src := solidImage(100, 80, grey)
	dst := Resize(src, 50, 40)
	b := dst.Bounds()
	if b.Dx() != 50 || b.Dy() != 40 {
		t.Fatalf("resized to %dx%d, want 50x40", b.Dx(), b.Dy())
	}
}

func TestResizeSameSizeReturnsInput(t *testing.T) {
	src := solidImage(64, 64, grey)
	if dst := Resize(src, 64, 64); dst != src {
		t.Fatal("expected same-size resize to return the input image")
	}
}

func TestResizeIsDeterministic(t *testing.T) {
	src := solidImage(90, 60, grey)
	for x := 0; x < 90; x += 7 {
		src.SetRGBA(x, x%60, red)
	}

	a := cloneImage(Resize(src, 33, 21))
	b := cloneImage(Resize(src, 33, 21))
	if d := Diff(a, b); d.Kind != DeltaNone {
		t.Fatalf("two resizes of the same input differ: %v", d)
	}
}

func TestResizeClampsToMinimumSize(t *testing.T) {
	src := solidImage(10, 10, grey)
	dst := Resize(src, 0, -3)
	b := dst.Bounds()
	if b.Dx() != 1 || b.Dy() != 1 {
		t.Fatalf("resized to %dx%d, want 1x1", b.Dx(), b.Dy())
	}
}
