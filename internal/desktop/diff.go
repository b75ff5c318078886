package desktop

import (
	"bytes"
	"image"
)

// DeltaKind classifies the difference between two frames.
type DeltaKind int

const (
	// DeltaNone means the frames are bitwise identical.
	DeltaNone DeltaKind = iota
	// DeltaFull means the whole frame must be retransmitted.
	DeltaFull
	// DeltaRect means only Rect changed.
	DeltaRect
)

// FrameDelta is the differ's verdict. Rect is set only for DeltaRect and is
// the minimal bounding rectangle of the changed pixels, relative to cur's
// top-left corner (0,0 is the first pixel whatever cur.Bounds().Min is).
type FrameDelta struct {
	Kind DeltaKind
	Rect image.Rectangle
}

// Diff compares prev and cur. It is pure: no state beyond its inputs.
//
// A nil prev or a dimension mismatch yields DeltaFull. Identical buffers
// yield DeltaNone. Otherwise the result is DeltaRect with the tightest
// axis-aligned bounding box of the differing pixels: shrinking any edge by
// one row or column would exclude at least one changed pixel.
func Diff(prev, cur *image.RGBA) FrameDelta {
	if prev == nil {
		return FrameDelta{Kind: DeltaFull}
	}
	pb, cb := prev.Bounds(), cur.Bounds()
	w, h := cb.Dx(), cb.Dy()
	if pb.Dx() != w || pb.Dy() != h {
		return FrameDelta{Kind: DeltaFull}
	}

	minY, maxY := -1, -1
	minX, maxX := w, -1

	for y := 0; y < h; y++ {
		prow := rowPixels(prev, y, w)
		crow := rowPixels(cur, y, w)
		if bytes.Equal(prow, crow) {
			continue
		}
		if minY < 0 {
			minY = y
		}
		maxY = y

		// First and last differing pixel in this row.
		for x := 0; x < minX; x++ {
			if !pixelEqual(prow, crow, x) {
				minX = x
				break
			}
		}
		for x := w - 1; x > maxX; x-- {
			if !pixelEqual(prow, crow, x) {
				maxX = x
				break
			}
		}
	}

	if minY < 0 {
		return FrameDelta{Kind: DeltaNone}
	}
	return FrameDelta{
		Kind: DeltaRect,
		Rect: image.Rect(minX, minY, maxX+1, maxY+1),
	}
}

// rowPixels returns the w visible pixels of row y as a byte slice,
// independent of the image's stride and bounds origin.
func rowPixels(img *image.RGBA, y, w int) []byte {
	b := img.Bounds()
	off := img.PixOffset(b.Min.X, b.Min.Y+y)
	return img.Pix[off : off+w*4]
}

func pixelEqual(a, b []byte, x int) bool {
	i := x * 4
	return a[i] == b[i] && a[i+1] == b[i+1] && a[i+2] == b[i+2] && a[i+3] == b[i+3]
}
