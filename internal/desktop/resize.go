package desktop

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Resize scales src to w×h with a bilinear filter. The same filter is used
// for every frame so identical inputs always produce identical outputs.
// When src already has the target dimensions it is returned as-is.
func Resize(src *image.RGBA, w, h int) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := scaledImagePool.Get(w, h)
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}
