package desktop

import (
	"fmt"
	"image"
	"image/jpeg"
)

// ClampQuality bounds q to the valid JPEG quality range [1, 100].
func ClampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// EncodeJPEG encodes an image as JPEG with the specified quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: ClampQuality(quality)}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// EncodeRegion encodes the sub-rectangle rect of img as JPEG. rect must lie
// within img's bounds.
func EncodeRegion(img *image.RGBA, rect image.Rectangle, quality int) ([]byte, error) {
	b := img.Bounds()
	sub := rect.Add(b.Min)
	if !sub.In(b) {
		return nil, fmt.Errorf("region %v outside image bounds %v", rect, b)
	}
	return EncodeJPEG(img.SubImage(sub), quality)
}
