package render

import (
	"image"
	"time"
)

const (
	backgroundWeight = 0.7
	overlayWeight    = 0.3
	maxFade          = 500 * time.Millisecond
)

// FadeFactor is the visual intensity at t within a segment of length d: a
// linear ramp over min(0.5s, d/4) at both ends, 1 in between.
func FadeFactor(t, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	window := min(maxFade, d/4)
	if window <= 0 {
		return 1
	}
	switch {
	case t < 0:
		return 0
	case t < window:
		return float64(t) / float64(window)
	case t > d-window:
		remaining := d - t
		if remaining <= 0 {
			return 0
		}
		return float64(remaining) / float64(window)
	}
	return 1
}

// Blend writes 0.7*bg + 0.3*weight*overlay into dst. With blendEmpty false,
// pixels where the overlay is black keep the background value.
func Blend(dst, bg, overlay *image.RGBA, weight float64, blendEmpty bool) {
	ow := overlayWeight * weight
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		o := overlay.Pix[i : i+3 : i+3]
		b := bg.Pix[i : i+3 : i+3]
		if !blendEmpty && o[0] == 0 && o[1] == 0 && o[2] == 0 {
			copy(dst.Pix[i:i+3], b)
			dst.Pix[i+3] = 0xff
			continue
		}
		for c := range 3 {
			dst.Pix[i+c] = clampByte(backgroundWeight*float64(b[c]) + ow*float64(o[c]))
		}
		dst.Pix[i+3] = 0xff
	}
}

// Scale multiplies every color channel of src by f into dst.
func Scale(dst, src *image.RGBA, f float64) {
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		for c := range 3 {
			dst.Pix[i+c] = clampByte(f * float64(src.Pix[i+c]))
		}
		dst.Pix[i+3] = 0xff
	}
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}
