package services

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/maxmoniot/DiaporamaMp4/internal/models"
)

const (
	// Maximum zoom reached at the end of a photo's animation.
	kenBurnsZoomRange = 0.05
	// Fixed zoom used when the photo only pans.
	kenBurnsPanZoom = 1.05
	// Pan drift in pixels across the full animation for the combined mode.
	kenBurnsPanX = 10.0
	kenBurnsPanY = 5.0
)

// AnimateFrame produces frame i of a photo's Ken Burns animation from its
// composed base frame. The result always has the base frame's dimensions.
// A single-frame animation holds progress at zero.
func AnimateFrame(base *image.NRGBA, i, frameCount int, anim models.AnimationType) *image.NRGBA {
	denom := frameCount - 1
	if denom < 1 {
		denom = 1
	}
	progress := float64(i) / float64(denom)

	w := base.Bounds().Dx()
	h := base.Bounds().Dy()

	var zoom float64
	if anim == models.AnimationPan {
		zoom = kenBurnsPanZoom
	} else {
		zoom = 1.0 + kenBurnsZoomRange*progress
	}

	winW := int(float64(w) / zoom)
	winH := int(float64(h) / zoom)

	var x, y int
	switch anim {
	case models.AnimationBoth:
		x = (w-winW)/2 + int(kenBurnsPanX*progress)
		y = (h-winH)/2 + int(kenBurnsPanY*progress)
	case models.AnimationPan:
		// Sweep the window across the full slack left by the fixed zoom.
		x = int(float64(w-winW) * progress)
		y = int(float64(h-winH) * progress)
	default:
		// zoom, and anything unrecognized: centered window, no drift.
		x = (w - winW) / 2
		y = (h - winH) / 2
	}
	x = clampInt(x, 0, w-winW)
	y = clampInt(y, 0, h-winH)

	win := imaging.Crop(base, image.Rect(x, y, x+winW, y+winH))
	return imaging.Resize(win, w, h, imaging.Lanczos)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
