package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"
	"github.com/maxmoniot/DiaporamaMp4/internal/models"

	_ "golang.org/x/image/webp" // webp photos are accepted at upload
)

const (
	// Background treatment: heavy blur plus a 50% darken so the letterboxed
	// foreground reads clearly against it.
	backgroundBlurSigma   = 30.0
	backgroundDarkenScale = 0.5

	thumbnailSize = 200
	jpegQuality   = 85
)

// DecodeImage decodes an uploaded photo. Format support is whatever the
// registered decoders provide (jpeg, png, gif, bmp, tiff, webp).
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ComposeFrame renders the letterbox-safe composite for one photo: the source
// cover-scaled, center-cropped, blurred, and darkened as a full-bleed
// background, with the source aspect-fit and centered on top.
func ComposeFrame(src image.Image, targetW, targetH int) *image.NRGBA {
	flat := flatten(src)

	bg := coverScale(flat, targetW, targetH)
	bg = imaging.CropCenter(bg, targetW, targetH)
	bg = imaging.Blur(bg, backgroundBlurSigma)
	bg = darken(bg, backgroundDarkenScale)

	fg := fitScale(flat, targetW, targetH)

	// Integer centering; rounding may bias the paste 1px toward top-left.
	x := (targetW - fg.Bounds().Dx()) / 2
	y := (targetH - fg.Bounds().Dy()) / 2
	return imaging.Paste(bg, fg, image.Pt(x, y))
}

// RenderThumbnail produces the 200x200-bounded JPEG used by photo listings.
func RenderThumbnail(src image.Image) ([]byte, error) {
	thumb := imaging.Fit(flatten(src), thumbnailSize, thumbnailSize, imaging.Lanczos)
	return encodeJPEG(thumb)
}

// RenderPreview produces the web preview composite for a target format. The
// preview uses the same framing as export frames, so a format change makes
// every existing preview stale.
func RenderPreview(src image.Image, format models.Format) ([]byte, error) {
	w, h := PreviewSize(format)
	return encodeJPEG(ComposeFrame(src, w, h))
}

// flatten normalizes to 3-channel color by compositing any transparency onto
// a black backdrop.
func flatten(src image.Image) *image.NRGBA {
	b := src.Bounds()
	black := imaging.New(b.Dx(), b.Dy(), color.NRGBA{0, 0, 0, 255})
	return imaging.Overlay(black, src, image.Pt(0, 0), 1.0)
}

// coverScale resizes so the result is at least as large as the target in both
// dimensions: scale by height when the source is proportionally wider, by
// width when taller.
func coverScale(src *image.NRGBA, targetW, targetH int) *image.NRGBA {
	srcRatio := ratio(src)
	targetRatio := float64(targetW) / float64(targetH)

	var w, h int
	if srcRatio > targetRatio {
		h = targetH
		w = int(float64(h) * srcRatio)
	} else {
		w = targetW
		h = int(float64(w) / srcRatio)
	}
	return imaging.Resize(src, w, h, imaging.Lanczos)
}

// fitScale resizes to fit entirely within the target, preserving aspect.
func fitScale(src *image.NRGBA, targetW, targetH int) *image.NRGBA {
	srcRatio := ratio(src)
	targetRatio := float64(targetW) / float64(targetH)

	var w, h int
	if srcRatio > targetRatio {
		w = targetW
		h = int(float64(w) / srcRatio)
	} else {
		h = targetH
		w = int(float64(h) * srcRatio)
	}
	return imaging.Resize(src, w, h, imaging.Lanczos)
}

func darken(img *image.NRGBA, scale float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.R = uint8(float64(c.R) * scale)
		c.G = uint8(float64(c.G) * scale)
		c.B = uint8(float64(c.B) * scale)
		return c
	})
}

func ratio(img image.Image) float64 {
	b := img.Bounds()
	return float64(b.Dx()) / float64(b.Dy())
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
