package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxmoniot/DiaporamaMp4/internal/models"
	"github.com/maxmoniot/DiaporamaMp4/internal/storage"
)

type fakePhotoSource struct {
	blobs map[string][]byte
}

func (f *fakePhotoSource) Download(_ context.Context, _ string, filename string) ([]byte, error) {
	if b, ok := f.blobs[filename]; ok {
		return b, nil
	}
	return nil, storage.ErrObjectNotFound
}

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(w, h, c)))
	return buf.Bytes()
}

func testProject(photos ...models.Photo) *models.Project {
	settings := models.DefaultSettings()
	settings.Resolution = models.Resolution720p
	return &models.Project{Photos: photos, Settings: settings}
}

func collectFrames(t *testing.T, seq *Sequencer, project *models.Project, onProgress func(float64)) ([]*image.NRGBA, error) {
	t.Helper()
	out := make(chan *image.NRGBA, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- seq.Render(context.Background(), project, out, onProgress)
	}()
	var frames []*image.NRGBA
	for f := range out {
		frames = append(frames, f)
	}
	return frames, <-errCh
}

func TestRenderFrameCountAndOrder(t *testing.T) {
	src := &fakePhotoSource{blobs: map[string][]byte{
		"dark.png":   pngBytes(t, 400, 225, color.NRGBA{40, 40, 40, 255}),
		"bright.png": pngBytes(t, 400, 225, color.NRGBA{200, 200, 200, 255}),
	}}
	project := testProject(
		models.Photo{Filename: "dark.png", Duration: 2, Order: 0},
		models.Photo{Filename: "bright.png", Duration: 3, Order: 1},
	)

	frames, err := collectFrames(t, NewSequencer(src, 2), project, nil)
	require.NoError(t, err)
	require.Len(t, frames, 150, "2s + 3s at 30fps")

	for _, f := range frames {
		assert.Equal(t, 1280, f.Bounds().Dx())
		assert.Equal(t, 720, f.Bounds().Dy())
	}
	// Photos must come out in order regardless of worker scheduling.
	assert.Equal(t, uint8(40), frames[0].NRGBAAt(640, 360).R)
	assert.Equal(t, uint8(40), frames[59].NRGBAAt(640, 360).R)
	assert.Equal(t, uint8(200), frames[60].NRGBAAt(640, 360).R)
	assert.Equal(t, uint8(200), frames[149].NRGBAAt(640, 360).R)
}

func TestRenderSkipsMissingAndUndecodable(t *testing.T) {
	src := &fakePhotoSource{blobs: map[string][]byte{
		"ok.png":     pngBytes(t, 200, 200, color.NRGBA{99, 99, 99, 255}),
		"broken.png": []byte("not an image"),
	}}
	project := testProject(
		models.Photo{Filename: "missing.png", Duration: 1, Order: 0},
		models.Photo{Filename: "broken.png", Duration: 1, Order: 1},
		models.Photo{Filename: "ok.png", Duration: 1, Order: 2},
	)

	frames, err := collectFrames(t, NewSequencer(src, 2), project, nil)
	require.NoError(t, err)
	assert.Len(t, frames, 30, "only the decodable photo renders")
}

func TestRenderNoPhotos(t *testing.T) {
	_, err := collectFrames(t, NewSequencer(&fakePhotoSource{}, 1), testProject(), nil)
	assert.ErrorIs(t, err, ErrNoPhotos)
}

func TestRenderAllPhotosSkipped(t *testing.T) {
	project := testProject(models.Photo{Filename: "gone.png", Duration: 1, Order: 0})
	_, err := collectFrames(t, NewSequencer(&fakePhotoSource{}, 1), project, nil)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestRenderProgress(t *testing.T) {
	src := &fakePhotoSource{blobs: map[string][]byte{
		"a.png": pngBytes(t, 100, 100, color.NRGBA{10, 10, 10, 255}),
		"b.png": pngBytes(t, 100, 100, color.NRGBA{20, 20, 20, 255}),
	}}
	project := testProject(
		models.Photo{Filename: "a.png", Duration: 0.5, Order: 0},
		models.Photo{Filename: "b.png", Duration: 0.5, Order: 1},
	)

	var reported []float64
	_, err := collectFrames(t, NewSequencer(src, 1), project, func(p float64) {
		reported = append(reported, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 80}, reported)
}

func TestRenderFadePreservesFrameCount(t *testing.T) {
	src := &fakePhotoSource{blobs: map[string][]byte{
		"dark.png":   pngBytes(t, 400, 225, color.NRGBA{40, 40, 40, 255}),
		"bright.png": pngBytes(t, 400, 225, color.NRGBA{200, 200, 200, 255}),
	}}
	project := testProject(
		models.Photo{Filename: "dark.png", Duration: 2, Order: 0},
		models.Photo{Filename: "bright.png", Duration: 3, Order: 1},
	)
	project.Settings.Transition = models.TransitionFade
	project.Settings.TransitionDuration = 0.3

	frames, err := collectFrames(t, NewSequencer(src, 2), project, nil)
	require.NoError(t, err)
	require.Len(t, frames, 150, "fade must not add or drop frames")

	// First frame of the second photo is a blend, not a hard cut.
	blended := frames[60].NRGBAAt(640, 360).R
	assert.Greater(t, int(blended), 40)
	assert.Less(t, int(blended), 200)
}
