package services

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameChan(frames ...*image.NRGBA) <-chan *image.NRGBA {
	ch := make(chan *image.NRGBA, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch
}

func TestEncodeEmptyStream(t *testing.T) {
	enc := NewEncoder("ffmpeg", t.TempDir())
	_, err := enc.Encode(context.Background(), frameChan(), filepath.Join(t.TempDir(), "out.mp4"))
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestEncodeFFmpegFailure(t *testing.T) {
	enc := NewEncoder("/nonexistent/ffmpeg", t.TempDir())
	frame := imaging.New(64, 64, color.NRGBA{1, 2, 3, 255})

	count, err := enc.Encode(context.Background(), frameChan(frame, frame), filepath.Join(t.TempDir(), "out.mp4"))
	require.Error(t, err)
	assert.Equal(t, 2, count, "frames were spooled before the subprocess ran")

	var ffErr *FFmpegError
	assert.ErrorAs(t, err, &ffErr)
}

func TestEncodeMissingOutput(t *testing.T) {
	// A subprocess that exits zero without writing the file must still fail.
	enc := NewEncoder("true", t.TempDir())
	frame := imaging.New(64, 64, color.NRGBA{9, 9, 9, 255})

	_, err := enc.Encode(context.Background(), frameChan(frame), filepath.Join(t.TempDir(), "out.mp4"))
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestEncodeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enc := NewEncoder("ffmpeg", t.TempDir())
	frame := imaging.New(64, 64, color.NRGBA{9, 9, 9, 255})
	_, err := enc.Encode(ctx, frameChan(frame), filepath.Join(t.TempDir(), "out.mp4"))
	assert.ErrorIs(t, err, context.Canceled)
}
