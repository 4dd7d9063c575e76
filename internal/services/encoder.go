package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
)

var ErrEmptyOutput = errors.New("ffmpeg produced no output file")

// Encoder turns a frame stream into an H.264 MP4 via an ffmpeg subprocess.
type Encoder struct {
	ffmpegPath string
	tempDir    string
}

func NewEncoder(ffmpegPath, tempDir string) *Encoder {
	return &Encoder{ffmpegPath: ffmpegPath, tempDir: tempDir}
}

// Encode consumes frames incrementally, spooling each to a numbered JPEG in a
// per-job directory, then assembles them with ffmpeg. It returns the number
// of frames encoded. A stream that closes without a single frame is an error.
func (e *Encoder) Encode(ctx context.Context, frames <-chan *image.NRGBA, outPath string) (int, error) {
	dir, err := os.MkdirTemp(e.tempDir, "frames-")
	if err != nil {
		return 0, fmt.Errorf("failed to create frame dir: %w", err)
	}
	defer os.RemoveAll(dir)

	count := 0
	for frame := range frames {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if err := writeFrameJPEG(filepath.Join(dir, fmt.Sprintf("frame%06d.jpg", count)), frame); err != nil {
			return count, err
		}
		count++
	}
	if count == 0 {
		return 0, ErrNoFrames
	}

	args := []string{
		"-framerate", fmt.Sprintf("%d", FramesPerSecond),
		"-i", filepath.Join(dir, "frame%06d.jpg"),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y", outPath,
	}
	if _, err := runCommand(ctx, e.ffmpegPath, args...); err != nil {
		return count, err
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return count, ErrEmptyOutput
	}
	return count, nil
}

func writeFrameJPEG(path string, frame *image.NRGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	if err := jpeg.Encode(f, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return f.Close()
}
