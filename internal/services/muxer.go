package services

import (
	"context"
	"fmt"
	"log"
	"os"
)

// MuxResult reports how the final output was produced.
type MuxResult int

const (
	// MuxFailed means not even the silent video could be delivered.
	MuxFailed MuxResult = iota
	// MuxMuxed is the normal case: video with the audio track attached.
	MuxMuxed
	// MuxVideoOnly means audio was missing or muxing failed, and the silent
	// video was kept as the final output.
	MuxVideoOnly
)

func (r MuxResult) String() string {
	switch r {
	case MuxMuxed:
		return "muxed"
	case MuxVideoOnly:
		return "video-only"
	default:
		return "failed"
	}
}

// Muxer attaches an audio track to a rendered video. Audio problems never
// fail an export; the silent video is always an acceptable fallback.
type Muxer struct {
	ffmpegPath string
}

func NewMuxer(ffmpegPath string) *Muxer {
	return &Muxer{ffmpegPath: ffmpegPath}
}

// Mux writes the final file to outPath. audioPath may be empty. The returned
// error is non-nil only when the result is MuxFailed, which covers I/O on the
// silent video itself.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outPath string) (MuxResult, error) {
	if audioPath == "" {
		return m.keepVideoOnly(videoPath, outPath)
	}
	if _, err := os.Stat(audioPath); err != nil {
		log.Printf("[Muxer] Audio file unavailable, keeping silent video: %v", err)
		return m.keepVideoOnly(videoPath, outPath)
	}

	muxPath := outPath + ".mux"
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		muxPath,
	}
	if _, err := runCommand(ctx, m.ffmpegPath, args...); err != nil {
		log.Printf("[Muxer] Muxing failed, keeping silent video: %v", err)
		os.Remove(muxPath)
		return m.keepVideoOnly(videoPath, outPath)
	}

	if err := os.Rename(muxPath, outPath); err != nil {
		os.Remove(muxPath)
		return m.keepVideoOnly(videoPath, outPath)
	}
	return MuxMuxed, nil
}

func (m *Muxer) keepVideoOnly(videoPath, outPath string) (MuxResult, error) {
	if videoPath == outPath {
		return MuxVideoOnly, nil
	}
	if err := os.Rename(videoPath, outPath); err != nil {
		return MuxFailed, fmt.Errorf("failed to place silent video: %w", err)
	}
	return MuxVideoOnly, nil
}
