package services

import (
	"context"
	"encoding/binary"
	"log"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Fallback analysis used when ffprobe/ffmpeg or the track itself is broken.
// Beat sync still works off these defaults.
const (
	fallbackTrackDuration = 180.0
	fallbackTempo         = 120.0

	analysisSampleRate = 22050
	analysisWindow     = 1024
	analysisHop        = 512

	// Minimum spacing between detected onsets.
	minOnsetGapSeconds = 0.25
)

// TrackAnalysis describes an uploaded music track.
type TrackAnalysis struct {
	Duration float64
	Tempo    float64
	Beats    []float64
}

// TrackAnalyzer extracts duration and a rough beat grid from an audio file
// using ffprobe and an energy-flux pass over ffmpeg-decoded PCM.
type TrackAnalyzer struct {
	ffmpegPath  string
	ffprobePath string
}

func NewTrackAnalyzer(ffmpegPath, ffprobePath string) *TrackAnalyzer {
	return &TrackAnalyzer{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Analyze never fails: any tooling or decode problem degrades to the
// fallback values so an upload is never rejected over analysis.
func (a *TrackAnalyzer) Analyze(ctx context.Context, path string) TrackAnalysis {
	result := TrackAnalysis{
		Duration: fallbackTrackDuration,
		Tempo:    fallbackTempo,
		Beats:    []float64{},
	}

	if duration, err := a.probeDuration(ctx, path); err != nil {
		log.Printf("[Analyzer] Duration probe failed for %s: %v", path, err)
	} else {
		result.Duration = duration
	}

	samples, err := a.decodePCM(ctx, path)
	if err != nil {
		log.Printf("[Analyzer] PCM decode failed for %s: %v", path, err)
		return result
	}

	tempo, beats := estimateTempoAndBeats(samples, analysisSampleRate)
	result.Tempo = tempo
	result.Beats = beats
	return result
}

func (a *TrackAnalyzer) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := runCommand(ctx, a.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

// decodePCM resamples the track to mono 16-bit PCM at the analysis rate.
func (a *TrackAnalyzer) decodePCM(ctx context.Context, path string) ([]int16, error) {
	out, err := runCommand(ctx, a.ffmpegPath,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(analysisSampleRate),
		"-",
	)
	if err != nil {
		return nil, err
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[2*i:]))
	}
	return samples, nil
}

// estimateTempoAndBeats runs a short-term energy flux over the samples: a
// window whose energy jumps well above the recent average is an onset, and
// the median inter-onset interval gives the tempo.
func estimateTempoAndBeats(samples []int16, sampleRate int) (float64, []float64) {
	energies := windowEnergies(samples)
	if len(energies) == 0 {
		return fallbackTempo, []float64{}
	}

	// ~1s of history for the moving average.
	history := sampleRate / analysisHop
	if history < 1 {
		history = 1
	}

	minGap := minOnsetGapSeconds
	beats := []float64{}
	lastOnset := -minGap

	var sum float64
	for i, e := range energies {
		if i >= history {
			sum -= energies[i-history]
		}
		n := i
		if n > history {
			n = history
		}
		if n > 0 {
			avg := sum / float64(n)
			t := float64(i*analysisHop) / float64(sampleRate)
			if e > 1.5*avg && e > 1e-4 && t-lastOnset >= minGap {
				beats = append(beats, t)
				lastOnset = t
			}
		}
		sum += e
	}

	if len(beats) < 2 {
		return fallbackTempo, beats
	}

	intervals := make([]float64, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		intervals[i-1] = beats[i] - beats[i-1]
	}
	sort.Float64s(intervals)
	median := intervals[len(intervals)/2]
	if median <= 0 {
		return fallbackTempo, beats
	}

	tempo := 60.0 / median
	// Fold into a musically plausible range.
	for tempo < 60 {
		tempo *= 2
	}
	for tempo > 200 {
		tempo /= 2
	}
	return tempo, beats
}

// windowEnergies is the normalized mean square energy of each analysis hop.
func windowEnergies(samples []int16) []float64 {
	if len(samples) < analysisWindow {
		return nil
	}
	count := (len(samples)-analysisWindow)/analysisHop + 1
	energies := make([]float64, count)
	for i := 0; i < count; i++ {
		start := i * analysisHop
		var sum float64
		for _, s := range samples[start : start+analysisWindow] {
			v := float64(s) / math.MaxInt16
			sum += v * v
		}
		energies[i] = sum / analysisWindow
	}
	return energies
}
