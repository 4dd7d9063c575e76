package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums

type ExportStatus string

const (
	ExportStatusIdle       ExportStatus = "idle"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusCompleted  ExportStatus = "completed"
	ExportStatusError      ExportStatus = "error"
)

type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
	OrientationSquare    Orientation = "square"
)

type Format string

const (
	FormatHorizontal Format = "horizontal"
	FormatVertical   Format = "vertical"
)

type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

type Transition string

const (
	TransitionNone Transition = "none"
	TransitionFade Transition = "fade"
)

type AnimationType string

const (
	AnimationZoom AnimationType = "zoom"
	AnimationPan  AnimationType = "pan"
	AnimationBoth AnimationType = "both"
)

// ClassifyOrientation derives the orientation bucket from pixel dimensions.
// Ratio above 1.1 is landscape, below 0.9 portrait, everything between square
// (both boundaries land on square).
func ClassifyOrientation(width, height int) Orientation {
	ratio := float64(width) / float64(height)
	if ratio > 1.1 {
		return OrientationLandscape
	}
	if ratio < 0.9 {
		return OrientationPortrait
	}
	return OrientationSquare
}

// BeatInterval is the uniform per-photo duration implied by a track's tempo:
// 60/tempo seconds per beat, scaled by the project's rhythm multiplier.
func BeatInterval(tempo, multiplier float64) float64 {
	return 60.0 / tempo * multiplier
}

// DefaultPhotoDuration is the display time assigned to freshly uploaded photos.
const DefaultPhotoDuration = 2.0

// Photo is one entry in a project's ordered photo set. The byte artifacts
// (original, thumbnail, preview) live in the blob store and are referenced by
// generated filename.
type Photo struct {
	ID           uuid.UUID   `json:"id"`
	Filename     string      `json:"filename"`
	OriginalName string      `json:"original_name"`
	Width        int         `json:"width"`
	Height       int         `json:"height"`
	Orientation  Orientation `json:"orientation"`
	Duration     float64     `json:"duration"` // display seconds
	Order        int         `json:"order"`
	Thumbnail    *string     `json:"thumbnail,omitempty"`
	Preview      *string     `json:"preview,omitempty"`
}

// MusicTrack is the project's soundtrack plus the analyzer's verdict on it.
// Beats may be empty when analysis failed; tempo always carries a usable value.
type MusicTrack struct {
	ID           uuid.UUID `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Duration     float64   `json:"duration"` // seconds
	Tempo        float64   `json:"tempo"`    // BPM
	Beats        []float64 `json:"beats"`    // ascending beat times, seconds
}

type ProjectSettings struct {
	Format                 Format        `json:"format"`
	Resolution             Resolution    `json:"resolution"`
	Transition             Transition    `json:"transition"`
	TransitionDuration     float64       `json:"transition_duration"` // seconds
	GlobalRhythmMultiplier float64       `json:"global_rhythm_multiplier"`
	AnimationType          AnimationType `json:"animation_type"`
}

// DefaultSettings returns the settings a new project starts with.
func DefaultSettings() ProjectSettings {
	return ProjectSettings{
		Format:                 FormatHorizontal,
		Resolution:             Resolution1080p,
		Transition:             TransitionNone,
		TransitionDuration:     0.3,
		GlobalRhythmMultiplier: 1.0,
		AnimationType:          AnimationZoom,
	}
}

// ExportJob is the per-project export state machine:
// idle → processing → {completed, error}. OutputFile is non-nil iff the
// status is completed; starting a new export resets progress and clears it.
type ExportJob struct {
	Status     ExportStatus `json:"status"`
	Progress   float64      `json:"progress"` // 0..100
	OutputFile *string      `json:"output_file,omitempty"`
}

// Start flips the job into processing, resetting progress and output.
// Valid from any state; the store layer guards against a second start while
// one is already processing.
func (j *ExportJob) Start() {
	j.Status = ExportStatusProcessing
	j.Progress = 0
	j.OutputFile = nil
}

// Complete terminalizes the job with its output reference.
func (j *ExportJob) Complete(outputFile string) {
	j.Status = ExportStatusCompleted
	j.Progress = 100
	j.OutputFile = &outputFile
}

// Fail terminalizes the job in the error state. Output stays unset.
func (j *ExportJob) Fail() {
	j.Status = ExportStatusError
	j.OutputFile = nil
}

type Project struct {
	ID        uuid.UUID       `json:"id"`
	Photos    []Photo         `json:"photos"`
	Music     *MusicTrack     `json:"music,omitempty"`
	Settings  ProjectSettings `json:"settings"`
	Export    ExportJob       `json:"export"`
	CreatedAt time.Time       `json:"created_at"`
}

// PhotosInOrder returns the photos sorted by Order ascending, ties broken by
// their position in the stored slice (insertion order).
func (p *Project) PhotosInOrder() []Photo {
	out := make([]Photo, len(p.Photos))
	copy(out, p.Photos)
	// insertion sort keeps the tie-break stable for the small slices we carry
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k].Order < out[k-1].Order; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out
}

// JSONB is a document column: photos, music, and settings are stored as
// PostgreSQL JSONB and round-tripped through these hooks.
type JSONB []byte

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = append((*j)[:0], v...)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	return nil
}

// MarshalJSONB encodes any document value into a JSONB column value.
func MarshalJSONB(v interface{}) (JSONB, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONB(data), nil
}

// DTOs for API requests/responses

type PhotoReorderRequest struct {
	PhotoIDs []uuid.UUID `json:"photo_ids"`
}

type PhotoDurationUpdate struct {
	PhotoID  uuid.UUID `json:"photo_id"`
	Duration float64   `json:"duration"`
}

type AllPhotosDurationUpdate struct {
	Duration float64 `json:"duration"`
}

type SettingsUpdate struct {
	Format                 *Format        `json:"format,omitempty"`
	Resolution             *Resolution    `json:"resolution,omitempty"`
	Transition             *Transition    `json:"transition,omitempty"`
	TransitionDuration     *float64       `json:"transition_duration,omitempty"`
	GlobalRhythmMultiplier *float64       `json:"global_rhythm_multiplier,omitempty"`
	AnimationType          *AnimationType `json:"animation_type,omitempty"`
}

type UploadPhotosResponse struct {
	Uploaded int     `json:"uploaded"`
	Skipped  int     `json:"skipped"`
	Photos   []Photo `json:"photos"`
}

type SyncToBeatsResponse struct {
	Synced       bool    `json:"synced"`
	BeatInterval float64 `json:"beat_interval,omitempty"`
}

type ExportStatusResponse struct {
	Status   ExportStatus `json:"status"`
	Progress float64      `json:"progress"`
	File     *string      `json:"file,omitempty"`
}
