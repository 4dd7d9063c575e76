package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maxmoniot/DiaporamaMp4/internal/db"
	"github.com/maxmoniot/DiaporamaMp4/internal/models"
	"github.com/maxmoniot/DiaporamaMp4/internal/services"
	"github.com/maxmoniot/DiaporamaMp4/internal/storage"
)

const maxUploadBytes = 64 << 20

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
}

// ProjectStore is the slice of the database the handlers need.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdatePhotos(ctx context.Context, id uuid.UUID, photos []models.Photo) error
	UpdateMusic(ctx context.Context, id uuid.UUID, track *models.MusicTrack) error
	UpdateSettings(ctx context.Context, id uuid.UUID, settings models.ProjectSettings) error
	StartExport(ctx context.Context, id uuid.UUID) error
	FailExport(ctx context.Context, id uuid.UUID) error
}

// BlobStore covers the storage operations the handlers perform.
type BlobStore interface {
	Upload(ctx context.Context, bucket, filename string, data []byte, contentType string) error
	Download(ctx context.Context, bucket, filename string) ([]byte, error)
	Open(ctx context.Context, bucket, filename string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, filename string) error
}

// ExportQueue triggers asynchronous export runs.
type ExportQueue interface {
	EnqueueExport(ctx context.Context, projectID uuid.UUID) error
}

// TrackAnalyzer inspects uploaded music.
type TrackAnalyzer interface {
	Analyze(ctx context.Context, path string) services.TrackAnalysis
}

type Handler struct {
	db       ProjectStore
	queue    ExportQueue
	storage  BlobStore
	analyzer TrackAnalyzer
}

func NewHandler(database ProjectStore, q ExportQueue, stor BlobStore, analyzer TrackAnalyzer) *Handler {
	return &Handler{
		db:       database,
		queue:    q,
		storage:  stor,
		analyzer: analyzer,
	}
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	project := &models.Project{
		ID:       uuid.New(),
		Photos:   []models.Photo{},
		Settings: models.DefaultSettings(),
		Export:   models.ExportJob{Status: models.ExportStatusIdle},
	}

	if err := h.db.CreateProject(r.Context(), project); err != nil {
		log.Printf("[API] Failed to create project: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, project)
}

// GetProject handles GET /v1/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, project)
}

// UploadPhotos handles POST /v1/projects/{id}/photos
// Accepts multipart form data with one or more files under the "photos" field.
func (h *Handler) UploadPhotos(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "No photos provided")
		return
	}

	nextOrder := 0
	for _, p := range project.Photos {
		if p.Order >= nextOrder {
			nextOrder = p.Order + 1
		}
	}

	// Unsupported and undecodable files are skipped, not fatal: the rest of
	// the batch still uploads and the response reports what made it in.
	var added []models.Photo
	skipped := 0
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !photoExtensions[ext] {
			log.Printf("[API] Skipping %s: unsupported format %s", fh.Filename, ext)
			skipped++
			continue
		}

		data, err := readUpload(fh)
		if err != nil {
			log.Printf("[API] Skipping %s: %v", fh.Filename, err)
			skipped++
			continue
		}

		src, err := services.DecodeImage(bytes.NewReader(data))
		if err != nil {
			log.Printf("[API] Skipping undecodable %s: %v", fh.Filename, err)
			skipped++
			continue
		}
		bounds := src.Bounds()

		photoID := uuid.New()
		filename := photoID.String() + ext
		if err := h.storage.Upload(r.Context(), storage.BucketPhotos, filename, data, contentTypeForExt(ext)); err != nil {
			log.Printf("[API] Photo upload failed: %v", err)
			// Save what already made it so no stored blob is left unrecorded.
			h.savePhotos(r, project, added)
			respondError(w, http.StatusInternalServerError, "Failed to store photo")
			return
		}

		photo := models.Photo{
			ID:           photoID,
			Filename:     filename,
			OriginalName: fh.Filename,
			Width:        bounds.Dx(),
			Height:       bounds.Dy(),
			Orientation:  models.ClassifyOrientation(bounds.Dx(), bounds.Dy()),
			Duration:     models.DefaultPhotoDuration,
			Order:        nextOrder,
		}
		nextOrder++

		// Thumbnail and preview failures are logged but don't reject the
		// upload; the photo still renders in exports.
		if name, err := h.storeThumbnail(r, photoID, src); err != nil {
			log.Printf("[API] Thumbnail generation failed for %s: %v", filename, err)
		} else {
			photo.Thumbnail = &name
		}
		if name, err := h.storePreview(r, photoID, src, project.Settings.Format); err != nil {
			log.Printf("[API] Preview generation failed for %s: %v", filename, err)
		} else {
			photo.Preview = &name
		}

		added = append(added, photo)
	}

	if len(added) > 0 {
		project.Photos = append(project.Photos, added...)
		if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
			log.Printf("[API] Failed to save photos: %v", err)
			respondError(w, http.StatusInternalServerError, "Failed to save photos")
			return
		}
	}

	status := http.StatusCreated
	if len(added) == 0 {
		status = http.StatusOK
	}
	respondJSON(w, status, models.UploadPhotosResponse{
		Uploaded: len(added),
		Skipped:  skipped,
		Photos:   added,
	})
}

// readUpload drains one multipart file into memory.
func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// savePhotos appends photos to the project record, logging rather than
// failing; used to keep partial batch state consistent on an error path.
func (h *Handler) savePhotos(r *http.Request, project *models.Project, added []models.Photo) {
	if len(added) == 0 {
		return
	}
	project.Photos = append(project.Photos, added...)
	if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
		log.Printf("[API] Failed to save partial photo batch: %v", err)
	}
}

// DeletePhoto handles DELETE /v1/projects/{id}/photos/{photoId}
func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	photoID, err := uuid.Parse(chi.URLParam(r, "photoId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid photo ID")
		return
	}

	idx := -1
	for i, p := range project.Photos {
		if p.ID == photoID {
			idx = i
			break
		}
	}
	if idx == -1 {
		respondError(w, http.StatusNotFound, "Photo not found")
		return
	}

	photo := project.Photos[idx]
	project.Photos = append(project.Photos[:idx], project.Photos[idx+1:]...)

	if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
		log.Printf("[API] Failed to save photos: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to delete photo")
		return
	}

	// Blob cleanup is best effort; the record is already gone.
	h.deleteBlob(r, storage.BucketPhotos, photo.Filename)
	if photo.Thumbnail != nil {
		h.deleteBlob(r, storage.BucketThumbnails, *photo.Thumbnail)
	}
	if photo.Preview != nil {
		h.deleteBlob(r, storage.BucketPreviews, *photo.Preview)
	}

	respondJSON(w, http.StatusOK, project)
}

// ReorderPhotos handles PUT /v1/projects/{id}/photos/reorder
func (h *Handler) ReorderPhotos(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	var req models.PhotoReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.PhotoIDs) != len(project.Photos) {
		respondError(w, http.StatusBadRequest, "photo_ids must list every photo exactly once")
		return
	}

	order := make(map[uuid.UUID]int, len(req.PhotoIDs))
	for i, id := range req.PhotoIDs {
		if _, dup := order[id]; dup {
			respondError(w, http.StatusBadRequest, "photo_ids contains duplicates")
			return
		}
		order[id] = i
	}

	for i := range project.Photos {
		pos, found := order[project.Photos[i].ID]
		if !found {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("Unknown photo ID: %s", project.Photos[i].ID))
			return
		}
		project.Photos[i].Order = pos
	}

	if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
		log.Printf("[API] Failed to save photo order: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save photo order")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// UpdatePhotoDuration handles PUT /v1/projects/{id}/photos/duration
func (h *Handler) UpdatePhotoDuration(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	var req models.PhotoDurationUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Duration <= 0 {
		respondError(w, http.StatusBadRequest, "Duration must be positive")
		return
	}

	found := false
	for i := range project.Photos {
		if project.Photos[i].ID == req.PhotoID {
			project.Photos[i].Duration = req.Duration
			found = true
			break
		}
	}
	if !found {
		respondError(w, http.StatusNotFound, "Photo not found")
		return
	}

	if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
		log.Printf("[API] Failed to save duration: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save duration")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// UpdateAllPhotoDurations handles PUT /v1/projects/{id}/photos/duration/all
func (h *Handler) UpdateAllPhotoDurations(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	var req models.AllPhotosDurationUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Duration <= 0 {
		respondError(w, http.StatusBadRequest, "Duration must be positive")
		return
	}

	for i := range project.Photos {
		project.Photos[i].Duration = req.Duration
	}

	if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
		log.Printf("[API] Failed to save durations: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save durations")
		return
	}

	respondJSON(w, http.StatusOK, project)
}

// UploadMusic handles POST /v1/projects/{id}/music
// Accepts a single mp3 under the "file" field; replaces any existing track.
func (h *Handler) UploadMusic(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	f, fh, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No music file provided")
		return
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".mp3" {
		respondError(w, http.StatusBadRequest, "Only mp3 files are supported")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	trackID := uuid.New()
	filename := trackID.String() + ext
	if err := h.storage.Upload(r.Context(), storage.BucketMusic, filename, data, "audio/mpeg"); err != nil {
		log.Printf("[API] Music upload failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to store music")
		return
	}

	analysis := h.analyzeUpload(r, filename, data)

	if project.Music != nil {
		h.deleteBlob(r, storage.BucketMusic, project.Music.Filename)
	}

	track := &models.MusicTrack{
		ID:           trackID,
		Filename:     filename,
		OriginalName: fh.Filename,
		Duration:     analysis.Duration,
		Tempo:        analysis.Tempo,
		Beats:        analysis.Beats,
	}
	if err := h.db.UpdateMusic(r.Context(), project.ID, track); err != nil {
		log.Printf("[API] Failed to save music: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save music")
		return
	}

	respondJSON(w, http.StatusCreated, track)
}

// SyncToBeats handles POST /v1/projects/{id}/sync-to-beats
// Sets every photo's duration to one beat interval of the project's track.
func (h *Handler) SyncToBeats(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	if project.Music == nil {
		respondError(w, http.StatusBadRequest, "Project has no music to sync to")
		return
	}

	interval := models.BeatInterval(project.Music.Tempo, project.Settings.GlobalRhythmMultiplier)
	for i := range project.Photos {
		project.Photos[i].Duration = interval
	}

	if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
		log.Printf("[API] Failed to save durations: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save durations")
		return
	}

	respondJSON(w, http.StatusOK, models.SyncToBeatsResponse{
		Synced:       true,
		BeatInterval: interval,
	})
}

// UpdateSettings handles PUT /v1/projects/{id}/settings
// A format change re-renders every photo preview for the new aspect.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	var req models.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings := project.Settings
	if req.Format != nil {
		if *req.Format != models.FormatHorizontal && *req.Format != models.FormatVertical {
			respondError(w, http.StatusBadRequest, "Invalid format")
			return
		}
		settings.Format = *req.Format
	}
	if req.Resolution != nil {
		if *req.Resolution != models.Resolution720p && *req.Resolution != models.Resolution1080p {
			respondError(w, http.StatusBadRequest, "Invalid resolution")
			return
		}
		settings.Resolution = *req.Resolution
	}
	if req.Transition != nil {
		if *req.Transition != models.TransitionNone && *req.Transition != models.TransitionFade {
			respondError(w, http.StatusBadRequest, "Invalid transition")
			return
		}
		settings.Transition = *req.Transition
	}
	if req.TransitionDuration != nil {
		if *req.TransitionDuration < 0 {
			respondError(w, http.StatusBadRequest, "Transition duration cannot be negative")
			return
		}
		settings.TransitionDuration = *req.TransitionDuration
	}
	if req.GlobalRhythmMultiplier != nil {
		if *req.GlobalRhythmMultiplier <= 0 {
			respondError(w, http.StatusBadRequest, "Rhythm multiplier must be positive")
			return
		}
		settings.GlobalRhythmMultiplier = *req.GlobalRhythmMultiplier
	}
	if req.AnimationType != nil {
		switch *req.AnimationType {
		case models.AnimationZoom, models.AnimationPan, models.AnimationBoth:
		default:
			respondError(w, http.StatusBadRequest, "Invalid animation type")
			return
		}
		settings.AnimationType = *req.AnimationType
	}

	formatChanged := settings.Format != project.Settings.Format
	project.Settings = settings

	if err := h.db.UpdateSettings(r.Context(), project.ID, settings); err != nil {
		log.Printf("[API] Failed to save settings: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}

	if formatChanged {
		h.regeneratePreviews(r, project)
	}

	respondJSON(w, http.StatusOK, project)
}

// StartExport handles POST /v1/projects/{id}/export
func (h *Handler) StartExport(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	if len(project.Photos) == 0 {
		respondError(w, http.StatusBadRequest, "Project has no photos to export")
		return
	}

	if err := h.db.StartExport(r.Context(), project.ID); err != nil {
		if errors.Is(err, db.ErrExportInProgress) {
			respondError(w, http.StatusConflict, "An export is already processing")
			return
		}
		log.Printf("[API] Failed to start export: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to start export")
		return
	}

	if err := h.queue.EnqueueExport(r.Context(), project.ID); err != nil {
		log.Printf("[API] Failed to enqueue export: %v", err)
		// Roll the job back so a retry isn't rejected as concurrent.
		if ferr := h.db.FailExport(r.Context(), project.ID); ferr != nil {
			log.Printf("[API] Failed to roll back export state: %v", ferr)
		}
		respondError(w, http.StatusInternalServerError, "Failed to enqueue export")
		return
	}

	respondJSON(w, http.StatusAccepted, models.ExportStatusResponse{
		Status:   models.ExportStatusProcessing,
		Progress: 0,
	})
}

// ExportStatus handles GET /v1/projects/{id}/export/status
func (h *Handler) ExportStatus(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, models.ExportStatusResponse{
		Status:   project.Export.Status,
		Progress: project.Export.Progress,
		File:     project.Export.OutputFile,
	})
}

// ExportDownload handles GET /v1/projects/{id}/export/download
func (h *Handler) ExportDownload(w http.ResponseWriter, r *http.Request) {
	project, ok := h.loadProject(w, r)
	if !ok {
		return
	}

	if project.Export.Status != models.ExportStatusCompleted || project.Export.OutputFile == nil {
		respondError(w, http.StatusNotFound, "No completed export available")
		return
	}

	obj, err := h.storage.Open(r.Context(), storage.BucketExports, *project.Export.OutputFile)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			respondError(w, http.StatusNotFound, "Export file is missing")
			return
		}
		log.Printf("[API] Failed to open export: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to open export")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", *project.Export.OutputFile))
	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("[API] Export download interrupted: %v", err)
	}
}

// ServeFile handles GET /files/{bucket}/{filename}
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	filename := chi.URLParam(r, "filename")

	// Exports stay behind the authed download handler.
	switch bucket {
	case storage.BucketPhotos, storage.BucketThumbnails, storage.BucketPreviews,
		storage.BucketMusic:
	default:
		respondError(w, http.StatusNotFound, "Unknown bucket")
		return
	}

	obj, err := h.storage.Open(r.Context(), bucket, filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			respondError(w, http.StatusNotFound, "File not found")
			return
		}
		log.Printf("[API] Failed to open file: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to open file")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", contentTypeForExt(strings.ToLower(filepath.Ext(filename))))
	if _, err := io.Copy(w, obj); err != nil {
		log.Printf("[API] File download interrupted: %v", err)
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadProject resolves the {id} URL param and fetches the project, writing
// the error response itself when that fails.
func (h *Handler) loadProject(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return nil, false
	}

	project, err := h.db.GetProject(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrProjectNotFound) {
			respondError(w, http.StatusNotFound, "Project not found")
			return nil, false
		}
		log.Printf("[API] Failed to load project %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load project")
		return nil, false
	}
	return project, true
}

// storeThumbnail renders and uploads a photo's listing thumbnail, returning
// its blob name.
func (h *Handler) storeThumbnail(r *http.Request, photoID uuid.UUID, src image.Image) (string, error) {
	data, err := services.RenderThumbnail(src)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_thumb.jpg", photoID)
	if err := h.storage.Upload(r.Context(), storage.BucketThumbnails, name, data, "image/jpeg"); err != nil {
		return "", err
	}
	return name, nil
}

// storePreview renders and uploads the format-dependent preview composite.
// The name is stable per photo so a format change overwrites in place.
func (h *Handler) storePreview(r *http.Request, photoID uuid.UUID, src image.Image, format models.Format) (string, error) {
	data, err := services.RenderPreview(src, format)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_preview.jpg", photoID)
	if err := h.storage.Upload(r.Context(), storage.BucketPreviews, name, data, "image/jpeg"); err != nil {
		return "", err
	}
	return name, nil
}

func (h *Handler) deleteBlob(r *http.Request, bucket, filename string) {
	if err := h.storage.Delete(r.Context(), bucket, filename); err != nil {
		log.Printf("[API] Failed to delete %s/%s: %v", bucket, filename, err)
	}
}

// analyzeUpload runs the track analyzer against a temp copy of the upload.
func (h *Handler) analyzeUpload(r *http.Request, filename string, data []byte) services.TrackAnalysis {
	tmp, err := os.CreateTemp("", "music-*"+filepath.Ext(filename))
	if err != nil {
		log.Printf("[API] Failed to spool music for analysis: %v", err)
		return services.TrackAnalysis{Duration: 180, Tempo: 120, Beats: []float64{}}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		log.Printf("[API] Failed to spool music for analysis: %v", err)
		return services.TrackAnalysis{Duration: 180, Tempo: 120, Beats: []float64{}}
	}
	tmp.Close()

	return h.analyzer.Analyze(r.Context(), tmp.Name())
}

// regeneratePreviews re-renders every photo preview after a format change,
// creating previews missed at upload time. Failures are logged; stale
// previews are better than a failed settings save.
func (h *Handler) regeneratePreviews(r *http.Request, project *models.Project) {
	changed := false
	for i := range project.Photos {
		photo := &project.Photos[i]
		data, err := h.storage.Download(r.Context(), storage.BucketPhotos, photo.Filename)
		if err != nil {
			log.Printf("[API] Preview regen: download failed for %s: %v", photo.Filename, err)
			continue
		}
		src, err := services.DecodeImage(bytes.NewReader(data))
		if err != nil {
			log.Printf("[API] Preview regen: decode failed for %s: %v", photo.Filename, err)
			continue
		}
		preview, err := services.RenderPreview(src, project.Settings.Format)
		if err != nil {
			log.Printf("[API] Preview regen: render failed for %s: %v", photo.Filename, err)
			continue
		}
		name := fmt.Sprintf("%s_preview.jpg", photo.ID)
		if err := h.storage.Upload(r.Context(), storage.BucketPreviews, name, preview, "image/jpeg"); err != nil {
			log.Printf("[API] Preview regen: upload failed for %s: %v", photo.Filename, err)
			continue
		}
		if photo.Preview == nil || *photo.Preview != name {
			photo.Preview = &name
			changed = true
		}
	}

	if changed {
		if err := h.db.UpdatePhotos(r.Context(), project.ID, project.Photos); err != nil {
			log.Printf("[API] Preview regen: failed to save photo records: %v", err)
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func contentTypeForExt(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
