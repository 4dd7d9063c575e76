package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxmoniot/DiaporamaMp4/internal/db"
	"github.com/maxmoniot/DiaporamaMp4/internal/models"
	"github.com/maxmoniot/DiaporamaMp4/internal/services"
	"github.com/maxmoniot/DiaporamaMp4/internal/storage"
)

type fakeProjectStore struct {
	project    *models.Project
	photoSaves int
	startErr   error
	failed     bool
}

func (s *fakeProjectStore) CreateProject(_ context.Context, project *models.Project) error {
	s.project = project
	return nil
}

func (s *fakeProjectStore) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if s.project == nil || s.project.ID != id {
		return nil, db.ErrProjectNotFound
	}
	return s.project, nil
}

func (s *fakeProjectStore) UpdatePhotos(_ context.Context, _ uuid.UUID, photos []models.Photo) error {
	s.photoSaves++
	s.project.Photos = photos
	return nil
}

func (s *fakeProjectStore) UpdateMusic(_ context.Context, _ uuid.UUID, track *models.MusicTrack) error {
	s.project.Music = track
	return nil
}

func (s *fakeProjectStore) UpdateSettings(_ context.Context, _ uuid.UUID, settings models.ProjectSettings) error {
	s.project.Settings = settings
	return nil
}

func (s *fakeProjectStore) StartExport(_ context.Context, _ uuid.UUID) error {
	return s.startErr
}

func (s *fakeProjectStore) FailExport(_ context.Context, _ uuid.UUID) error {
	s.failed = true
	return nil
}

type fakeBlobStore struct {
	objects map[string][]byte
	uploads int
	failAt  int // fail the nth Upload call, 0 = never
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (b *fakeBlobStore) Upload(_ context.Context, bucket, filename string, data []byte, _ string) error {
	b.uploads++
	if b.failAt > 0 && b.uploads == b.failAt {
		return errStorageDown
	}
	b.objects[bucket+"/"+filename] = data
	return nil
}

func (b *fakeBlobStore) Download(_ context.Context, bucket, filename string) ([]byte, error) {
	data, ok := b.objects[bucket+"/"+filename]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (b *fakeBlobStore) Open(_ context.Context, bucket, filename string) (io.ReadCloser, error) {
	data, ok := b.objects[bucket+"/"+filename]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlobStore) Delete(_ context.Context, bucket, filename string) error {
	delete(b.objects, bucket+"/"+filename)
	return nil
}

var errStorageDown = errors.New("storage unavailable")

type fakeExportQueue struct {
	enqueued []uuid.UUID
}

func (q *fakeExportQueue) EnqueueExport(_ context.Context, projectID uuid.UUID) error {
	q.enqueued = append(q.enqueued, projectID)
	return nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, _ string) services.TrackAnalysis {
	return services.TrackAnalysis{Duration: 60, Tempo: 120, Beats: []float64{0.5, 1.0}}
}

func newTestServer(store *fakeProjectStore, blobs *fakeBlobStore) (*fakeExportQueue, http.Handler) {
	q := &fakeExportQueue{}
	h := NewHandler(store, q, blobs, fakeAnalyzer{})
	return q, NewRouter(h, RouterConfig{})
}

func emptyProject() *models.Project {
	return &models.Project{
		ID:       uuid.New(),
		Photos:   []models.Photo{},
		Settings: models.DefaultSettings(),
	}
}

func pngUpload(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(w, h, color.NRGBA{77, 77, 77, 255})))
	return buf.Bytes()
}

type uploadPart struct {
	name string
	data []byte
}

func photosRequest(t *testing.T, projectID uuid.UUID, parts []uploadPart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := mw.CreateFormFile("photos", p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/projects/"+projectID.String()+"/photos", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadPhotosSkipsInvalidFiles(t *testing.T) {
	store := &fakeProjectStore{project: emptyProject()}
	blobs := newFakeBlobStore()
	_, router := newTestServer(store, blobs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, photosRequest(t, store.project.ID, []uploadPart{
		{"good.png", pngUpload(t, 300, 200)},
		{"notes.txt", []byte("not a photo")},
		{"corrupt.png", []byte("garbage")},
	}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.UploadPhotosResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Uploaded)
	assert.Equal(t, 2, resp.Skipped)
	require.Len(t, store.project.Photos, 1)

	// Skipped files must leave nothing behind in any bucket.
	assert.Len(t, blobs.objects, 3, "only the good photo's original, thumbnail, and preview")
	photo := store.project.Photos[0]
	assert.Contains(t, blobs.objects, storage.BucketPhotos+"/"+photo.Filename)
	assert.Equal(t, models.OrientationLandscape, photo.Orientation)
}

func TestUploadPhotosAllSkipped(t *testing.T) {
	store := &fakeProjectStore{project: emptyProject()}
	blobs := newFakeBlobStore()
	_, router := newTestServer(store, blobs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, photosRequest(t, store.project.ID, []uploadPart{
		{"notes.txt", []byte("not a photo")},
	}))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.UploadPhotosResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Uploaded)
	assert.Equal(t, 1, resp.Skipped)
	assert.Empty(t, blobs.objects)
	assert.Zero(t, store.photoSaves)
}

func TestUploadPhotosStorageFailureKeepsRecordedState(t *testing.T) {
	store := &fakeProjectStore{project: emptyProject()}
	blobs := newFakeBlobStore()
	// Each stored photo takes three uploads (original, thumbnail, preview),
	// so the fourth call is the second photo's original.
	blobs.failAt = 4
	_, router := newTestServer(store, blobs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, photosRequest(t, store.project.ID, []uploadPart{
		{"first.png", pngUpload(t, 300, 200)},
		{"second.png", pngUpload(t, 200, 300)},
	}))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// The first photo's blobs exist, so its record must too.
	require.Len(t, store.project.Photos, 1)
	photo := store.project.Photos[0]
	assert.Equal(t, "first.png", photo.OriginalName)
	assert.Contains(t, blobs.objects, storage.BucketPhotos+"/"+photo.Filename)
	assert.Len(t, blobs.objects, 3)
}

func TestFormatChangeRegeneratesMissingPreview(t *testing.T) {
	store := &fakeProjectStore{project: emptyProject()}
	blobs := newFakeBlobStore()
	_, router := newTestServer(store, blobs)

	// A photo whose preview generation failed at upload time.
	photoID := uuid.New()
	store.project.Photos = []models.Photo{{
		ID:       photoID,
		Filename: photoID.String() + ".png",
		Duration: 2,
	}}
	blobs.objects[storage.BucketPhotos+"/"+photoID.String()+".png"] = pngUpload(t, 300, 200)

	body := strings.NewReader(`{"format":"vertical"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/projects/"+store.project.ID.String()+"/settings", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	photo := store.project.Photos[0]
	require.NotNil(t, photo.Preview, "format change must backfill a missing preview")

	data, ok := blobs.objects[storage.BucketPreviews+"/"+*photo.Preview]
	require.True(t, ok)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 540, img.Bounds().Dx(), "preview must use the new aspect")
	assert.Equal(t, 960, img.Bounds().Dy())
	assert.Positive(t, store.photoSaves, "backfilled preview must be persisted")
}

func TestServeFileExportsBucketHidden(t *testing.T) {
	store := &fakeProjectStore{project: emptyProject()}
	blobs := newFakeBlobStore()
	blobs.objects[storage.BucketExports+"/secret.mp4"] = []byte("video")
	_, router := newTestServer(store, blobs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/exports/secret.mp4", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "exports are only reachable through the download handler")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/photos/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartExportConflict(t *testing.T) {
	store := &fakeProjectStore{project: emptyProject()}
	store.project.Photos = []models.Photo{{ID: uuid.New(), Filename: "a.png", Duration: 2}}
	store.startErr = db.ErrExportInProgress
	q, router := newTestServer(store, newFakeBlobStore())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/projects/"+store.project.ID.String()+"/export", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, q.enqueued, "a rejected start must not enqueue a job")
}
