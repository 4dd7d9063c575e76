package worker

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maxmoniot/DiaporamaMp4/internal/models"
	"github.com/maxmoniot/DiaporamaMp4/internal/queue"
	"github.com/maxmoniot/DiaporamaMp4/internal/services"
	"github.com/maxmoniot/DiaporamaMp4/internal/storage"
)

// ProjectStore is the slice of the database the export pipeline needs.
type ProjectStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateExportProgress(ctx context.Context, id uuid.UUID, progress float64) error
	CompleteExport(ctx context.Context, id uuid.UUID, outputFile string) error
	FailExport(ctx context.Context, id uuid.UUID) error
}

// BlobStore moves rendered artifacts and music between disk and object storage.
type BlobStore interface {
	UploadFile(ctx context.Context, bucket, filename, localPath, contentType string) error
	DownloadToFile(ctx context.Context, bucket, filename, localPath string) error
}

// JobQueue hands out export jobs.
type JobQueue interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

// FrameRenderer streams a project's frames in order.
type FrameRenderer interface {
	Render(ctx context.Context, project *models.Project, out chan<- *image.NRGBA, onProgress func(float64)) error
}

// VideoEncoder assembles a frame stream into a video file.
type VideoEncoder interface {
	Encode(ctx context.Context, frames <-chan *image.NRGBA, outPath string) (int, error)
}

// AudioMuxer attaches the soundtrack, falling back to silent video.
type AudioMuxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outPath string) (services.MuxResult, error)
}

// Worker consumes export jobs and drives the render pipeline for each.
type Worker struct {
	store     ProjectStore
	blobs     BlobStore
	queue     JobQueue
	renderer  FrameRenderer
	encoder   VideoEncoder
	muxer     AudioMuxer
	tempDir   string
	frameSize int
}

func New(store ProjectStore, blobs BlobStore, q JobQueue, renderer FrameRenderer, encoder VideoEncoder, muxer AudioMuxer, tempDir string, frameQueueSize int) *Worker {
	if frameQueueSize < 1 {
		frameQueueSize = 1
	}
	return &Worker{
		store:     store,
		blobs:     blobs,
		queue:     q,
		renderer:  renderer,
		encoder:   encoder,
		muxer:     muxer,
		tempDir:   tempDir,
		frameSize: frameQueueSize,
	}
}

// Start blocks, polling the export queue until ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	log.Println("[Worker] Started, waiting for export jobs...")
	for {
		select {
		case <-ctx.Done():
			log.Println("[Worker] Shutting down")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queue.QueueExportProject, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("[Worker] Shutting down")
				return
			}
			log.Printf("[Worker] Dequeue error: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if job == nil {
			continue
		}

		log.Printf("[Worker] Processing export job %s for project %s", job.ID, job.ProjectID)
		w.ProcessExport(ctx, job.ProjectID)
	}
}

// ProcessExport runs the full pipeline for one project. Whatever goes wrong,
// the job ends in completed or error, never stuck in processing.
func (w *Worker) ProcessExport(ctx context.Context, projectID uuid.UUID) {
	var failed bool
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Worker] Panic during export of %s: %v", projectID, r)
			failed = true
		}
		if failed {
			if err := w.store.FailExport(context.Background(), projectID); err != nil {
				log.Printf("[Worker] Failed to mark export %s as errored: %v", projectID, err)
			}
		}
	}()

	if err := w.runExport(ctx, projectID); err != nil {
		log.Printf("[Worker] Export of %s failed: %v", projectID, err)
		failed = true
		return
	}
	log.Printf("[Worker] Export of %s completed", projectID)
}

func (w *Worker) runExport(ctx context.Context, projectID uuid.UUID) error {
	project, err := w.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	jobDir, err := os.MkdirTemp(w.tempDir, "export-")
	if err != nil {
		return fmt.Errorf("failed to create job dir: %w", err)
	}
	defer os.RemoveAll(jobDir)

	audioPath := w.fetchAudio(ctx, project, jobDir)

	videoPath := filepath.Join(jobDir, "video.mp4")
	frames := make(chan *image.NRGBA, w.frameSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.renderer.Render(gctx, project, frames, func(progress float64) {
			if err := w.store.UpdateExportProgress(gctx, projectID, progress); err != nil {
				log.Printf("[Worker] Progress update failed for %s: %v", projectID, err)
			}
		})
	})

	var frameCount int
	g.Go(func() error {
		n, err := w.encoder.Encode(gctx, frames, videoPath)
		frameCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("[Worker] Encoded %d frames for %s", frameCount, projectID)

	if err := w.store.UpdateExportProgress(ctx, projectID, 90); err != nil {
		log.Printf("[Worker] Progress update failed for %s: %v", projectID, err)
	}

	finalPath := filepath.Join(jobDir, "final.mp4")
	result, err := w.muxer.Mux(ctx, videoPath, audioPath, finalPath)
	if err != nil {
		return fmt.Errorf("failed to produce output: %w", err)
	}
	if result == services.MuxVideoOnly {
		log.Printf("[Worker] Export of %s is video-only", projectID)
	}

	outputFile := fmt.Sprintf("%s.mp4", projectID)
	if err := w.blobs.UploadFile(ctx, storage.BucketExports, outputFile, finalPath, "video/mp4"); err != nil {
		return fmt.Errorf("failed to upload export: %w", err)
	}

	if err := w.store.CompleteExport(ctx, projectID, outputFile); err != nil {
		return fmt.Errorf("failed to mark export complete: %w", err)
	}
	return nil
}

// fetchAudio downloads the project's music track if there is one. Any failure
// degrades to a silent export.
func (w *Worker) fetchAudio(ctx context.Context, project *models.Project, jobDir string) string {
	if project.Music == nil {
		return ""
	}
	audioPath := filepath.Join(jobDir, "audio"+filepath.Ext(project.Music.Filename))
	if err := w.blobs.DownloadToFile(ctx, storage.BucketMusic, project.Music.Filename, audioPath); err != nil {
		log.Printf("[Worker] Music download failed for %s, exporting silent: %v", project.ID, err)
		return ""
	}
	return audioPath
}
