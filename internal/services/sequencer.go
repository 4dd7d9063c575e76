package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/maxmoniot/DiaporamaMp4/internal/models"
	"github.com/maxmoniot/DiaporamaMp4/internal/storage"
)

const (
	// Output frame rate of the rendered slideshow.
	FramesPerSecond = 30

	// Buffered frames per in-flight photo. Keeps memory bounded while the
	// emitter is still draining earlier photos.
	perPhotoFrameBuffer = 30
)

var (
	ErrNoPhotos = errors.New("project has no photos")
	ErrNoFrames = errors.New("no frames could be rendered")
)

// PhotoSource fetches photo blobs for rendering.
type PhotoSource interface {
	Download(ctx context.Context, bucket, filename string) ([]byte, error)
}

// Sequencer turns an ordered photo list into a single stream of video frames.
type Sequencer struct {
	photos  PhotoSource
	workers int
}

func NewSequencer(photos PhotoSource, workers int) *Sequencer {
	if workers < 1 {
		workers = 1
	}
	return &Sequencer{photos: photos, workers: workers}
}

// Render streams every frame of the project, in photo order, into out. Photos
// are rendered concurrently but re-joined strictly in order before emission.
// Missing or undecodable photos are skipped. onProgress, if non-nil, is
// called after each photo with a 0..80 percentage. Render closes out before
// returning.
func (s *Sequencer) Render(ctx context.Context, project *models.Project, out chan<- *image.NRGBA, onProgress func(float64)) error {
	defer close(out)

	photos := project.PhotosInOrder()
	if len(photos) == 0 {
		return ErrNoPhotos
	}

	width, height := Resolve(project.Settings.Resolution, project.Settings.Format)

	fadeFrames := 0
	if project.Settings.Transition == models.TransitionFade {
		fadeFrames = int(math.Round(project.Settings.TransitionDuration * FramesPerSecond))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	channels := make([]chan *image.NRGBA, len(photos))
	for i := range channels {
		channels[i] = make(chan *image.NRGBA, perPhotoFrameBuffer)
	}

	// Submission order matters: with a bounded group, workers start in photo
	// order, so the emitter draining channel 0 always unblocks the pool.
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := range photos {
			i := i
			photo := photos[i]
			g.Go(func() error {
				defer close(channels[i])
				return s.renderPhoto(gctx, photo, project.Settings.AnimationType, width, height, channels[i])
			})
		}
	}()

	var (
		emitted  int64
		prevLast *image.NRGBA
	)
	for i := range channels {
		frameIdx := 0
		var last *image.NRGBA
		for frame := range channels[i] {
			if prevLast != nil && frameIdx < fadeFrames {
				alpha := float64(frameIdx+1) / float64(fadeFrames)
				frame = blendFrames(prevLast, frame, alpha)
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				drainRemaining(channels[i:])
				<-submitted
				g.Wait()
				return ctx.Err()
			}
			emitted++
			last = frame
			frameIdx++
		}
		if last != nil {
			prevLast = last
		}
		if onProgress != nil {
			onProgress(float64(i+1) / float64(len(photos)) * 80)
		}
	}

	<-submitted
	if err := g.Wait(); err != nil {
		return err
	}
	if emitted == 0 {
		return ErrNoFrames
	}
	return nil
}

// renderPhoto writes one photo's animated frames to ch. Fetch and decode
// failures skip the photo rather than failing the render.
func (s *Sequencer) renderPhoto(ctx context.Context, photo models.Photo, anim models.AnimationType, width, height int, ch chan<- *image.NRGBA) error {
	data, err := s.photos.Download(ctx, storage.BucketPhotos, photo.Filename)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[Sequencer] Skipping photo %s: %v", photo.Filename, err)
		return nil
	}

	src, err := DecodeImage(bytes.NewReader(data))
	if err != nil {
		log.Printf("[Sequencer] Skipping undecodable photo %s: %v", photo.Filename, err)
		return nil
	}

	duration := photo.Duration
	if duration <= 0 {
		duration = models.DefaultPhotoDuration
	}
	frameCount := int(math.Round(duration * FramesPerSecond))
	if frameCount < 1 {
		frameCount = 1
	}

	base := ComposeFrame(src, width, height)
	for i := 0; i < frameCount; i++ {
		select {
		case ch <- AnimateFrame(base, i, frameCount, anim):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// blendFrames cross-fades two same-sized frames: alpha 0 is all a, 1 all b.
func blendFrames(a, b *image.NRGBA, alpha float64) *image.NRGBA {
	out := image.NewNRGBA(b.Bounds())
	for i := range out.Pix {
		out.Pix[i] = uint8(float64(a.Pix[i])*(1-alpha) + float64(b.Pix[i])*alpha)
	}
	return out
}

func drainRemaining(chs []chan *image.NRGBA) {
	for _, ch := range chs {
		go func(c chan *image.NRGBA) {
			for range c {
			}
		}(ch)
	}
}
