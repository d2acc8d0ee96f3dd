package workers

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/metrics"
	"github.com/camden-git/labelsysbackend/realtime"
)

// jobTimeout bounds the database write that records a finished thumbnail.
const jobTimeout = 30 * time.Second

type ThumbnailJob struct {
	ImageID     uuid.UUID
	ProjectID   uuid.UUID
	StoragePath string // original, relative to the media store
}

// Thumbnailer decodes an original and stores its thumbnail.
type Thumbnailer interface {
	Thumbnail(originalRelPath, dirHint string, maxSize int) (string, error)
}

// ThumbnailRecorder persists the generated thumbnail path.
type ThumbnailRecorder interface {
	SetThumbnailPath(ctx context.Context, id uuid.UUID, thumbPath string) error
}

// Broadcaster publishes realtime events.
type Broadcaster interface {
	Broadcast(event realtime.Event)
}

type ThumbnailGenerator struct {
	JobQueue chan ThumbnailJob
	MaxSize  int
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[uuid.UUID]bool
	Mutex    sync.Mutex

	thumbs   Thumbnailer
	recorder ThumbnailRecorder
	events   Broadcaster
	metrics  *metrics.Metrics
	stopOnce sync.Once
}

func NewThumbnailGenerator(thumbs Thumbnailer, recorder ThumbnailRecorder, events Broadcaster, m *metrics.Metrics, maxSize, queueSize, numWorkers int) *ThumbnailGenerator {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	gen := &ThumbnailGenerator{
		JobQueue: make(chan ThumbnailJob, queueSize),
		MaxSize:  maxSize,
		StopChan: make(chan struct{}),
		Pending:  make(map[uuid.UUID]bool),
		thumbs:   thumbs,
		recorder: recorder,
		events:   events,
		metrics:  m,
	}

	gen.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go gen.worker(i)
	}
	logger.L().Info("started thumbnail workers", zap.Int("workers", numWorkers), zap.Int("queue_size", queueSize))

	return gen
}

func (tg *ThumbnailGenerator) worker(id int) {
	defer tg.Wg.Done()
	log := logger.L().With(zap.Int("worker", id))
	log.Debug("thumbnail worker started")
	for {
		select {
		case job, ok := <-tg.JobQueue:
			if !ok {
				log.Debug("thumbnail worker stopping: job queue closed")
				return
			}
			tg.metrics.ThumbnailQueueDepth(len(tg.JobQueue))
			tg.processJob(log, job)
			tg.Mutex.Lock()
			delete(tg.Pending, job.ImageID)
			tg.Mutex.Unlock()

		case <-tg.StopChan:
			log.Debug("thumbnail worker stopping: stop signal received")
			return
		}
	}
}

func (tg *ThumbnailGenerator) processJob(log *zap.Logger, job ThumbnailJob) {
	log = log.With(zap.String("image_id", job.ImageID.String()))

	thumbPath, err := tg.thumbs.Thumbnail(job.StoragePath, job.ProjectID.String(), tg.MaxSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("original file not found, skipping thumbnail generation", zap.String("path", job.StoragePath))
		} else {
			log.Error("failed to generate thumbnail", zap.String("path", job.StoragePath), zap.Error(err))
		}
		tg.metrics.ThumbnailJob("failure")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := tg.recorder.SetThumbnailPath(ctx, job.ImageID, thumbPath); err != nil {
		log.Error("failed to record thumbnail", zap.Error(err))
		tg.metrics.ThumbnailJob("failure")
		return
	}

	tg.metrics.ThumbnailJob("success")
	if tg.events != nil {
		tg.events.Broadcast(realtime.Event{
			Type:      realtime.EventThumbnailReady,
			ProjectID: job.ProjectID.String(),
			ImageID:   job.ImageID.String(),
		})
	}
	log.Debug("generated thumbnail", zap.String("thumbnail", thumbPath))
}

// QueueJob enqueues a job without blocking. It returns false when the image
// is already pending or the queue is full.
func (tg *ThumbnailGenerator) QueueJob(job ThumbnailJob) bool {
	tg.Mutex.Lock()
	if tg.Pending[job.ImageID] {
		tg.Mutex.Unlock()
		return false
	}
	tg.Pending[job.ImageID] = true
	tg.Mutex.Unlock()

	select {
	case tg.JobQueue <- job:
		tg.metrics.ThumbnailQueueDepth(len(tg.JobQueue))
		return true
	default:
		logger.L().Warn("thumbnail job queue full, dropping job", zap.String("image_id", job.ImageID.String()))
		tg.metrics.ThumbnailJob("dropped")
		tg.Mutex.Lock()
		delete(tg.Pending, job.ImageID)
		tg.Mutex.Unlock()
		return false
	}
}

// Stop signals the workers and waits for in-flight jobs to finish. Jobs
// still queued are abandoned.
func (tg *ThumbnailGenerator) Stop() {
	tg.stopOnce.Do(func() {
		logger.L().Info("stopping thumbnail generator")
		close(tg.StopChan)
		tg.Wg.Wait()
		logger.L().Info("all thumbnail workers stopped")
	})
}
