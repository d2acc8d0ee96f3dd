package services

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/realtime"
	"github.com/camden-git/labelsysbackend/repository"
)

// SplitResult counts the images placed in each split.
type SplitResult struct {
	Train int `json:"train"`
	Val   int `json:"val"`
}

// DatasetSplitter assigns images of a project to the train or val split.
type DatasetSplitter struct {
	db       *gorm.DB
	projects *repository.ProjectRepository
	images   *repository.ImageRepository
	events   Notifier

	mu  sync.Mutex
	rng *rand.Rand
}

// NewDatasetSplitter builds a splitter drawing from rng. A nil rng uses a
// time-seeded source, so splits differ between runs; pass a seeded source
// for reproducible splits.
func NewDatasetSplitter(db *gorm.DB, rng *rand.Rand, events Notifier) *DatasetSplitter {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &DatasetSplitter{
		db:       db,
		projects: repository.NewProjectRepository(db),
		images:   repository.NewImageRepository(db),
		events:   notifierOrNop(events),
		rng:      rng,
	}
}

// shuffle permutes ids in place. The source is not safe for concurrent use.
func (s *DatasetSplitter) shuffle(ids []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// AutoSplit shuffles the project's images and puts the first
// floor(N*trainRatio) in train and the rest in val, overwriting any earlier
// split.
func (s *DatasetSplitter) AutoSplit(ctx context.Context, projectID uuid.UUID, trainRatio float64) (SplitResult, error) {
	if !(trainRatio > 0 && trainRatio <= 1) {
		return SplitResult{}, apperr.Invalid("train_ratio must be in (0, 1]")
	}
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return SplitResult{}, internal(err, "failed to load project")
	}

	var result SplitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		images := s.images.WithTx(tx)
		list, err := images.ListByProject(ctx, projectID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(list))
		for i, img := range list {
			ids[i] = img.ID
		}
		s.shuffle(ids)

		cut := int(math.Floor(float64(len(ids)) * trainRatio))
		train, val := models.SplitTrain, models.SplitVal
		if err := images.SetSplit(ctx, ids[:cut], &train); err != nil {
			return err
		}
		if err := images.SetSplit(ctx, ids[cut:], &val); err != nil {
			return err
		}
		result = SplitResult{Train: cut, Val: len(ids) - cut}
		return nil
	})
	if err != nil {
		return SplitResult{}, internal(err, "failed to split dataset")
	}

	logger.L().Info("dataset split",
		zap.String("project_id", projectID.String()),
		zap.Float64("train_ratio", trainRatio),
		zap.Int("train", result.Train),
		zap.Int("val", result.Val),
	)
	s.events.Broadcast(realtime.Event{
		Type:      realtime.EventSplitChanged,
		ProjectID: projectID.String(),
		Extra:     map[string]interface{}{"train": result.Train, "val": result.Val},
	})
	return result, nil
}

// SetSplit overrides the split of one image. A nil split clears it, which
// the exporter treats as train.
func (s *DatasetSplitter) SetSplit(ctx context.Context, projectID, imageID uuid.UUID, split *string) (*models.Image, error) {
	if split != nil && !models.IsValidSplit(*split) {
		return nil, apperr.Newf(apperr.CodeInvalid, "split must be %q, %q or null", models.SplitTrain, models.SplitVal)
	}
	image, err := s.images.GetInProject(ctx, projectID, imageID)
	if err != nil {
		return nil, internal(err, "failed to load image")
	}
	if err := s.images.SetSplit(ctx, []uuid.UUID{imageID}, split); err != nil {
		return nil, internal(err, "failed to set split")
	}
	image.DatasetSplit = split

	s.events.Broadcast(realtime.Event{
		Type:      realtime.EventSplitChanged,
		ProjectID: projectID.String(),
		ImageID:   imageID.String(),
	})
	return image, nil
}
