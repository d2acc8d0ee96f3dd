package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/metrics"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/realtime"
	"github.com/camden-git/labelsysbackend/repository"
)

// AnnotationSpec is one annotation of a bulk replace request.
type AnnotationSpec struct {
	ClassID  uuid.UUID       `json:"class_id"`
	Vertices models.Vertices `json:"vertices"`
}

// AnnotationStore persists the annotations of images.
type AnnotationStore struct {
	db          *gorm.DB
	images      *repository.ImageRepository
	classes     *repository.ClassRepository
	annotations *repository.AnnotationRepository
	events      Notifier
	metrics     *metrics.Metrics
}

func NewAnnotationStore(db *gorm.DB, events Notifier, m *metrics.Metrics) *AnnotationStore {
	return &AnnotationStore{
		db:          db,
		images:      repository.NewImageRepository(db),
		classes:     repository.NewClassRepository(db),
		annotations: repository.NewAnnotationRepository(db),
		events:      notifierOrNop(events),
		metrics:     m,
	}
}

func validateVertices(vs models.Vertices) error {
	if len(vs) == 0 {
		return apperr.Invalid("an annotation needs at least one vertex")
	}
	if !vs.Valid() {
		return apperr.Invalid("vertex coordinates must be finite numbers")
	}
	return nil
}

func (s *AnnotationStore) changed(image *models.Image, op string) {
	s.metrics.AnnotationWrite(op)
	s.events.Broadcast(realtime.Event{
		Type:      realtime.EventAnnotationsChanged,
		ProjectID: image.ProjectID.String(),
		ImageID:   image.ID.String(),
		Extra:     map[string]interface{}{"op": op},
	})
}

// List returns an image's annotations in creation order
func (s *AnnotationStore) List(ctx context.Context, imageID uuid.UUID) ([]models.Annotation, error) {
	if _, err := s.images.GetByID(ctx, imageID); err != nil {
		return nil, internal(err, "failed to load image")
	}
	annotations, err := s.annotations.ListByImage(ctx, imageID)
	if err != nil {
		return nil, internal(err, "failed to list annotations")
	}
	return annotations, nil
}

// Create adds one annotation. The class must belong to the image's project.
func (s *AnnotationStore) Create(ctx context.Context, imageID, classID uuid.UUID, vertices models.Vertices, createdBy uuid.UUID) (*models.Annotation, error) {
	if err := validateVertices(vertices); err != nil {
		return nil, err
	}

	var image *models.Image
	var created *models.Annotation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		image, err = s.images.WithTx(tx).GetByID(ctx, imageID)
		if err != nil {
			return err
		}
		if _, err := s.classes.WithTx(tx).Get(ctx, image.ProjectID, classID); err != nil {
			return err
		}
		annotations := s.annotations.WithTx(tx)
		seq, err := annotations.NextSeq(ctx, imageID)
		if err != nil {
			return err
		}
		created = &models.Annotation{
			ImageID:   imageID,
			ClassID:   classID,
			Vertices:  []models.Vertex(vertices),
			Seq:       seq,
			CreatedBy: createdBy,
		}
		return annotations.Create(ctx, created)
	})
	if err != nil {
		return nil, internal(err, "failed to create annotation")
	}
	s.changed(image, "create")
	return created, nil
}

// Update changes the class and/or the vertices of an annotation
func (s *AnnotationStore) Update(ctx context.Context, imageID, annotationID uuid.UUID, classID *uuid.UUID, vertices *models.Vertices) (*models.Annotation, error) {
	updates := map[string]interface{}{}
	if vertices != nil {
		if err := validateVertices(*vertices); err != nil {
			return nil, err
		}
	}

	var image *models.Image
	var annotation *models.Annotation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		image, err = s.images.WithTx(tx).GetByID(ctx, imageID)
		if err != nil {
			return err
		}
		annotations := s.annotations.WithTx(tx)
		annotation, err = annotations.Get(ctx, imageID, annotationID)
		if err != nil {
			return err
		}
		if classID != nil {
			if _, err := s.classes.WithTx(tx).Get(ctx, image.ProjectID, *classID); err != nil {
				return err
			}
			updates["class_id"] = *classID
		}
		if vertices != nil {
			updates["vertices"] = datatypes.JSONSlice[models.Vertex](*vertices)
		}
		if err := annotations.Update(ctx, annotation, updates); err != nil {
			return err
		}
		annotation, err = annotations.Get(ctx, imageID, annotationID)
		return err
	})
	if err != nil {
		return nil, internal(err, "failed to update annotation")
	}
	s.changed(image, "update")
	return annotation, nil
}

// Delete removes one annotation of the image
func (s *AnnotationStore) Delete(ctx context.Context, imageID, annotationID uuid.UUID) error {
	image, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		return internal(err, "failed to load image")
	}
	deleted, err := s.annotations.Delete(ctx, imageID, annotationID)
	if err != nil {
		return internal(err, "failed to delete annotation")
	}
	if !deleted {
		return apperr.NotFound("annotation")
	}
	s.changed(image, "delete")
	return nil
}

// BulkReplace swaps the whole annotation set of an image for specs, in one
// transaction. Every spec is validated before anything is written; on any
// failure the previous set is left untouched. An empty specs clears the
// image.
func (s *AnnotationStore) BulkReplace(ctx context.Context, imageID uuid.UUID, specs []AnnotationSpec, createdBy uuid.UUID) ([]models.Annotation, error) {
	for i, spec := range specs {
		if err := validateVertices(spec.Vertices); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInvalid, fmt.Sprintf("annotation %d is invalid", i)).WithMeta("index", i)
		}
	}

	var image *models.Image
	out := make([]models.Annotation, len(specs))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		image, err = s.images.WithTx(tx).GetByID(ctx, imageID)
		if err != nil {
			return err
		}

		classes, err := s.classes.WithTx(tx).ListByProject(ctx, image.ProjectID)
		if err != nil {
			return err
		}
		known := make(map[uuid.UUID]bool, len(classes))
		for _, c := range classes {
			known[c.ID] = true
		}
		for i, spec := range specs {
			if !known[spec.ClassID] {
				return apperr.Newf(apperr.CodeNotFound, "class of annotation %d not found in this project", i).WithMeta("index", i)
			}
		}

		annotations := s.annotations.WithTx(tx)
		if _, err := annotations.DeleteByImage(ctx, imageID); err != nil {
			return err
		}
		for i, spec := range specs {
			out[i] = models.Annotation{
				ImageID:   imageID,
				ClassID:   spec.ClassID,
				Vertices:  []models.Vertex(spec.Vertices),
				Seq:       i,
				CreatedBy: createdBy,
			}
			if err := annotations.Create(ctx, &out[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, internal(err, "failed to replace annotations")
	}

	logger.L().Info("annotations replaced",
		zap.String("project_id", image.ProjectID.String()),
		zap.String("image_id", imageID.String()),
		zap.Int("count", len(out)),
	)
	s.changed(image, "replace")
	return out, nil
}
