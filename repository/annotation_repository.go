package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/models"
)

// AnnotationRepository handles database operations for annotations
type AnnotationRepository struct {
	DB *gorm.DB
}

func NewAnnotationRepository(db *gorm.DB) *AnnotationRepository {
	return &AnnotationRepository{DB: db}
}

func (r *AnnotationRepository) WithTx(tx *gorm.DB) *AnnotationRepository {
	return &AnnotationRepository{DB: tx}
}

// ListByImage returns an image's annotations in creation order
func (r *AnnotationRepository) ListByImage(ctx context.Context, imageID uuid.UUID) ([]models.Annotation, error) {
	var annotations []models.Annotation
	err := r.DB.WithContext(ctx).
		Where("image_id = ?", imageID).
		Order("seq ASC, created_at ASC").
		Find(&annotations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations of image %s: %w", imageID, err)
	}
	return annotations, nil
}

// ListByImages groups the annotations of several images by image id
func (r *AnnotationRepository) ListByImages(ctx context.Context, imageIDs []uuid.UUID) (map[uuid.UUID][]models.Annotation, error) {
	out := make(map[uuid.UUID][]models.Annotation, len(imageIDs))
	for start := 0; start < len(imageIDs); start += idChunk {
		end := min(start+idChunk, len(imageIDs))
		var annotations []models.Annotation
		err := r.DB.WithContext(ctx).
			Where("image_id IN ?", imageIDs[start:end]).
			Order("seq ASC, created_at ASC").
			Find(&annotations).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load annotations: %w", err)
		}
		for _, a := range annotations {
			out[a.ImageID] = append(out[a.ImageID], a)
		}
	}
	return out, nil
}

// Get returns the annotation only if it belongs to imageID
func (r *AnnotationRepository) Get(ctx context.Context, imageID, annotationID uuid.UUID) (*models.Annotation, error) {
	var a models.Annotation
	err := r.DB.WithContext(ctx).
		Where("id = ? AND image_id = ?", annotationID, imageID).
		First(&a).Error
	if err != nil {
		return nil, dbError(err, "annotation")
	}
	return &a, nil
}

// NextSeq returns the sequence number for a new annotation on the image
func (r *AnnotationRepository) NextSeq(ctx context.Context, imageID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := r.DB.WithContext(ctx).Model(&models.Annotation{}).
		Select("MAX(seq)").
		Where("image_id = ?", imageID).
		Row().Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read annotation sequence: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (r *AnnotationRepository) Create(ctx context.Context, a *models.Annotation) error {
	if err := r.DB.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create annotation on image %s: %w", a.ImageID, dbError(err, "annotation"))
	}
	return nil
}

// Update writes the given columns of an annotation
func (r *AnnotationRepository) Update(ctx context.Context, a *models.Annotation, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := r.DB.WithContext(ctx).Model(a).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update annotation %s: %w", a.ID, dbError(err, "annotation"))
	}
	return nil
}

// Delete removes one annotation, reporting whether it existed
func (r *AnnotationRepository) Delete(ctx context.Context, imageID, annotationID uuid.UUID) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND image_id = ?", annotationID, imageID).
		Delete(&models.Annotation{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete annotation %s: %w", annotationID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteByImage removes every annotation of the image
func (r *AnnotationRepository) DeleteByImage(ctx context.Context, imageID uuid.UUID) (int64, error) {
	res := r.DB.WithContext(ctx).Where("image_id = ?", imageID).Delete(&models.Annotation{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear annotations of image %s: %w", imageID, res.Error)
	}
	return res.RowsAffected, nil
}
