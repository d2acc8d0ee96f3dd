package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/database"
	"github.com/camden-git/labelsysbackend/models"
)

// idChunk bounds the number of bind variables in IN lists.
const idChunk = 500

// ImageRepository handles database operations for Image entities
type ImageRepository struct {
	DB *gorm.DB
}

// NewImageRepository creates a new instance of ImageRepository
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{DB: db}
}

func (r *ImageRepository) WithTx(tx *gorm.DB) *ImageRepository {
	return &ImageRepository{DB: tx}
}

func (r *ImageRepository) Create(ctx context.Context, image *models.Image) error {
	if err := r.DB.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("failed to create image %s: %w", image.Filename, dbError(err, "image"))
	}
	return nil
}

// GetByID retrieves an image regardless of project
func (r *ImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	var image models.Image
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&image).Error; err != nil {
		return nil, dbError(err, "image")
	}
	return &image, nil
}

// GetInProject retrieves an image only if it belongs to projectID
func (r *ImageRepository) GetInProject(ctx context.Context, projectID, imageID uuid.UUID) (*models.Image, error) {
	var image models.Image
	err := r.DB.WithContext(ctx).
		Where("id = ? AND project_id = ?", imageID, projectID).
		First(&image).Error
	if err != nil {
		return nil, dbError(err, "image")
	}
	return &image, nil
}

// ListByProject returns the project's images in upload order
func (r *ImageRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Image, error) {
	var images []models.Image
	err := r.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("uploaded_at ASC, id ASC").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images of project %s: %w", projectID, err)
	}
	return images, nil
}

// Page returns up to limit images of the project in upload order, starting
// at offset
func (r *ImageRepository) Page(ctx context.Context, projectID uuid.UUID, offset, limit int) ([]models.Image, error) {
	var images []models.Image
	err := r.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("uploaded_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to page images of project %s: %w", projectID, err)
	}
	return images, nil
}

// CountByProject returns the number of images in the project
func (r *ImageRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.Image{}).Where("project_id = ?", projectID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count images of project %s: %w", projectID, err)
	}
	return count, nil
}

// ExistingIDs returns the ids from the input that name images of the
// project, in input order without duplicates
func (r *ImageRepository) ExistingIDs(ctx context.Context, projectID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	found := make(map[uuid.UUID]struct{}, len(ids))
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		var rows []models.Image
		err := r.DB.WithContext(ctx).
			Select("id").
			Where("project_id = ? AND id IN ?", projectID, ids[start:end]).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to resolve image ids: %w", err)
		}
		for _, row := range rows {
			found[row.ID] = struct{}{}
		}
	}

	out := make([]uuid.UUID, 0, len(found))
	for _, id := range ids {
		if _, ok := found[id]; ok {
			out = append(out, id)
			delete(found, id)
		}
	}
	return out, nil
}

type idRow struct {
	ID uuid.UUID
}

// UnassignedIDs returns up to limit ids of unassigned images of the project,
// oldest upload first. A non-positive limit returns all of them.
func (r *ImageRepository) UnassignedIDs(ctx context.Context, projectID uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := database.Builder.
		Select("i.id AS id").
		From("images i").
		LeftJoin("image_assignments a ON a.image_id = i.id").
		// uuid.UUID is an array, which squirrel would expand into an IN list
		Where(sq.Eq{"i.project_id": projectID.String()}).
		Where(sq.Eq{"a.image_id": nil}).
		OrderBy("i.uploaded_at ASC", "i.id ASC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	var rows []idRow
	if err := database.ScanRaw(ctx, r.DB, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to list unassigned images of project %s: %w", projectID, err)
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

// ListUnassigned returns the unassigned images of the project, newest first
func (r *ImageRepository) ListUnassigned(ctx context.Context, projectID uuid.UUID) ([]models.Image, error) {
	var images []models.Image
	err := r.DB.WithContext(ctx).
		Joins("LEFT JOIN image_assignments a ON a.image_id = images.id").
		Where("images.project_id = ? AND a.image_id IS NULL", projectID).
		Order("images.uploaded_at DESC, images.id DESC").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned images of project %s: %w", projectID, err)
	}
	return images, nil
}

// ListAssignedTo returns the user's work queue in the project, oldest first
func (r *ImageRepository) ListAssignedTo(ctx context.Context, projectID, userID uuid.UUID) ([]models.Image, error) {
	var images []models.Image
	err := r.DB.WithContext(ctx).
		Joins("JOIN image_assignments a ON a.image_id = images.id").
		Where("images.project_id = ? AND a.user_id = ?", projectID, userID).
		Order("images.uploaded_at ASC, images.id ASC").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images assigned to %s: %w", userID, err)
	}
	return images, nil
}

// ListMissingThumbnails returns up to limit images that have no thumbnail yet
func (r *ImageRepository) ListMissingThumbnails(ctx context.Context, limit int) ([]models.Image, error) {
	var images []models.Image
	err := r.DB.WithContext(ctx).
		Where("thumbnail_path IS NULL").
		Order("uploaded_at ASC, id ASC").
		Limit(limit).
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images without thumbnails: %w", err)
	}
	return images, nil
}

// SetSplit writes the dataset split of the given images
func (r *ImageRepository) SetSplit(ctx context.Context, ids []uuid.UUID, split *string) error {
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		err := r.DB.WithContext(ctx).Model(&models.Image{}).
			Where("id IN ?", ids[start:end]).
			Update("dataset_split", split).Error
		if err != nil {
			return fmt.Errorf("failed to set dataset split: %w", err)
		}
	}
	return nil
}

// SetThumbnailPath records the generated thumbnail of an image
func (r *ImageRepository) SetThumbnailPath(ctx context.Context, id uuid.UUID, thumbPath string) error {
	err := r.DB.WithContext(ctx).Model(&models.Image{}).
		Where("id = ?", id).
		Update("thumbnail_path", thumbPath).Error
	if err != nil {
		return fmt.Errorf("failed to update thumbnail path for image %s: %w", id, err)
	}
	return nil
}

// Delete removes the image with its annotations and assignment
func (r *ImageRepository) Delete(ctx context.Context, projectID, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
			return fmt.Errorf("failed to delete annotations of image %s: %w", id, err)
		}
		if err := tx.Where("image_id = ?", id).Delete(&models.ImageAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to delete assignment of image %s: %w", id, err)
		}
		res := tx.Where("id = ? AND project_id = ?", id, projectID).Delete(&models.Image{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete image %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return dbError(gorm.ErrRecordNotFound, "image")
		}
		return nil
	})
}
