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

// AssignmentRepository handles database operations for image assignments
type AssignmentRepository struct {
	DB *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: db}
}

func (r *AssignmentRepository) WithTx(tx *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: tx}
}

// Get returns the assignment of an image
func (r *AssignmentRepository) Get(ctx context.Context, imageID uuid.UUID) (*models.ImageAssignment, error) {
	var a models.ImageAssignment
	if err := r.DB.WithContext(ctx).Where("image_id = ?", imageID).First(&a).Error; err != nil {
		return nil, dbError(err, "assignment")
	}
	return &a, nil
}

// DeleteForImages removes any assignment of the given images
func (r *AssignmentRepository) DeleteForImages(ctx context.Context, imageIDs []uuid.UUID) error {
	for start := 0; start < len(imageIDs); start += idChunk {
		end := min(start+idChunk, len(imageIDs))
		err := r.DB.WithContext(ctx).
			Where("image_id IN ?", imageIDs[start:end]).
			Delete(&models.ImageAssignment{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear assignments: %w", err)
		}
	}
	return nil
}

// CreateBatch inserts the assignments. A unique violation means another
// writer assigned one of the images first and is returned as a conflict.
func (r *AssignmentRepository) CreateBatch(ctx context.Context, assignments []models.ImageAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	if err := r.DB.WithContext(ctx).CreateInBatches(assignments, idChunk).Error; err != nil {
		return fmt.Errorf("failed to create assignments: %w", dbError(err, "assignment"))
	}
	return nil
}

// Delete removes the assignment of an image of the project, reporting
// whether one existed
func (r *AssignmentRepository) Delete(ctx context.Context, projectID, imageID uuid.UUID) (bool, error) {
	images := r.DB.Model(&models.Image{}).Select("id").Where("id = ? AND project_id = ?", imageID, projectID)
	res := r.DB.WithContext(ctx).
		Where("image_id IN (?)", images).
		Delete(&models.ImageAssignment{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete assignment of image %s: %w", imageID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteForUserInProject removes every assignment the user holds on images
// of the project and returns how many rows went away
func (r *AssignmentRepository) DeleteForUserInProject(ctx context.Context, projectID, userID uuid.UUID) (int64, error) {
	images := r.DB.Model(&models.Image{}).Select("id").Where("project_id = ?", projectID)
	res := r.DB.WithContext(ctx).
		Where("user_id = ? AND image_id IN (?)", userID, images).
		Delete(&models.ImageAssignment{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete assignments of user %s: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}

// IsAssignedTo reports whether the image is currently assigned to userID
func (r *AssignmentRepository) IsAssignedTo(ctx context.Context, imageID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.ImageAssignment{}).
		Where("image_id = ? AND user_id = ?", imageID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return count > 0, nil
}

type userCount struct {
	UserID uuid.UUID
	Total  int64
}

func (r *AssignmentRepository) countByUser(ctx context.Context, query sq.SelectBuilder) (map[uuid.UUID]int64, error) {
	var rows []userCount
	if err := database.ScanRaw(ctx, r.DB, query, &rows); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		out[row.UserID] = row.Total
	}
	return out, nil
}

// AssignedCounts returns the number of assigned images per user in the
// project
func (r *AssignmentRepository) AssignedCounts(ctx context.Context, projectID uuid.UUID) (map[uuid.UUID]int64, error) {
	query := database.Builder.
		Select("a.user_id AS user_id", "COUNT(*) AS total").
		From("image_assignments a").
		Join("images i ON i.id = a.image_id").
		Where(sq.Eq{"i.project_id": projectID.String()}).
		GroupBy("a.user_id")

	counts, err := r.countByUser(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments of project %s: %w", projectID, err)
	}
	return counts, nil
}

// AnnotatedCounts returns, per user, the number of distinct assigned images
// in the project that carry at least one annotation
func (r *AssignmentRepository) AnnotatedCounts(ctx context.Context, projectID uuid.UUID) (map[uuid.UUID]int64, error) {
	query := database.Builder.
		Select("a.user_id AS user_id", "COUNT(DISTINCT a.image_id) AS total").
		From("image_assignments a").
		Join("images i ON i.id = a.image_id").
		Where(sq.Eq{"i.project_id": projectID.String()}).
		Where("EXISTS (SELECT 1 FROM annotations n WHERE n.image_id = a.image_id)").
		GroupBy("a.user_id")

	counts, err := r.countByUser(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count annotated images of project %s: %w", projectID, err)
	}
	return counts, nil
}
