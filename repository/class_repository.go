package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/models"
)

// ClassRepository handles database operations for project classes
type ClassRepository struct {
	DB *gorm.DB
}

func NewClassRepository(db *gorm.DB) *ClassRepository {
	return &ClassRepository{DB: db}
}

func (r *ClassRepository) WithTx(tx *gorm.DB) *ClassRepository {
	return &ClassRepository{DB: tx}
}

// Create inserts the class. A unique violation is returned as a conflict;
// the caller decides whether it was the name or the index.
func (r *ClassRepository) Create(ctx context.Context, class *models.ProjectClass) error {
	if err := r.DB.WithContext(ctx).Create(class).Error; err != nil {
		return fmt.Errorf("failed to create class %s: %w", class.Name, dbError(err, "class"))
	}
	return nil
}

// Get returns the class only if it belongs to projectID
func (r *ClassRepository) Get(ctx context.Context, projectID, classID uuid.UUID) (*models.ProjectClass, error) {
	var class models.ProjectClass
	err := r.DB.WithContext(ctx).
		Where("id = ? AND project_id = ?", classID, projectID).
		First(&class).Error
	if err != nil {
		return nil, dbError(err, "class")
	}
	return &class, nil
}

// NameTaken reports whether another class of the project already uses name
func (r *ClassRepository) NameTaken(ctx context.Context, projectID uuid.UUID, name string, except uuid.UUID) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.ProjectClass{}).
		Where("project_id = ? AND name = ? AND id <> ?", projectID, name, except).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check class name: %w", err)
	}
	return count > 0, nil
}

// ListByProject returns the project's classes by ascending class index
func (r *ClassRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectClass, error) {
	var classes []models.ProjectClass
	err := r.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("class_index ASC").
		Find(&classes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list classes of project %s: %w", projectID, err)
	}
	return classes, nil
}

// MaxIndex returns the largest class index in use, or -1 when the project
// has no classes
func (r *ClassRepository) MaxIndex(ctx context.Context, projectID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := r.DB.WithContext(ctx).Model(&models.ProjectClass{}).
		Select("MAX(class_index)").
		Where("project_id = ?", projectID).
		Row().Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read max class index: %w", err)
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

// Update writes the given columns of a class
func (r *ClassRepository) Update(ctx context.Context, class *models.ProjectClass, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := r.DB.WithContext(ctx).Model(class).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update class %s: %w", class.ID, dbError(err, "class"))
	}
	return nil
}

// Delete removes the class, reporting whether it existed
func (r *ClassRepository) Delete(ctx context.Context, projectID, classID uuid.UUID) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND project_id = ?", classID, projectID).
		Delete(&models.ProjectClass{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete class %s: %w", classID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
