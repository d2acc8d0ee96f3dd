package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/models"
)

// ProjectRepository handles database operations for projects and their
// memberships
type ProjectRepository struct {
	DB *gorm.DB
}

// NewProjectRepository creates a new instance of ProjectRepository
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

// WithTx returns a repository bound to the given transaction
func (r *ProjectRepository) WithTx(tx *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: tx}
}

func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	if err := r.DB.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project %s: %w", project.Name, dbError(err, "project"))
	}
	return nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, dbError(err, "project")
	}
	return &project, nil
}

// Update writes the given columns of the project row
func (r *ProjectRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	res := r.DB.WithContext(ctx).Model(&models.Project{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update project %s: %w", id, dbError(res.Error, "project"))
	}
	if res.RowsAffected == 0 {
		return dbError(gorm.ErrRecordNotFound, "project")
	}
	return nil
}

// ListAll returns every project, oldest first
func (r *ProjectRepository) ListAll(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := r.DB.WithContext(ctx).Order("created_at ASC, id ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// ListForUser returns the projects the user is a member of
func (r *ProjectRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	var projects []models.Project
	err := r.DB.WithContext(ctx).
		Joins("JOIN project_members pm ON pm.project_id = projects.id").
		Where("pm.user_id = ?", userID).
		Order("projects.created_at ASC, projects.id ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list projects for user %s: %w", userID, err)
	}
	return projects, nil
}

// BumpClassIndex advances the project's class index high-water mark by one
// and returns the value it had before. The UPDATE takes the project row lock,
// so concurrent class creation in the same project is serialized until the
// surrounding transaction ends.
func (r *ProjectRepository) BumpClassIndex(ctx context.Context, projectID uuid.UUID) (int, error) {
	res := r.DB.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		UpdateColumn("next_class_index", gorm.Expr("next_class_index + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to advance class index for project %s: %w", projectID, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, dbError(gorm.ErrRecordNotFound, "project")
	}
	project, err := r.GetByID(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return project.NextClassIndex - 1, nil
}

// SetNextClassIndex overwrites the high-water mark
func (r *ProjectRepository) SetNextClassIndex(ctx context.Context, projectID uuid.UUID, next int) error {
	err := r.DB.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		UpdateColumn("next_class_index", next).Error
	if err != nil {
		return fmt.Errorf("failed to set class index for project %s: %w", projectID, err)
	}
	return nil
}

// Delete removes the project together with its classes, images, annotations,
// assignments and memberships
func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		images := tx.Model(&models.Image{}).Select("id").Where("project_id = ?", id)
		if err := tx.Where("image_id IN (?)", images).Delete(&models.Annotation{}).Error; err != nil {
			return fmt.Errorf("failed to delete annotations of project %s: %w", id, err)
		}
		images = tx.Model(&models.Image{}).Select("id").Where("project_id = ?", id)
		if err := tx.Where("image_id IN (?)", images).Delete(&models.ImageAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to delete assignments of project %s: %w", id, err)
		}
		for _, m := range []interface{}{&models.Image{}, &models.ProjectClass{}, &models.ProjectMember{}} {
			if err := tx.Where("project_id = ?", id).Delete(m).Error; err != nil {
				return fmt.Errorf("failed to delete project %s children: %w", id, err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.Project{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete project %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return dbError(gorm.ErrRecordNotFound, "project")
		}
		return nil
	})
}

// AddMember inserts a membership row
func (r *ProjectRepository) AddMember(ctx context.Context, member *models.ProjectMember) error {
	if err := r.DB.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("failed to add member %s: %w", member.UserID, dbError(err, "member"))
	}
	return nil
}

// GetMember returns the membership of userID in projectID
func (r *ProjectRepository) GetMember(ctx context.Context, projectID, userID uuid.UUID) (*models.ProjectMember, error) {
	var member models.ProjectMember
	err := r.DB.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if err != nil {
		return nil, dbError(err, "member")
	}
	return &member, nil
}

// IsMember reports whether userID belongs to projectID
func (r *ProjectRepository) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// NonMembers returns the subset of userIDs that are not members of the
// project, preserving input order
func (r *ProjectRepository) NonMembers(ctx context.Context, projectID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	var members []models.ProjectMember
	err := r.DB.WithContext(ctx).
		Where("project_id = ? AND user_id IN ?", projectID, userIDs).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load members: %w", err)
	}
	found := make(map[uuid.UUID]struct{}, len(members))
	for _, m := range members {
		found[m.UserID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range userIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// ListMembers returns members with their users in join order
func (r *ProjectRepository) ListMembers(ctx context.Context, projectID uuid.UUID) ([]models.ProjectMember, error) {
	var members []models.ProjectMember
	err := r.DB.WithContext(ctx).
		Preload("User").
		Where("project_id = ?", projectID).
		Order("joined_at ASC, user_id ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list members of project %s: %w", projectID, err)
	}
	return members, nil
}

// DeleteMember removes the membership row, reporting whether one existed
func (r *ProjectRepository) DeleteMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&models.ProjectMember{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete member %s: %w", userID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
