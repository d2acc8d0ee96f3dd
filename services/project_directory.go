package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/media"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/repository"
)

// ProjectDirectory creates, lists and deletes projects and answers
// membership questions for access checks.
type ProjectDirectory struct {
	projects *repository.ProjectRepository
	images   *repository.ImageRepository
	store    media.Store
}

func NewProjectDirectory(db *gorm.DB, store media.Store) *ProjectDirectory {
	return &ProjectDirectory{
		projects: repository.NewProjectRepository(db),
		images:   repository.NewImageRepository(db),
		store:    store,
	}
}

func normalizeProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid("project name is required")
	}
	if len(name) > 255 {
		return "", apperr.Invalid("project name must be at most 255 characters")
	}
	return name, nil
}

func (p *ProjectDirectory) Create(ctx context.Context, name string, description *string, ownerID uuid.UUID) (*models.Project, error) {
	name, err := normalizeProjectName(name)
	if err != nil {
		return nil, err
	}
	project := &models.Project{Name: name, Description: description, OwnerID: ownerID}
	if err := p.projects.Create(ctx, project); err != nil {
		return nil, internal(err, "failed to create project")
	}
	logger.L().Info("project created", zap.String("project_id", project.ID.String()), zap.String("name", name))
	return project, nil
}

func (p *ProjectDirectory) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := p.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to load project")
	}
	return project, nil
}

// Update renames and re-describes a project. Nil arguments are left
// unchanged.
func (p *ProjectDirectory) Update(ctx context.Context, projectID uuid.UUID, name, description *string) (*models.Project, error) {
	fields := map[string]any{}
	if name != nil {
		n, err := normalizeProjectName(*name)
		if err != nil {
			return nil, err
		}
		fields["name"] = n
	}
	if description != nil {
		fields["description"] = *description
	}
	if len(fields) > 0 {
		if err := p.projects.Update(ctx, projectID, fields); err != nil {
			return nil, internal(err, "failed to update project")
		}
	}
	project, err := p.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to load project")
	}
	logger.L().Info("project updated", zap.String("project_id", projectID.String()), zap.Int("fields", len(fields)))
	return project, nil
}

// ListFor returns every project to an admin and the member projects to
// anybody else
func (p *ProjectDirectory) ListFor(ctx context.Context, user *models.User) ([]models.Project, error) {
	var (
		projects []models.Project
		err      error
	)
	if user.IsAdmin {
		projects, err = p.projects.ListAll(ctx)
	} else {
		projects, err = p.projects.ListForUser(ctx, user.ID)
	}
	if err != nil {
		return nil, internal(err, "failed to list projects")
	}
	return projects, nil
}

// Delete removes the project with everything that belongs to it, including
// stored image files
func (p *ProjectDirectory) Delete(ctx context.Context, projectID uuid.UUID) error {
	images, err := p.images.ListByProject(ctx, projectID)
	if err != nil {
		return internal(err, "failed to list project images")
	}
	if err := p.projects.Delete(ctx, projectID); err != nil {
		return internal(err, "failed to delete project")
	}

	for _, img := range images {
		paths := []string{img.StoragePath}
		if img.ThumbnailPath != nil {
			paths = append(paths, *img.ThumbnailPath)
		}
		for _, rel := range paths {
			if err := p.store.Delete(rel); err != nil {
				logger.L().Warn("failed to delete image file", zap.String("path", rel), zap.Error(err))
			}
		}
	}
	logger.L().Info("project deleted", zap.String("project_id", projectID.String()), zap.Int("images", len(images)))
	return nil
}

// Membership returns the member row of userID in the project, or nil when
// the user is not a member
func (p *ProjectDirectory) Membership(ctx context.Context, projectID, userID uuid.UUID) (*models.ProjectMember, error) {
	member, err := p.projects.GetMember(ctx, projectID, userID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, nil
		}
		return nil, internal(err, "failed to load membership")
	}
	return member, nil
}

// IsMember reports whether userID belongs to the project
func (p *ProjectDirectory) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	ok, err := p.projects.IsMember(ctx, projectID, userID)
	if err != nil {
		return false, internal(err, "failed to check membership")
	}
	return ok, nil
}
