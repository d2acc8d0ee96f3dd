package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/database"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/repository"
)

const maxClassNameLength = 100

// ClassPalette is handed out in order to classes created without a color.
var ClassPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E9",
	"#F0B27A", "#82E0AA", "#F1948A", "#85929E", "#73C6B6",
}

var validate = validator.New()

// ClassRegistry manages the label classes of a project. Class indices are
// append-only: an index is never handed out twice within a project, even
// after its class is deleted.
type ClassRegistry struct {
	db       *gorm.DB
	projects *repository.ProjectRepository
	classes  *repository.ClassRepository
}

func NewClassRegistry(db *gorm.DB) *ClassRegistry {
	return &ClassRegistry{
		db:       db,
		projects: repository.NewProjectRepository(db),
		classes:  repository.NewClassRepository(db),
	}
}

func normalizeClassName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid("class name is required")
	}
	if utf8.RuneCountInString(name) > maxClassNameLength {
		return "", apperr.Newf(apperr.CodeInvalid, "class name must be at most %d characters", maxClassNameLength)
	}
	return name, nil
}

func validateColor(color string) error {
	if err := validate.Var(color, "required,hexcolor"); err != nil {
		return apperr.Wrap(err, apperr.CodeInvalid, "color must be a hex color such as #FF6B6B")
	}
	return nil
}

func nextColor(classes []models.ProjectClass) string {
	used := make(map[string]bool, len(classes))
	for _, c := range classes {
		used[strings.ToUpper(c.Color)] = true
	}
	for _, color := range ClassPalette {
		if !used[color] {
			return color
		}
	}
	return ClassPalette[len(classes)%len(ClassPalette)]
}

// CreateClass adds a class to the project with the next free index. An
// empty color picks the first palette color not yet used in the project.
func (r *ClassRegistry) CreateClass(ctx context.Context, projectID uuid.UUID, name, color string) (*models.ProjectClass, error) {
	name, err := normalizeClassName(name)
	if err != nil {
		return nil, err
	}
	if color != "" {
		if err := validateColor(color); err != nil {
			return nil, err
		}
	}

	var created *models.ProjectClass
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		projects := r.projects.WithTx(tx)
		classes := r.classes.WithTx(tx)

		// lock the project first so the checks below see every committed class
		reserved, err := projects.BumpClassIndex(ctx, projectID)
		if err != nil {
			return err
		}

		taken, err := classes.NameTaken(ctx, projectID, name, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Newf(apperr.CodeDuplicateName, "class %q already exists in this project", name)
		}

		maxIndex, err := classes.MaxIndex(ctx, projectID)
		if err != nil {
			return err
		}
		index := reserved
		if maxIndex+1 > index {
			index = maxIndex + 1
			if err := projects.SetNextClassIndex(ctx, projectID, index+1); err != nil {
				return err
			}
		}

		if color == "" {
			existing, err := classes.ListByProject(ctx, projectID)
			if err != nil {
				return err
			}
			color = nextColor(existing)
		}

		created = &models.ProjectClass{
			ProjectID:  projectID,
			Name:       name,
			ClassIndex: index,
			Color:      color,
		}
		return classes.Create(ctx, created)
	})
	if err != nil {
		if database.IsDuplicateKey(err) {
			// the unique indexes are authoritative; find out which one we lost on
			if taken, checkErr := r.classes.NameTaken(ctx, projectID, name, uuid.Nil); checkErr == nil && taken {
				return nil, apperr.Wrap(err, apperr.CodeDuplicateName, "class name already exists in this project")
			}
			return nil, apperr.Wrap(err, apperr.CodeConflict, "class index already taken, retry")
		}
		return nil, internal(err, "failed to create class")
	}

	logger.L().Info("class created",
		zap.String("project_id", projectID.String()),
		zap.String("class_id", created.ID.String()),
		zap.String("name", created.Name),
		zap.Int("class_index", created.ClassIndex),
	)
	return created, nil
}

// ListClasses returns the project's classes by ascending class index
func (r *ClassRegistry) ListClasses(ctx context.Context, projectID uuid.UUID) ([]models.ProjectClass, error) {
	if _, err := r.projects.GetByID(ctx, projectID); err != nil {
		return nil, internal(err, "failed to load project")
	}
	classes, err := r.classes.ListByProject(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to list classes")
	}
	return classes, nil
}

// UpdateClass renames or recolors a class. The class index never changes.
func (r *ClassRegistry) UpdateClass(ctx context.Context, projectID, classID uuid.UUID, name, color *string) (*models.ProjectClass, error) {
	updates := map[string]interface{}{}
	if name != nil {
		n, err := normalizeClassName(*name)
		if err != nil {
			return nil, err
		}
		updates["name"] = n
	}
	if color != nil {
		if err := validateColor(*color); err != nil {
			return nil, err
		}
		updates["color"] = *color
	}

	var class *models.ProjectClass
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		classes := r.classes.WithTx(tx)
		var err error
		class, err = classes.Get(ctx, projectID, classID)
		if err != nil {
			return err
		}
		if n, ok := updates["name"].(string); ok {
			taken, err := classes.NameTaken(ctx, projectID, n, classID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.Newf(apperr.CodeDuplicateName, "class %q already exists in this project", n)
			}
		}
		if err := classes.Update(ctx, class, updates); err != nil {
			return err
		}
		class, err = classes.Get(ctx, projectID, classID)
		return err
	})
	if err != nil {
		if database.IsDuplicateKey(err) {
			return nil, apperr.Wrap(err, apperr.CodeDuplicateName, "class name already exists in this project")
		}
		return nil, internal(err, "failed to update class")
	}
	return class, nil
}

// DeleteClass removes a class. Annotations that reference it are kept; the
// exporter skips them.
func (r *ClassRegistry) DeleteClass(ctx context.Context, projectID, classID uuid.UUID) error {
	deleted, err := r.classes.Delete(ctx, projectID, classID)
	if err != nil {
		return internal(err, "failed to delete class")
	}
	if !deleted {
		return apperr.NotFound("class")
	}
	logger.L().Info("class deleted",
		zap.String("project_id", projectID.String()),
		zap.String("class_id", classID.String()),
	)
	return nil
}
