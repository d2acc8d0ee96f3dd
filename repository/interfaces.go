package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/camden-git/labelsysbackend/models"
)

// UserRepository defines the methods for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	ListAll(ctx context.Context) ([]models.User, error)
}
