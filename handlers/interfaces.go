package handlers

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/services"
)

// The handlers depend on these narrow views of the services so tests can
// swap in mocks.

type Accounts interface {
	Login(ctx context.Context, username, password string) (string, time.Time, *models.User, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	CreateUser(ctx context.Context, in services.NewUser) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, in services.UserUpdate) (*models.User, error)
}

type Projects interface {
	Create(ctx context.Context, name string, description *string, ownerID uuid.UUID) (*models.Project, error)
	Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	Update(ctx context.Context, projectID uuid.UUID, name, description *string) (*models.Project, error)
	ListFor(ctx context.Context, user *models.User) ([]models.Project, error)
	Delete(ctx context.Context, projectID uuid.UUID) error
	Membership(ctx context.Context, projectID, userID uuid.UUID) (*models.ProjectMember, error)
}

type Classes interface {
	CreateClass(ctx context.Context, projectID uuid.UUID, name, color string) (*models.ProjectClass, error)
	ListClasses(ctx context.Context, projectID uuid.UUID) ([]models.ProjectClass, error)
	UpdateClass(ctx context.Context, projectID, classID uuid.UUID, name, color *string) (*models.ProjectClass, error)
	DeleteClass(ctx context.Context, projectID, classID uuid.UUID) error
}

type Assignments interface {
	ManualAssign(ctx context.Context, projectID, userID uuid.UUID, imageIDs []uuid.UUID) (int, error)
	AutoAssign(ctx context.Context, projectID uuid.UUID, userIDs []uuid.UUID, countPerUser *int) (int, error)
	Unassign(ctx context.Context, projectID, imageID uuid.UUID) error
	AddMember(ctx context.Context, projectID, userID uuid.UUID, role string) (*models.ProjectMember, error)
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]models.ProjectMember, error)
	RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error
	Stats(ctx context.Context, projectID uuid.UUID) ([]services.AssignmentStats, error)
	ListUnassigned(ctx context.Context, projectID uuid.UUID) ([]models.Image, error)
	WorkQueue(ctx context.Context, projectID, userID uuid.UUID) ([]models.Image, error)
	IsAssignedTo(ctx context.Context, imageID, userID uuid.UUID) (bool, error)
}

type Images interface {
	Upload(ctx context.Context, projectID uuid.UUID, filename string, r io.Reader) (*models.Image, error)
	List(ctx context.Context, projectID uuid.UUID, sortOrder string) ([]models.Image, error)
	Get(ctx context.Context, projectID, imageID uuid.UUID) (*models.Image, error)
	Open(ctx context.Context, projectID, imageID uuid.UUID) (*models.Image, io.ReadCloser, error)
	OpenThumbnail(ctx context.Context, projectID, imageID uuid.UUID) (io.ReadCloser, error)
	Delete(ctx context.Context, projectID, imageID uuid.UUID) error
}

type Annotations interface {
	List(ctx context.Context, imageID uuid.UUID) ([]models.Annotation, error)
	Create(ctx context.Context, imageID, classID uuid.UUID, vertices models.Vertices, createdBy uuid.UUID) (*models.Annotation, error)
	Update(ctx context.Context, imageID, annotationID uuid.UUID, classID *uuid.UUID, vertices *models.Vertices) (*models.Annotation, error)
	Delete(ctx context.Context, imageID, annotationID uuid.UUID) error
	BulkReplace(ctx context.Context, imageID uuid.UUID, specs []services.AnnotationSpec, createdBy uuid.UUID) ([]models.Annotation, error)
}

type Splitter interface {
	AutoSplit(ctx context.Context, projectID uuid.UUID, trainRatio float64) (services.SplitResult, error)
	SetSplit(ctx context.Context, projectID, imageID uuid.UUID, split *string) (*models.Image, error)
}

type Exporter interface {
	Project(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	ArchiveName(project *models.Project) string
	Export(ctx context.Context, projectID uuid.UUID, w io.Writer) error
}
