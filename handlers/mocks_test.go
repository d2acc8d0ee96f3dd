package handlers

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/services"
)

type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) Login(ctx context.Context, username, password string) (string, time.Time, *models.User, error) {
	args := m.Called(ctx, username, password)
	if v := args.Get(2); v != nil {
		return args.String(0), args.Get(1).(time.Time), v.(*models.User), args.Error(3)
	}
	return args.String(0), args.Get(1).(time.Time), nil, args.Error(3)
}

func (m *mockAccounts) Authenticate(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	if v := args.Get(0); v != nil {
		return v.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccounts) CreateUser(ctx context.Context, in services.NewUser) (*models.User, error) {
	args := m.Called(ctx, in)
	if v := args.Get(0); v != nil {
		return v.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccounts) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccounts) UpdateUser(ctx context.Context, id uuid.UUID, in services.UserUpdate) (*models.User, error) {
	args := m.Called(ctx, id, in)
	if v := args.Get(0); v != nil {
		return v.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockProjects struct {
	mock.Mock
}

func (m *mockProjects) Create(ctx context.Context, name string, description *string, ownerID uuid.UUID) (*models.Project, error) {
	args := m.Called(ctx, name, description, ownerID)
	if v := args.Get(0); v != nil {
		return v.(*models.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProjects) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.(*models.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProjects) Update(ctx context.Context, projectID uuid.UUID, name, description *string) (*models.Project, error) {
	args := m.Called(ctx, projectID, name, description)
	if v := args.Get(0); v != nil {
		return v.(*models.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProjects) ListFor(ctx context.Context, user *models.User) ([]models.Project, error) {
	args := m.Called(ctx, user)
	if v := args.Get(0); v != nil {
		return v.([]models.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProjects) Delete(ctx context.Context, projectID uuid.UUID) error {
	return m.Called(ctx, projectID).Error(0)
}

func (m *mockProjects) Membership(ctx context.Context, projectID, userID uuid.UUID) (*models.ProjectMember, error) {
	args := m.Called(ctx, projectID, userID)
	if v := args.Get(0); v != nil {
		return v.(*models.ProjectMember), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockClasses struct {
	mock.Mock
}

func (m *mockClasses) CreateClass(ctx context.Context, projectID uuid.UUID, name, color string) (*models.ProjectClass, error) {
	args := m.Called(ctx, projectID, name, color)
	if v := args.Get(0); v != nil {
		return v.(*models.ProjectClass), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClasses) ListClasses(ctx context.Context, projectID uuid.UUID) ([]models.ProjectClass, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]models.ProjectClass), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClasses) UpdateClass(ctx context.Context, projectID, classID uuid.UUID, name, color *string) (*models.ProjectClass, error) {
	args := m.Called(ctx, projectID, classID, name, color)
	if v := args.Get(0); v != nil {
		return v.(*models.ProjectClass), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClasses) DeleteClass(ctx context.Context, projectID, classID uuid.UUID) error {
	return m.Called(ctx, projectID, classID).Error(0)
}

type mockAssignments struct {
	mock.Mock
}

func (m *mockAssignments) ManualAssign(ctx context.Context, projectID, userID uuid.UUID, imageIDs []uuid.UUID) (int, error) {
	args := m.Called(ctx, projectID, userID, imageIDs)
	return args.Int(0), args.Error(1)
}

func (m *mockAssignments) AutoAssign(ctx context.Context, projectID uuid.UUID, userIDs []uuid.UUID, countPerUser *int) (int, error) {
	args := m.Called(ctx, projectID, userIDs, countPerUser)
	return args.Int(0), args.Error(1)
}

func (m *mockAssignments) Unassign(ctx context.Context, projectID, imageID uuid.UUID) error {
	return m.Called(ctx, projectID, imageID).Error(0)
}

func (m *mockAssignments) AddMember(ctx context.Context, projectID, userID uuid.UUID, role string) (*models.ProjectMember, error) {
	args := m.Called(ctx, projectID, userID, role)
	if v := args.Get(0); v != nil {
		return v.(*models.ProjectMember), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssignments) ListMembers(ctx context.Context, projectID uuid.UUID) ([]models.ProjectMember, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]models.ProjectMember), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssignments) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	return m.Called(ctx, projectID, userID).Error(0)
}

func (m *mockAssignments) Stats(ctx context.Context, projectID uuid.UUID) ([]services.AssignmentStats, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]services.AssignmentStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssignments) ListUnassigned(ctx context.Context, projectID uuid.UUID) ([]models.Image, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]models.Image), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssignments) WorkQueue(ctx context.Context, projectID, userID uuid.UUID) ([]models.Image, error) {
	args := m.Called(ctx, projectID, userID)
	if v := args.Get(0); v != nil {
		return v.([]models.Image), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAssignments) IsAssignedTo(ctx context.Context, imageID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, imageID, userID)
	return args.Bool(0), args.Error(1)
}

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Upload(ctx context.Context, projectID uuid.UUID, filename string, r io.Reader) (*models.Image, error) {
	args := m.Called(ctx, projectID, filename, r)
	if v := args.Get(0); v != nil {
		return v.(*models.Image), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImages) List(ctx context.Context, projectID uuid.UUID, sortOrder string) ([]models.Image, error) {
	args := m.Called(ctx, projectID, sortOrder)
	if v := args.Get(0); v != nil {
		return v.([]models.Image), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImages) Get(ctx context.Context, projectID, imageID uuid.UUID) (*models.Image, error) {
	args := m.Called(ctx, projectID, imageID)
	if v := args.Get(0); v != nil {
		return v.(*models.Image), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImages) Open(ctx context.Context, projectID, imageID uuid.UUID) (*models.Image, io.ReadCloser, error) {
	args := m.Called(ctx, projectID, imageID)
	if v := args.Get(0); v != nil {
		return v.(*models.Image), args.Get(1).(io.ReadCloser), args.Error(2)
	}
	return nil, nil, args.Error(2)
}

func (m *mockImages) OpenThumbnail(ctx context.Context, projectID, imageID uuid.UUID) (io.ReadCloser, error) {
	args := m.Called(ctx, projectID, imageID)
	if v := args.Get(0); v != nil {
		return v.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockImages) Delete(ctx context.Context, projectID, imageID uuid.UUID) error {
	return m.Called(ctx, projectID, imageID).Error(0)
}

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Project(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.(*models.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExporter) ArchiveName(project *models.Project) string {
	return m.Called(project).String(0)
}

func (m *mockExporter) Export(ctx context.Context, projectID uuid.UUID, w io.Writer) error {
	return m.Called(ctx, projectID, w).Error(0)
}
