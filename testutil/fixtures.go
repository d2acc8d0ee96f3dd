package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/permissions"
)

// baseTime anchors fixture upload times so ordering by upload is stable.
var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com"}
	user.PasswordHash = "x"
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateUserWithPassword(t testing.TB, db *gorm.DB, username, password string, admin bool) *models.User {
	t.Helper()
	user := &models.User{Username: username, IsAdmin: admin}
	require.NoError(t, user.SetPassword(password))
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateProject(t testing.TB, db *gorm.DB, name string, owner *models.User) *models.Project {
	t.Helper()
	project := &models.Project{Name: name, OwnerID: owner.ID}
	require.NoError(t, db.Create(project).Error)
	return project
}

// AddMember adds users to the project as annotators.
func AddMember(t testing.TB, db *gorm.DB, project *models.Project, users ...*models.User) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, db.Create(&models.ProjectMember{
			ProjectID: project.ID,
			UserID:    u.ID,
			Role:      permissions.RoleAnnotator,
		}).Error)
	}
}

// CreateImage adds an image row. The n-th image of a test gets an upload
// time n seconds after the fixture base time when ImageOpts.UploadedAt is
// zero.
func CreateImage(t testing.TB, db *gorm.DB, project *models.Project, opts ImageOpts) *models.Image {
	t.Helper()
	if opts.Filename == "" {
		opts.Filename = uuid.NewString()[:8] + ".jpg"
	}
	if opts.StoragePath == "" {
		opts.StoragePath = "originals/" + project.ID.String() + "/" + uuid.NewString() + ".jpg"
	}
	if opts.UploadedAt.IsZero() {
		var count int64
		require.NoError(t, db.Model(&models.Image{}).Count(&count).Error)
		opts.UploadedAt = baseTime.Add(time.Duration(count) * time.Second)
	}
	image := &models.Image{
		ProjectID:    project.ID,
		Filename:     opts.Filename,
		StoragePath:  opts.StoragePath,
		Width:        100,
		Height:       100,
		FileSize:     1,
		DatasetSplit: opts.Split,
		UploadedAt:   opts.UploadedAt,
	}
	require.NoError(t, db.Create(image).Error)
	return image
}

type ImageOpts struct {
	Filename    string
	StoragePath string
	Split       *string
	UploadedAt  time.Time
}

// CreateImages adds n images with default options.
func CreateImages(t testing.TB, db *gorm.DB, project *models.Project, n int) []*models.Image {
	t.Helper()
	images := make([]*models.Image, n)
	for i := range images {
		images[i] = CreateImage(t, db, project, ImageOpts{})
	}
	return images
}

func Assign(t testing.TB, db *gorm.DB, image *models.Image, user *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.ImageAssignment{ImageID: image.ID, UserID: user.ID}).Error)
}

func StrPtr(s string) *string { return &s }
