package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/testutil"
)

func TestProjectDirectory_CreateAndList(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUserWithPassword(t, db, "root", "secret1", true)
	alice := testutil.CreateUser(t, db, "alice")
	dir := NewProjectDirectory(db, testutil.NewMemStore())
	ctx := context.Background()

	mine, err := dir.Create(ctx, "  birds ", nil, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "birds", mine.Name)
	_, err = dir.Create(ctx, "cars", nil, admin.ID)
	require.NoError(t, err)
	testutil.AddMember(t, db, mine, alice)

	all, err := dir.ListFor(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	visible, err := dir.ListFor(ctx, alice)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, mine.ID, visible[0].ID)

	_, err = dir.Create(ctx, "   ", nil, admin.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalid))
	_, err = dir.Create(ctx, strings.Repeat("x", 256), nil, admin.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalid))
}

func TestProjectDirectory_Update(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	project := testutil.CreateProject(t, db, "streets", owner)
	dir := NewProjectDirectory(db, testutil.NewMemStore())
	ctx := context.Background()

	updated, err := dir.Update(ctx, project.ID, testutil.StrPtr("  roads "), testutil.StrPtr("night shots"))
	require.NoError(t, err)
	assert.Equal(t, "roads", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "night shots", *updated.Description)

	updated, err = dir.Update(ctx, project.ID, nil, testutil.StrPtr(""))
	require.NoError(t, err)
	assert.Equal(t, "roads", updated.Name)
	require.NotNil(t, updated.Description)
	assert.Empty(t, *updated.Description)

	_, err = dir.Update(ctx, project.ID, testutil.StrPtr(" "), nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalid))
	_, err = dir.Update(ctx, project.ID, testutil.StrPtr(strings.Repeat("x", 256)), nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalid))

	reloaded, err := dir.Get(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "roads", reloaded.Name)

	_, err = dir.Update(ctx, uuid.New(), testutil.StrPtr("ghost"), nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestProjectDirectory_Membership(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	alice := testutil.CreateUser(t, db, "alice")
	project := testutil.CreateProject(t, db, "streets", owner)
	testutil.AddMember(t, db, project, alice)
	dir := NewProjectDirectory(db, testutil.NewMemStore())
	ctx := context.Background()

	member, err := dir.Membership(ctx, project.ID, alice.ID)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, "annotator", member.Role)

	member, err = dir.Membership(ctx, project.ID, owner.ID)
	require.NoError(t, err)
	assert.Nil(t, member)

	ok, err := dir.IsMember(ctx, project.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProjectDirectory_DeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	alice := testutil.CreateUser(t, db, "alice")
	project := testutil.CreateProject(t, db, "streets", owner)
	other := testutil.CreateProject(t, db, "kept", owner)
	testutil.AddMember(t, db, project, alice)
	store := testutil.NewMemStore()

	images := testutil.CreateImages(t, db, project, 2)
	for _, img := range images {
		store.Put(img.StoragePath, []byte("x"))
	}
	testutil.Assign(t, db, images[0], alice)
	kept := testutil.CreateImage(t, db, other, testutil.ImageOpts{})
	store.Put(kept.StoragePath, []byte("y"))

	dir := NewProjectDirectory(db, store)
	ctx := context.Background()
	require.NoError(t, dir.Delete(ctx, project.ID))

	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Exists(kept.StoragePath))

	_, err := dir.Get(ctx, project.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	var n int64
	require.NoError(t, db.Model(&models.Image{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
	require.NoError(t, db.Model(&models.ImageAssignment{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, db.Model(&models.ProjectMember{}).Count(&n).Error)
	assert.Zero(t, n)

	err = dir.Delete(ctx, uuid.New())
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}
