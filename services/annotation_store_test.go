package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/realtime"
	"github.com/camden-git/labelsysbackend/testutil"
)

type annotationFixture struct {
	db      *gorm.DB
	store   *AnnotationStore
	events  *recordingNotifier
	user    *models.User
	image   *models.Image
	cat     *models.ProjectClass
	dog     *models.ProjectClass
	foreign *models.ProjectClass
}

func newAnnotationFixture(t *testing.T) *annotationFixture {
	t.Helper()
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "labeler")
	project := testutil.CreateProject(t, db, "pets", user)
	other := testutil.CreateProject(t, db, "other", user)

	reg := NewClassRegistry(db)
	ctx := context.Background()
	cat, err := reg.CreateClass(ctx, project.ID, "cat", "")
	require.NoError(t, err)
	dog, err := reg.CreateClass(ctx, project.ID, "dog", "")
	require.NoError(t, err)
	foreign, err := reg.CreateClass(ctx, other.ID, "cat", "")
	require.NoError(t, err)

	events := &recordingNotifier{}
	return &annotationFixture{
		db:      db,
		store:   NewAnnotationStore(db, events, nil),
		events:  events,
		user:    user,
		image:   testutil.CreateImage(t, db, project, testutil.ImageOpts{Filename: "img1.jpg"}),
		cat:     cat,
		dog:     dog,
		foreign: foreign,
	}
}

func square(offset float64) models.Vertices {
	return models.Vertices{
		{X: offset, Y: offset},
		{X: offset + 1, Y: offset},
		{X: offset + 1, Y: offset + 1},
	}
}

func TestAnnotationStore_CreateListUpdateDelete(t *testing.T) {
	f := newAnnotationFixture(t)
	ctx := context.Background()

	first, err := f.store.Create(ctx, f.image.ID, f.cat.ID, square(0), f.user.ID)
	require.NoError(t, err)
	second, err := f.store.Create(ctx, f.image.ID, f.dog.ID, models.Vertices{{X: 5, Y: 6}}, f.user.ID)
	require.NoError(t, err)

	list, err := f.store.List(ctx, f.image.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, square(0), list[0].Points())

	moved := square(10)
	updated, err := f.store.Update(ctx, f.image.ID, first.ID, &f.dog.ID, &moved)
	require.NoError(t, err)
	assert.Equal(t, f.dog.ID, updated.ClassID)
	assert.Equal(t, moved, updated.Points())

	// update with nothing set is a no-op
	same, err := f.store.Update(ctx, f.image.ID, first.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, moved, same.Points())

	require.NoError(t, f.store.Delete(ctx, f.image.ID, second.ID))
	err = f.store.Delete(ctx, f.image.ID, second.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	list, err = f.store.List(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	for _, ev := range f.events.events {
		assert.Equal(t, realtime.EventAnnotationsChanged, ev.Type)
		assert.Equal(t, f.image.ID.String(), ev.ImageID)
	}
}

func TestAnnotationStore_CreateRejections(t *testing.T) {
	f := newAnnotationFixture(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, f.image.ID, f.cat.ID, nil, f.user.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalid))

	_, err = f.store.Create(ctx, f.image.ID, f.cat.ID, models.Vertices{{X: math.NaN(), Y: 0}}, f.user.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalid))

	_, err = f.store.Create(ctx, f.image.ID, f.foreign.ID, square(0), f.user.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), "class of another project")

	_, err = f.store.Create(ctx, uuid.New(), f.cat.ID, square(0), f.user.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	_, err = f.store.Update(ctx, f.image.ID, uuid.New(), nil, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestBulkReplace_ReplacesInInputOrder(t *testing.T) {
	f := newAnnotationFixture(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, f.image.ID, f.cat.ID, square(0), f.user.ID)
	require.NoError(t, err)

	specs := []AnnotationSpec{
		{ClassID: f.dog.ID, Vertices: square(1)},
		{ClassID: f.cat.ID, Vertices: square(2)},
		{ClassID: f.dog.ID, Vertices: square(3)},
	}
	out, err := f.store.BulkReplace(ctx, f.image.ID, specs, f.user.ID)
	require.NoError(t, err)
	require.Len(t, out, 3)

	list, err := f.store.List(ctx, f.image.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, a := range list {
		assert.Equal(t, specs[i].ClassID, a.ClassID)
		assert.Equal(t, specs[i].Vertices, a.Points())
		assert.Equal(t, out[i].ID, a.ID)
	}
}

func TestBulkReplace_EmptyClearsImage(t *testing.T) {
	f := newAnnotationFixture(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, f.image.ID, f.cat.ID, square(0), f.user.ID)
	require.NoError(t, err)

	out, err := f.store.BulkReplace(ctx, f.image.ID, nil, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, out)

	list, err := f.store.List(ctx, f.image.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBulkReplace_ValidationLeavesOriginals(t *testing.T) {
	f := newAnnotationFixture(t)
	ctx := context.Background()

	original, err := f.store.Create(ctx, f.image.ID, f.cat.ID, square(0), f.user.ID)
	require.NoError(t, err)

	_, err = f.store.BulkReplace(ctx, f.image.ID, []AnnotationSpec{
		{ClassID: f.dog.ID, Vertices: square(1)},
		{ClassID: f.dog.ID, Vertices: nil},
	}, f.user.ID)
	require.True(t, apperr.IsCode(err, apperr.CodeInvalid))
	var ae *apperr.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Meta["index"])

	_, err = f.store.BulkReplace(ctx, f.image.ID, []AnnotationSpec{
		{ClassID: f.dog.ID, Vertices: square(1)},
		{ClassID: f.foreign.ID, Vertices: square(2)},
	}, f.user.ID)
	require.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	list, err := f.store.List(ctx, f.image.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, original.ID, list[0].ID)
}

func TestBulkReplace_StorageFailureRollsBack(t *testing.T) {
	f := newAnnotationFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.store.Create(ctx, f.image.ID, f.cat.ID, square(float64(i)), f.user.ID)
		require.NoError(t, err)
	}
	before, err := f.store.List(ctx, f.image.ID)
	require.NoError(t, err)

	// fail the second annotation insert, after the old set was deleted
	inserts := 0
	injected := errors.New("injected write failure")
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_annotation_insert", func(tx *gorm.DB) {
		if tx.Statement.Table != "annotations" {
			return
		}
		inserts++
		if inserts == 2 {
			_ = tx.AddError(injected)
		}
	}))
	t.Cleanup(func() { _ = f.db.Callback().Create().Remove("test:fail_annotation_insert") })

	_, err = f.store.BulkReplace(ctx, f.image.ID, []AnnotationSpec{
		{ClassID: f.dog.ID, Vertices: square(5)},
		{ClassID: f.dog.ID, Vertices: square(6)},
		{ClassID: f.dog.ID, Vertices: square(7)},
	}, f.user.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, injected)
	assert.Equal(t, 2, inserts)

	after, err := f.store.List(ctx, f.image.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, f.cat.ID, after[i].ClassID)
	}
}
