package services

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/testutil"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func splitCounts(t *testing.T, db *gorm.DB, projectID uuid.UUID) map[string]int {
	t.Helper()
	var images []models.Image
	require.NoError(t, db.Where("project_id = ?", projectID).Find(&images).Error)
	out := map[string]int{}
	for _, img := range images {
		key := "null"
		if img.DatasetSplit != nil {
			key = *img.DatasetSplit
		}
		out[key]++
	}
	return out
}

func trainIDs(t *testing.T, db *gorm.DB, projectID uuid.UUID) []string {
	t.Helper()
	var images []models.Image
	require.NoError(t, db.Where("project_id = ? AND dataset_split = ?", projectID, models.SplitTrain).Find(&images).Error)
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.ID.String()
	}
	sort.Strings(out)
	return out
}

func newSplitFixture(t *testing.T, n int) (*gorm.DB, *models.Project) {
	t.Helper()
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	project := testutil.CreateProject(t, db, "split", owner)
	testutil.CreateImages(t, db, project, n)
	return db, project
}

func TestAutoSplit_EightyTwenty(t *testing.T) {
	db, project := newSplitFixture(t, 10)
	events := &recordingNotifier{}
	splitter := NewDatasetSplitter(db, seeded(1), events)

	res, err := splitter.AutoSplit(context.Background(), project.ID, 0.8)
	require.NoError(t, err)
	assert.Equal(t, SplitResult{Train: 8, Val: 2}, res)
	assert.Equal(t, map[string]int{"train": 8, "val": 2}, splitCounts(t, db, project.ID))
	assert.Len(t, events.types(), 1)
}

func TestAutoSplit_AllTrain(t *testing.T) {
	db, project := newSplitFixture(t, 10)
	splitter := NewDatasetSplitter(db, seeded(2), nil)

	res, err := splitter.AutoSplit(context.Background(), project.ID, 1.0)
	require.NoError(t, err)
	assert.Equal(t, SplitResult{Train: 10, Val: 0}, res)
	assert.Equal(t, map[string]int{"train": 10}, splitCounts(t, db, project.ID))
}

func TestAutoSplit_FloorsTrainCount(t *testing.T) {
	db, project := newSplitFixture(t, 3)
	splitter := NewDatasetSplitter(db, seeded(3), nil)

	res, err := splitter.AutoSplit(context.Background(), project.ID, 0.5)
	require.NoError(t, err)
	assert.Equal(t, SplitResult{Train: 1, Val: 2}, res)
}

func TestAutoSplit_SameSeedSameSplit(t *testing.T) {
	db, project := newSplitFixture(t, 20)
	ctx := context.Background()

	_, err := NewDatasetSplitter(db, seeded(42), nil).AutoSplit(ctx, project.ID, 0.5)
	require.NoError(t, err)
	first := trainIDs(t, db, project.ID)

	_, err = NewDatasetSplitter(db, seeded(7), nil).AutoSplit(ctx, project.ID, 0.5)
	require.NoError(t, err)

	_, err = NewDatasetSplitter(db, seeded(42), nil).AutoSplit(ctx, project.ID, 0.5)
	require.NoError(t, err)
	assert.Equal(t, first, trainIDs(t, db, project.ID))
}

func TestAutoSplit_OverwritesManualSplits(t *testing.T) {
	db, project := newSplitFixture(t, 4)
	splitter := NewDatasetSplitter(db, seeded(5), nil)
	ctx := context.Background()

	var images []models.Image
	require.NoError(t, db.Where("project_id = ?", project.ID).Find(&images).Error)
	for _, img := range images {
		_, err := splitter.SetSplit(ctx, project.ID, img.ID, testutil.StrPtr(models.SplitVal))
		require.NoError(t, err)
	}

	_, err := splitter.AutoSplit(ctx, project.ID, 1.0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"train": 4}, splitCounts(t, db, project.ID))
}

func TestAutoSplit_Rejections(t *testing.T) {
	db, project := newSplitFixture(t, 2)
	splitter := NewDatasetSplitter(db, nil, nil)
	ctx := context.Background()

	for _, ratio := range []float64{0, -0.5, 1.01, math.NaN()} {
		_, err := splitter.AutoSplit(ctx, project.ID, ratio)
		assert.True(t, apperr.IsCode(err, apperr.CodeInvalid), "ratio %v", ratio)
	}
	assert.Equal(t, map[string]int{"null": 2}, splitCounts(t, db, project.ID))

	_, err := splitter.AutoSplit(ctx, uuid.New(), 0.8)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestAutoSplit_EmptyProject(t *testing.T) {
	db, project := newSplitFixture(t, 0)
	res, err := NewDatasetSplitter(db, nil, nil).AutoSplit(context.Background(), project.ID, 0.8)
	require.NoError(t, err)
	assert.Equal(t, SplitResult{}, res)
}

func TestSetSplit(t *testing.T) {
	db, project := newSplitFixture(t, 0)
	image := testutil.CreateImage(t, db, project, testutil.ImageOpts{})
	splitter := NewDatasetSplitter(db, nil, nil)
	ctx := context.Background()

	updated, err := splitter.SetSplit(ctx, project.ID, image.ID, testutil.StrPtr(models.SplitVal))
	require.NoError(t, err)
	require.NotNil(t, updated.DatasetSplit)
	assert.Equal(t, models.SplitVal, *updated.DatasetSplit)

	cleared, err := splitter.SetSplit(ctx, project.ID, image.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.DatasetSplit)
	assert.Equal(t, map[string]int{"null": 1}, splitCounts(t, db, project.ID))

	_, err = splitter.SetSplit(ctx, project.ID, image.ID, testutil.StrPtr("test"))
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalid))

	_, err = splitter.SetSplit(ctx, uuid.New(), image.ID, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}
