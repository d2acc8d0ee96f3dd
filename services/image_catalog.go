package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facette/natsort"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/apperr"
	"github.com/camden-git/labelsysbackend/database"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/media"
	"github.com/camden-git/labelsysbackend/models"
	"github.com/camden-git/labelsysbackend/realtime"
	"github.com/camden-git/labelsysbackend/repository"
	"github.com/camden-git/labelsysbackend/workers"
)

// MaxUploadBytes caps a single uploaded image.
const MaxUploadBytes = 50 << 20

// ThumbnailQueue accepts thumbnail jobs without blocking.
type ThumbnailQueue interface {
	QueueJob(job workers.ThumbnailJob) bool
}

// ImageCatalog stores uploaded images and their records.
type ImageCatalog struct {
	db     *gorm.DB
	images *repository.ImageRepository
	store  media.Store
	thumbs ThumbnailQueue
	events Notifier
}

func NewImageCatalog(db *gorm.DB, store media.Store, thumbs ThumbnailQueue, events Notifier) *ImageCatalog {
	return &ImageCatalog{
		db:     db,
		images: repository.NewImageRepository(db),
		store:  store,
		thumbs: thumbs,
		events: notifierOrNop(events),
	}
}

// Upload stores one image file for the project and records it. The file
// must be a decodable raster image; EXIF capture time is kept when present.
func (c *ImageCatalog) Upload(ctx context.Context, projectID uuid.UUID, filename string, r io.Reader) (*models.Image, error) {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if filename == "." || filename == "/" || filename == "" {
		return nil, apperr.Invalid("filename is required")
	}
	if !media.IsRasterImage(filename) {
		return nil, apperr.Newf(apperr.CodeInvalid, "%s is not a supported image type", filename)
	}
	if _, err := repository.NewProjectRepository(c.db).GetByID(ctx, projectID); err != nil {
		return nil, internal(err, "failed to load project")
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInvalid, "failed to read upload")
	}
	if len(data) > MaxUploadBytes {
		return nil, apperr.Newf(apperr.CodeInvalid, "%s exceeds the %d MiB upload limit", filename, MaxUploadBytes>>20)
	}

	meta, err := media.ReadMetadata(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInvalid, fmt.Sprintf("%s is not a readable image", filename))
	}

	id := uuid.New()
	storedName := id.String() + strings.ToLower(filepath.Ext(filename))
	relPath, err := c.store.Save(media.AssetTypeOriginal, projectID.String(), storedName, bytes.NewReader(data))
	if err != nil {
		return nil, internal(err, "failed to store image")
	}

	image := &models.Image{
		ID:          id,
		ProjectID:   projectID,
		Filename:    filename,
		StoragePath: relPath,
		Width:       meta.Width,
		Height:      meta.Height,
		FileSize:    int64(len(data)),
		TakenAt:     meta.TakenAt,
	}
	if err := c.images.Create(ctx, image); err != nil {
		if delErr := c.store.Delete(relPath); delErr != nil {
			logger.L().Warn("failed to remove orphaned upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, internal(err, "failed to record image")
	}

	if c.thumbs != nil {
		c.thumbs.QueueJob(workers.ThumbnailJob{ImageID: image.ID, ProjectID: projectID, StoragePath: relPath})
	}
	logger.L().Info("image uploaded",
		zap.String("project_id", projectID.String()),
		zap.String("image_id", image.ID.String()),
		zap.String("filename", filename),
		zap.Int64("size", image.FileSize),
	)
	c.events.Broadcast(realtime.Event{
		Type:      realtime.EventImagesUploaded,
		ProjectID: projectID.String(),
		ImageID:   image.ID.String(),
	})
	return image, nil
}

// List returns the project's images in the requested order
func (c *ImageCatalog) List(ctx context.Context, projectID uuid.UUID, sortOrder string) ([]models.Image, error) {
	if sortOrder == "" {
		sortOrder = database.DefaultSortOrder
	}
	if !database.IsValidSortOrder(sortOrder) {
		return nil, apperr.Newf(apperr.CodeInvalid, "unknown sort order %q", sortOrder)
	}
	images, err := c.images.ListByProject(ctx, projectID)
	if err != nil {
		return nil, internal(err, "failed to list images")
	}

	switch sortOrder {
	case database.SortFilenameNat:
		sort.SliceStable(images, func(i, j int) bool {
			return natsort.Compare(images[i].Filename, images[j].Filename)
		})
	case database.SortUploadedDesc:
		for i, j := 0, len(images)-1; i < j; i, j = i+1, j-1 {
			images[i], images[j] = images[j], images[i]
		}
	}
	return images, nil
}

// Get returns one image of the project
func (c *ImageCatalog) Get(ctx context.Context, projectID, imageID uuid.UUID) (*models.Image, error) {
	image, err := c.images.GetInProject(ctx, projectID, imageID)
	if err != nil {
		return nil, internal(err, "failed to load image")
	}
	return image, nil
}

// Open returns the original file of an image
func (c *ImageCatalog) Open(ctx context.Context, projectID, imageID uuid.UUID) (*models.Image, io.ReadCloser, error) {
	image, err := c.Get(ctx, projectID, imageID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := c.store.Open(image.StoragePath)
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.CodeNotFound, "image file not found")
	}
	return image, rc, nil
}

// OpenThumbnail returns the thumbnail of an image, or not found while it is
// still being generated
func (c *ImageCatalog) OpenThumbnail(ctx context.Context, projectID, imageID uuid.UUID) (io.ReadCloser, error) {
	image, err := c.Get(ctx, projectID, imageID)
	if err != nil {
		return nil, err
	}
	if image.ThumbnailPath == nil {
		return nil, apperr.NotFound("thumbnail")
	}
	rc, err := c.store.Open(*image.ThumbnailPath)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeNotFound, "thumbnail not found")
	}
	return rc, nil
}

// Delete removes the image record, its annotations, its assignment and its
// files
func (c *ImageCatalog) Delete(ctx context.Context, projectID, imageID uuid.UUID) error {
	image, err := c.Get(ctx, projectID, imageID)
	if err != nil {
		return err
	}
	if err := c.images.Delete(ctx, projectID, imageID); err != nil {
		return internal(err, "failed to delete image")
	}
	c.removeFiles(image)
	logger.L().Info("image deleted", zap.String("project_id", projectID.String()), zap.String("image_id", imageID.String()))
	return nil
}

func (c *ImageCatalog) removeFiles(image *models.Image) {
	paths := []string{image.StoragePath}
	if image.ThumbnailPath != nil {
		paths = append(paths, *image.ThumbnailPath)
	}
	for _, p := range paths {
		if err := c.store.Delete(p); err != nil {
			logger.L().Warn("failed to delete image file", zap.String("path", p), zap.Error(err))
		}
	}
}

// RequeueMissingThumbnails queues thumbnail jobs for images that have none,
// for instance because the process stopped before the queue drained
func (c *ImageCatalog) RequeueMissingThumbnails(ctx context.Context, limit int) (int, error) {
	if c.thumbs == nil {
		return 0, nil
	}
	images, err := c.images.ListMissingThumbnails(ctx, limit)
	if err != nil {
		return 0, internal(err, "failed to list images without thumbnails")
	}
	queued := 0
	for _, img := range images {
		if c.thumbs.QueueJob(workers.ThumbnailJob{ImageID: img.ID, ProjectID: img.ProjectID, StoragePath: img.StoragePath}) {
			queued++
		}
	}
	return queued, nil
}
