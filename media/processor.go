package media

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/logger"
)

const (
	ThumbnailJpegQuality   = 90
	ThumbnailFileExtension = ".jpg"
)

// Processor generates derived images and saves them through a Store.
type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// Decode reads an original asset, applying its EXIF orientation
func (p *Processor) Decode(relativePath string) (image.Image, error) {
	rc, err := p.store.Open(relativePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, err := imaging.Decode(rc, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", relativePath, err)
	}
	return img, nil
}

// GenerateThumbnail creates a thumbnail whose longest side is at most
// maxSize, stores it below dirHint and returns its relative path.
func (p *Processor) GenerateThumbnail(originalImg image.Image, dirHint string, maxSize int) (string, error) {
	b := originalImg.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return "", fmt.Errorf("invalid original image dimensions: %dx%d", b.Dx(), b.Dy())
	}

	thumb := originalImg
	if b.Dx() > maxSize || b.Dy() > maxSize {
		thumb = imaging.Fit(originalImg, maxSize, maxSize, imaging.Lanczos)
	}

	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailJpegQuality))
		if err != nil {
			writer.CloseWithError(fmt.Errorf("thumbnail encoding failed: %w", err))
			return
		}
		writer.Close()
	}()

	targetFilename := uuid.NewString() + ThumbnailFileExtension
	savedRelPath, err := p.store.Save(AssetTypeThumbnail, dirHint, targetFilename, reader)
	if err != nil {
		reader.CloseWithError(err)
		return "", fmt.Errorf("failed to save thumbnail via store: %w", err)
	}

	logger.L().Debug("processor: saved thumbnail", zap.String("path", savedRelPath))
	return savedRelPath, nil
}

// Thumbnail decodes the original at originalRelPath and stores its
// thumbnail below dirHint
func (p *Processor) Thumbnail(originalRelPath, dirHint string, maxSize int) (string, error) {
	img, err := p.Decode(originalRelPath)
	if err != nil {
		return "", err
	}
	return p.GenerateThumbnail(img, dirHint, maxSize)
}
