package media

import (
	"fmt"
	"image"
	"io"

	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/logger"
)

// ReadMetadata decodes the image header for its dimensions and, when
// present, the EXIF capture time. A file that is not a decodable image is
// an error; missing EXIF is not.
func ReadMetadata(r io.ReadSeeker) (*Metadata, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to decode image header: %w", err)
	}
	meta := &Metadata{Format: format, Width: cfg.Width, Height: cfg.Height}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: failed to seek: %w", err)
	}

	exifData, err := exif.Decode(r)
	if err != nil {
		logger.L().Debug("metadata: no EXIF data", zap.String("format", format), zap.Error(err))
		return meta, nil
	}

	dt, err := exifData.DateTime()
	if err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	} else {
		logger.L().Debug("metadata: could not read DateTimeOriginal", zap.Error(err))
	}
	return meta, nil
}
