package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dataset split values. A nil split is exported as train.
const (
	SplitTrain = "train"
	SplitVal   = "val"
)

// IsValidSplit reports whether s is an accepted dataset split value.
func IsValidSplit(s string) bool {
	return s == SplitTrain || s == SplitVal
}

// Image is an uploaded image of a project.
type Image struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID     uuid.UUID `json:"project_id" gorm:"type:uuid;not null;index:idx_image_project_uploaded"`
	Filename      string    `json:"filename" gorm:"type:varchar(255);not null"` // name as uploaded
	StoragePath   string    `json:"-" gorm:"type:varchar(500);not null"`        // relative to the media store
	ThumbnailPath *string   `json:"thumbnail_path,omitempty" gorm:"type:varchar(500)"`
	Width         int       `json:"width" gorm:"not null"`
	Height        int       `json:"height" gorm:"not null"`
	FileSize      int64     `json:"file_size" gorm:"not null"`
	DatasetSplit  *string   `json:"dataset_split,omitempty" gorm:"type:varchar(10)"`
	TakenAt       *int64    `json:"taken_at,omitempty"` // Unix timestamp from EXIF, if any
	UploadedAt    time.Time `json:"uploaded_at" gorm:"not null;index:idx_image_project_uploaded"`
}

func (Image) TableName() string {
	return "images"
}

func (i *Image) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.UploadedAt.IsZero() {
		i.UploadedAt = time.Now()
	}
	return nil
}

// ImageAssignment gives an image to exactly one annotator. ImageID is the
// primary key, so the store itself rejects a second assignment.
type ImageAssignment struct {
	ImageID    uuid.UUID `json:"image_id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	AssignedAt time.Time `json:"assigned_at" gorm:"not null"`
}

func (ImageAssignment) TableName() string {
	return "image_assignments"
}

func (a *ImageAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	return nil
}
