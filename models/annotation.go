package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Vertex is one point of an annotation. Values are stored exactly as the
// client sent them; no coordinate space is imposed.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vertices is an ordered open polygon. One point is a point annotation.
type Vertices []Vertex

// Valid reports whether the polygon has at least one point and only finite
// coordinates.
func (vs Vertices) Valid() bool {
	if len(vs) == 0 {
		return false
	}
	for _, v := range vs {
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
			return false
		}
	}
	return true
}

// Annotation is a labeled polygon on an image. ClassID references a
// ProjectClass without a foreign key: deleting the class leaves the
// annotation in place and the exporter skips it.
type Annotation struct {
	ID        uuid.UUID                   `json:"id" gorm:"type:uuid;primaryKey"`
	ImageID   uuid.UUID                   `json:"image_id" gorm:"type:uuid;not null;index"`
	ClassID   uuid.UUID                   `json:"class_id" gorm:"type:uuid;not null;index"`
	Vertices  datatypes.JSONSlice[Vertex] `json:"vertices" gorm:"not null"`
	Seq       int                         `json:"-" gorm:"not null;default:0"` // insertion order within the image
	CreatedBy uuid.UUID                   `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

func (Annotation) TableName() string {
	return "annotations"
}

func (a *Annotation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Points returns the stored vertices as a Vertices value.
func (a *Annotation) Points() Vertices {
	return Vertices(a.Vertices)
}
