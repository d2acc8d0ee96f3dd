package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project owns its classes, images and memberships.
type Project struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string    `json:"name" gorm:"not null"`
	Description *string   `json:"description,omitempty"`
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	// NextClassIndex is the high-water mark for class indices. It only grows,
	// so an index freed by a deleted class is never handed out again.
	NextClassIndex int       `json:"-" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProjectMember links a user to a project. Membership is what makes a user
// eligible for image assignments. Role is one of the keys in
// permissions.DefinedRoles.
type ProjectMember struct {
	ProjectID uuid.UUID `json:"project_id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey;index"`
	Role      string    `json:"role" gorm:"type:varchar(20);not null;default:annotator"`
	JoinedAt  time.Time `json:"joined_at" gorm:"not null"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}

func (m *ProjectMember) BeforeCreate(tx *gorm.DB) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	return nil
}

// ProjectClass is a label class. ClassIndex is the number written into
// exported label files and is unique per project.
type ProjectClass struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID  uuid.UUID `json:"project_id" gorm:"type:uuid;not null;uniqueIndex:idx_class_project_name;uniqueIndex:idx_class_project_index"`
	Name       string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_class_project_name"`
	ClassIndex int       `json:"class_index" gorm:"not null;uniqueIndex:idx_class_project_index"`
	Color      string    `json:"color" gorm:"type:varchar(7);not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ProjectClass) TableName() string {
	return "project_classes"
}

func (c *ProjectClass) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
