package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Model is the common header of every marketplace record. Identities are
// opaque uuid strings assigned on insert.
type Model struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (m *Model) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
