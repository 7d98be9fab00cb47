package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatMessage struct {
	ID      string  `gorm:"primaryKey;size:36" json:"id"`
	UserID  string  `gorm:"index;size:64;not null" json:"userId"`
	Message string  `gorm:"not null" json:"message"`
	IsBot   bool    `json:"isBot"`
	Context *string `json:"context,omitempty"`

	// Timestamp is the creation time in unix milliseconds.
	Timestamp int64 `gorm:"index;not null" json:"timestamp"`
}

func (m *ChatMessage) Time() time.Time {
	return time.UnixMilli(m.Timestamp).UTC()
}

func (m *ChatMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
