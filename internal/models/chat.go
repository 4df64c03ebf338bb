package models

import (
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Chat id строковый: бывают детерминированные вида claim-<username>-<userId>
type Chat struct {
	ID         string     `gorm:"primaryKey;size:191" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"userId"`
	Title      string     `gorm:"not null" json:"title"`
	Visibility Visibility `gorm:"size:16;not null;default:'private'" json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`

	Messages []Message `gorm:"foreignKey:ChatID" json:"-"`
}
