package models

import (
	"time"

	"github.com/google/uuid"
)

type DocumentKind string

const (
	KindText  DocumentKind = "text"
	KindCode  DocumentKind = "code"
	KindSheet DocumentKind = "sheet"
)

func (k DocumentKind) Valid() bool {
	switch k {
	case KindText, KindCode, KindSheet:
		return true
	}
	return false
}

// Document артефакт; каждая правка сохраняется новой версией с тем же ID
type Document struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time    `gorm:"primaryKey" json:"createdAt"`
	UserID    uuid.UUID    `gorm:"type:uuid;index;not null" json:"userId"`
	Title     string       `gorm:"not null" json:"title"`
	Kind      DocumentKind `gorm:"size:16;not null;default:'text'" json:"kind"`
	Content   string       `json:"content"`
}
