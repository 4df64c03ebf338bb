package models

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxPhotos      = 3
	MaxSocialLinks = 6
)

// Platforms поддерживаемые типы ссылок профиля
var Platforms = []string{
	"twitter", "instagram", "tiktok", "youtube", "linkedin", "github", "twitch",
	"discord", "website", "blog", "portfolio", "facebook", "snapchat", "pinterest", "other",
}

type UserPhoto struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	URL    string    `gorm:"not null" json:"url"`
	Order  string    `gorm:"column:sort_order;not null" json:"order"`
}

func (p *UserPhoto) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type SocialLink struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"-"`
	Platform    string    `gorm:"size:32;not null" json:"platform"`
	URL         string    `gorm:"not null" json:"url"`
	DisplayText string    `gorm:"size:100" json:"displayText"`
	Order       string    `gorm:"column:sort_order;not null" json:"order"`
}

func (l *SocialLink) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// UserWithProfile пользователь вместе с фото и ссылками
type UserWithProfile struct {
	User
	Photos      []UserPhoto  `json:"photos"`
	SocialLinks []SocialLink `json:"socialLinks"`
}

// IsKnownPlatform проверяет тип ссылки
func IsKnownPlatform(p string) bool {
	for _, known := range Platforms {
		if known == p {
			return true
		}
	}
	return false
}

// SortPhotos сортирует по числовому значению order, нечисловые в конце
func SortPhotos(photos []UserPhoto) {
	sort.SliceStable(photos, func(i, j int) bool {
		return orderKey(photos[i].Order) < orderKey(photos[j].Order)
	})
}

// SortSocialLinks то же для ссылок
func SortSocialLinks(links []SocialLink) {
	sort.SliceStable(links, func(i, j int) bool {
		return orderKey(links[i].Order) < orderKey(links[j].Order)
	})
}

func orderKey(order string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(order), 64)
	if err != nil || math.IsNaN(n) {
		return math.Inf(1)
	}
	return n
}
