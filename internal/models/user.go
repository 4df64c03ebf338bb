package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// guestEmailRegex совпадает с локальной частью почты гостевого аккаунта
var guestEmailRegex = regexp.MustCompile(`^guest-\d+$`)

type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   *string   `json:"-"`
	Username       *string   `gorm:"uniqueIndex" json:"username"`
	DisplayName    string    `gorm:"size:100" json:"displayName"`
	Bio            string    `gorm:"size:500" json:"bio"`
	ProfilePicture string    `json:"profilePicture"`
	GoogleSubject  *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsGuest определяет гостевой аккаунт по адресу почты
func (u *User) IsGuest() bool {
	local, _, _ := strings.Cut(u.Email, "@")
	return guestEmailRegex.MatchString(local)
}

// UsernameValue возвращает username или пустую строку, если он ещё не занят
func (u *User) UsernameValue() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// PublicName то, как пользователя показываем другим
func (u *User) PublicName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.UsernameValue()
}
