package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/thereayou/quipe/internal/models"
)

// В форме регистрации дефис не допускается
var registerUsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// Order порядок элемента; клиент присылает и строку, и число
type Order string

func (o *Order) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = Order(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("order must be a string or number")
	}
	*o = Order(n.String())
	return nil
}

type PhotoInput struct {
	URL   string `json:"url"`
	Order Order  `json:"order"`
}

type SocialLinkInput struct {
	Platform    string `json:"platform"`
	URL         string `json:"url"`
	DisplayText string `json:"displayText"`
	Order       Order  `json:"order"`
}

type RegisterRequest struct {
	Email          string            `json:"email" binding:"required,email"`
	Password       string            `json:"password" binding:"required,min=6,max=72"`
	Username       string            `json:"username" binding:"required"`
	DisplayName    string            `json:"displayName" binding:"max=100"`
	Bio            string            `json:"bio" binding:"max=500"`
	ProfilePicture string            `json:"profilePicture"`
	Photos         []PhotoInput      `json:"photos"`
	SocialLinks    []SocialLinkInput `json:"socialLinks"`
}

// Validate проверки, которые не выражаются тегами binding
func (r *RegisterRequest) Validate() error {
	if !registerUsernameRegex.MatchString(r.Username) {
		return errors.New("Username must be 3-32 characters and contain only letters, numbers, and underscores")
	}
	if r.ProfilePicture != "" && !validURL(r.ProfilePicture) {
		return errors.New("Profile picture must be a valid URL")
	}
	if err := ValidatePhotos(r.Photos); err != nil {
		return err
	}
	return ValidateSocialLinks(r.SocialLinks)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// ProfileUpdateRequest отсутствующие поля не меняются
type ProfileUpdateRequest struct {
	DisplayName    *string            `json:"displayName" binding:"omitempty,max=100"`
	Bio            *string            `json:"bio" binding:"omitempty,max=500"`
	ProfilePicture *string            `json:"profilePicture"`
	Photos         *[]PhotoInput      `json:"photos"`
	SocialLinks    *[]SocialLinkInput `json:"socialLinks"`
}

func (r *ProfileUpdateRequest) Validate() error {
	if r.ProfilePicture != nil && *r.ProfilePicture != "" && !validURL(*r.ProfilePicture) {
		return errors.New("Profile picture must be a valid URL")
	}
	if r.Photos != nil {
		if err := ValidatePhotos(*r.Photos); err != nil {
			return err
		}
	}
	if r.SocialLinks != nil {
		return ValidateSocialLinks(*r.SocialLinks)
	}
	return nil
}

func ValidatePhotos(photos []PhotoInput) error {
	if len(photos) > models.MaxPhotos {
		return fmt.Errorf("You can add up to %d photos", models.MaxPhotos)
	}
	for _, p := range photos {
		if !validURL(p.URL) {
			return errors.New("Photo URL must be a valid URL")
		}
	}
	return nil
}

func ValidateSocialLinks(links []SocialLinkInput) error {
	if len(links) > models.MaxSocialLinks {
		return fmt.Errorf("You can add up to %d social links", models.MaxSocialLinks)
	}
	for _, l := range links {
		if !models.IsKnownPlatform(l.Platform) {
			return fmt.Errorf("Unsupported platform %q", l.Platform)
		}
		if !validURL(l.URL) {
			return errors.New("Social link URL must be a valid URL")
		}
		if len([]rune(l.DisplayText)) > 100 {
			return errors.New("Display text must be at most 100 characters")
		}
	}
	return nil
}

// ToPhotos порядок по умолчанию равен позиции в списке
func ToPhotos(in []PhotoInput) []models.UserPhoto {
	out := make([]models.UserPhoto, 0, len(in))
	for i, p := range in {
		out = append(out, models.UserPhoto{URL: p.URL, Order: orderOrIndex(p.Order, i)})
	}
	return out
}

func ToSocialLinks(in []SocialLinkInput) []models.SocialLink {
	out := make([]models.SocialLink, 0, len(in))
	for i, l := range in {
		out = append(out, models.SocialLink{
			Platform:    l.Platform,
			URL:         l.URL,
			DisplayText: l.DisplayText,
			Order:       orderOrIndex(l.Order, i),
		})
	}
	return out
}

func orderOrIndex(o Order, i int) string {
	if o == "" {
		return strconv.Itoa(i)
	}
	return string(o)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// UserResponse публичное представление пользователя
type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Picture     string `json:"profilePicture,omitempty"`
	IsGuest     bool   `json:"isGuest"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		Username:    u.UsernameValue(),
		DisplayName: u.DisplayName,
		Picture:     u.ProfilePicture,
		IsGuest:     u.IsGuest(),
	}
}
