package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/models"
	"gorm.io/gorm"
)

// GoogleIdentity данные пользователя из Google userinfo
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	if err := d.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (d *Database) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ClaimUsername назначает username пользователю. Уникальность держит индекс,
// поэтому при гонке двух запросов проигравший получает ErrUsernameTaken
func (d *Database) ClaimUsername(ctx context.Context, userID uuid.UUID, username string) (*models.User, error) {
	user, err := d.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Username != nil && *user.Username == username {
		return user, nil
	}

	res := d.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("username", username)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("claim username: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	user.Username = &username
	return user, nil
}

// UpsertGoogleUser находит пользователя по Google subject, затем по почте.
// Если вход выполнил гость, его запись превращается в обычный аккаунт
func (d *Database) UpsertGoogleUser(ctx context.Context, gi GoogleIdentity, guestID *uuid.UUID) (*models.User, error) {
	var out *models.User
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User

		err := tx.Where("google_subject = ?", gi.Subject).First(&user).Error
		if err == nil {
			out = &user
			return fillFromGoogle(tx, &user, gi)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		err = tx.Where("email = ?", gi.Email).First(&user).Error
		if err == nil {
			user.GoogleSubject = &gi.Subject
			out = &user
			return fillFromGoogle(tx, &user, gi)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if guestID != nil {
			err = tx.First(&user, "id = ?", *guestID).Error
			if err == nil && user.IsGuest() {
				user.Email = gi.Email
				user.GoogleSubject = &gi.Subject
				out = &user
				return fillFromGoogle(tx, &user, gi)
			}
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		user = models.User{
			Email:          gi.Email,
			GoogleSubject:  &gi.Subject,
			DisplayName:    gi.Name,
			ProfilePicture: gi.Picture,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		out = &user
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert google user: %w", err)
	}
	return out, nil
}

func fillFromGoogle(tx *gorm.DB, user *models.User, gi GoogleIdentity) error {
	if user.DisplayName == "" {
		user.DisplayName = gi.Name
	}
	if user.ProfilePicture == "" {
		user.ProfilePicture = gi.Picture
	}
	return tx.Save(user).Error
}
