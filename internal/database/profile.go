package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ProfileUpdate nil-поля не трогаются; Photos и SocialLinks, если заданы, заменяются целиком
type ProfileUpdate struct {
	DisplayName    *string
	Bio            *string
	ProfilePicture *string
	Photos         *[]models.UserPhoto
	SocialLinks    *[]models.SocialLink
}

// CreateUserWithProfile создаёт пользователя вместе с фото и ссылками в одной транзакции
func (d *Database) CreateUserWithProfile(ctx context.Context, user *models.User, photos []models.UserPhoto, links []models.SocialLink) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return replaceProfileItems(tx, user.ID, &photos, &links)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		if _, lookupErr := d.FindUserByEmail(ctx, user.Email); lookupErr == nil {
			return ErrEmailTaken
		}
		return ErrUsernameTaken
	}
	return err
}

func (d *Database) GetUserWithProfile(ctx context.Context, id uuid.UUID) (*models.UserWithProfile, error) {
	user, err := d.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.loadProfile(ctx, user)
}

func (d *Database) GetProfileByUsername(ctx context.Context, username string) (*models.UserWithProfile, error) {
	user, err := d.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return d.loadProfile(ctx, user)
}

func (d *Database) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*models.UserWithProfile, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{}
		if upd.DisplayName != nil {
			fields["display_name"] = *upd.DisplayName
		}
		if upd.Bio != nil {
			fields["bio"] = *upd.Bio
		}
		if upd.ProfilePicture != nil {
			fields["profile_picture"] = *upd.ProfilePicture
		}
		if len(fields) > 0 {
			res := tx.Model(&models.User{}).Where("id = ?", id).Updates(fields)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return replaceProfileItems(tx, id, upd.Photos, upd.SocialLinks)
	})
	if err != nil {
		return nil, err
	}
	return d.GetUserWithProfile(ctx, id)
}

func replaceProfileItems(tx *gorm.DB, userID uuid.UUID, photos *[]models.UserPhoto, links *[]models.SocialLink) error {
	if photos != nil {
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserPhoto{}).Error; err != nil {
			return err
		}
		if len(*photos) > 0 {
			for i := range *photos {
				(*photos)[i].ID = uuid.Nil
				(*photos)[i].UserID = userID
			}
			if err := tx.Create(photos).Error; err != nil {
				return err
			}
		}
	}
	if links != nil {
		if err := tx.Where("user_id = ?", userID).Delete(&models.SocialLink{}).Error; err != nil {
			return err
		}
		if len(*links) > 0 {
			for i := range *links {
				(*links)[i].ID = uuid.Nil
				(*links)[i].UserID = userID
			}
			if err := tx.Create(links).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// loadProfile подгружает фото и ссылки параллельно
func (d *Database) loadProfile(ctx context.Context, user *models.User) (*models.UserWithProfile, error) {
	out := &models.UserWithProfile{
		User:        *user,
		Photos:      []models.UserPhoto{},
		SocialLinks: []models.SocialLink{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.db.WithContext(gctx).Where("user_id = ?", user.ID).Find(&out.Photos).Error
	})
	g.Go(func() error {
		return d.db.WithContext(gctx).Where("user_id = ?", user.ID).Find(&out.SocialLinks).Error
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	models.SortPhotos(out.Photos)
	models.SortSocialLinks(out.SocialLinks)
	return out, nil
}
