package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/models"
	"gorm.io/gorm"
)

func (d *Database) SaveChat(ctx context.Context, chat *models.Chat) error {
	return d.db.WithContext(ctx).Create(chat).Error
}

func (d *Database) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := d.db.WithContext(ctx).First(&chat, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &chat, nil
}

// GetUserChats история чатов пользователя, новые первыми
func (d *Database) GetUserChats(ctx context.Context, userID uuid.UUID, limit int) ([]models.Chat, error) {
	var chats []models.Chat
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&chats).Error
	return chats, err
}

func (d *Database) UpdateChatVisibility(ctx context.Context, id string, visibility models.Visibility) error {
	res := d.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", id).Update("visibility", visibility)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) DeleteChat(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Message{}, "chat_id = ?", id).Error; err != nil {
			return err
		}

		res := tx.Delete(&models.Chat{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
