package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/models"
)

func (d *Database) SaveMessages(ctx context.Context, messages ...*models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).Create(messages).Error
}

// GetChatMessages получает сообщения чата с пагинацией
func (d *Database) GetChatMessages(ctx context.Context, chatID string, limit int, beforeID *uuid.UUID) ([]models.Message, error) {
	var messages []models.Message

	query := d.db.WithContext(ctx).Where("chat_id = ?", chatID)

	// Если указан beforeID, получаем сообщения до него
	if beforeID != nil {
		var beforeMsg models.Message
		if err := d.db.WithContext(ctx).First(&beforeMsg, "id = ?", *beforeID).Error; err == nil {
			query = query.Where("created_at < ?", beforeMsg.CreatedAt)
		}
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Разворачиваем порядок, чтобы старые сообщения были первыми
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// CountUserMessagesSince считает сообщения пользователя во всех его чатах
func (d *Database) CountUserMessagesSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Joins("JOIN chats ON chats.id = messages.chat_id").
		Where("chats.user_id = ? AND messages.role = ? AND messages.created_at >= ?", userID, models.RoleUser, since).
		Count(&n).Error
	return n, err
}
