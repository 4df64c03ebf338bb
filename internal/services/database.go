package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/models"
)

// Store всё, что обработчикам нужно от базы
type Store interface {
	Ping(ctx context.Context) error

	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	ClaimUsername(ctx context.Context, userID uuid.UUID, username string) (*models.User, error)
	UpsertGoogleUser(ctx context.Context, gi database.GoogleIdentity, guestID *uuid.UUID) (*models.User, error)

	CreateUserWithProfile(ctx context.Context, user *models.User, photos []models.UserPhoto, links []models.SocialLink) error
	GetUserWithProfile(ctx context.Context, id uuid.UUID) (*models.UserWithProfile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.UserWithProfile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd database.ProfileUpdate) (*models.UserWithProfile, error)

	SaveChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	GetUserChats(ctx context.Context, userID uuid.UUID, limit int) ([]models.Chat, error)
	UpdateChatVisibility(ctx context.Context, id string, visibility models.Visibility) error
	DeleteChat(ctx context.Context, id string) error

	SaveMessages(ctx context.Context, messages ...*models.Message) error
	GetChatMessages(ctx context.Context, chatID string, limit int, beforeID *uuid.UUID) ([]models.Message, error)
	CountUserMessagesSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)

	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocumentVersions(ctx context.Context, id uuid.UUID) ([]models.Document, error)
	GetLatestDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

var _ Store = (*database.Database)(nil)
