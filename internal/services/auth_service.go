package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/models"
	"github.com/thereayou/quipe/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

const GuestEmailDomain = "quipe.guest"

var ErrInvalidCredentials = errors.New("invalid credentials")

type RegisterInput struct {
	Email          string
	Password       string
	Username       string
	DisplayName    string
	Bio            string
	ProfilePicture string
	Photos         []models.UserPhoto
	SocialLinks    []models.SocialLink
}

// Session выданный пользователю токен
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

type AuthService struct {
	store Store
	jwt   *auth.JWTManager
	redis *redis.Client
	node  *snowflake.Node
}

func NewAuthService(store Store, jwtManager *auth.JWTManager, rdb *redis.Client, node *snowflake.Node) *AuthService {
	return &AuthService{store: store, jwt: jwtManager, redis: rdb, node: node}
}

// Register создаёт пользователя с профилем; ошибки database.ErrEmailTaken и
// database.ErrUsernameTaken возвращаются как есть
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashed := string(hash)
	name := in.Username

	user := &models.User{
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash:   &hashed,
		Username:       &name,
		DisplayName:    in.DisplayName,
		Bio:            in.Bio,
		ProfilePicture: in.ProfilePicture,
	}
	if err := s.store.CreateUserWithProfile(ctx, user, in.Photos, in.SocialLinks); err != nil {
		return nil, err
	}
	return s.Issue(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.Issue(user)
}

// Guest создаёт гостевого пользователя guest-<snowflake>@quipe.guest
func (s *AuthService) Guest(ctx context.Context) (*Session, error) {
	user := &models.User{
		Email: fmt.Sprintf("guest-%d@%s", s.node.Generate().Int64(), GuestEmailDomain),
	}
	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	return s.Issue(user)
}

// Issue подписывает JWT; тип сессии определяется по почте пользователя
func (s *AuthService) Issue(user *models.User) (*Session, error) {
	userType := auth.UserTypeRegular
	if user.IsGuest() {
		userType = auth.UserTypeGuest
	}
	token, err := s.jwt.Generate(user.ID.String(), userType)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: time.Now().Add(s.jwt.Duration())}, nil
}

// Logout ставит токен в черный список в Redis до истечения
func (s *AuthService) Logout(ctx context.Context, token string) error {
	exp, err := s.jwt.Expiry(token)
	if err != nil {
		return err
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, middleware.BlacklistKey(token), 1, ttl).Err()
}

// GoogleSignIn заводит или обновляет пользователя по данным Google.
// guestID текущей гостевой сессии, если она есть
func (s *AuthService) GoogleSignIn(ctx context.Context, gu *auth.GoogleUser, guestID *uuid.UUID) (*Session, error) {
	user, err := s.store.UpsertGoogleUser(ctx, database.GoogleIdentity{
		Subject:       gu.Subject,
		Email:         strings.ToLower(gu.Email),
		EmailVerified: gu.EmailVerified,
		Name:          gu.Name,
		Picture:       gu.Picture,
	}, guestID)
	if err != nil {
		return nil, err
	}
	return s.Issue(user)
}
