package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/quipe/pkg/auth"
)

const (
	UserIDKey   = "userID"
	UserTypeKey = "userType"
	TokenKey    = "sessionToken"
)

// BlacklistKey ключ Redis для отозванного токена
func BlacklistKey(token string) string {
	return "blacklist:" + token
}

type Authenticator struct {
	jwt    *auth.JWTManager
	redis  *redis.Client
	cookie string
}

func NewAuthenticator(jwtManager *auth.JWTManager, redisClient *redis.Client, cookieName string) *Authenticator {
	return &Authenticator{jwt: jwtManager, redis: redisClient, cookie: cookieName}
}

var errBlacklisted = errors.New("token is blacklisted")

func (a *Authenticator) identify(ctx context.Context, r *http.Request) (*auth.Claims, uuid.UUID, string, error) {
	token, err := auth.ExtractToken(r, a.cookie)
	if err != nil {
		return nil, uuid.Nil, "", err
	}

	// Проверяем, не в черном списке ли токен
	exists, err := a.redis.Exists(ctx, BlacklistKey(token)).Result()
	if err != nil {
		return nil, uuid.Nil, "", err
	}
	if exists > 0 {
		return nil, uuid.Nil, "", errBlacklisted
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		return nil, uuid.Nil, "", err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, "", err
	}
	return claims, userID, token, nil
}

func (a *Authenticator) set(c *gin.Context, claims *auth.Claims, userID uuid.UUID, token string) {
	c.Set(UserIDKey, userID)
	c.Set(UserTypeKey, claims.Type)
	c.Set(TokenKey, token)
}

// Required пропускает только запросы с действующей сессией (cookie или Bearer)
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, userID, token, err := a.identify(c.Request.Context(), c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		a.set(c, claims, userID, token)
		c.Next()
	}
}

// Optional определяет пользователя, если сессия есть, и пропускает запрос в любом случае
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, userID, token, err := a.identify(c.Request.Context(), c.Request); err == nil {
			a.set(c, claims, userID, token)
		}
		c.Next()
	}
}

// UserID текущий пользователь, если он определён
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func IsGuest(c *gin.Context) bool {
	v, _ := c.Get(UserTypeKey)
	t, _ := v.(auth.UserType)
	return t == auth.UserTypeGuest
}

func SessionToken(c *gin.Context) string {
	return c.GetString(TokenKey)
}
