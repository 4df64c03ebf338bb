// Package handlers HTTP-обработчики API
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/quipe/internal/ai"
	"github.com/thereayou/quipe/internal/middleware"
	ws "github.com/thereayou/quipe/internal/websocket"
	"github.com/thereayou/quipe/pkg/auth"
	"go.uber.org/zap"
)

const (
	ChatModelCookie    = "chat-model"
	chatModelCookieTTL = 365 * 24 * time.Hour
)

// FlowPublisher рассылает события онбординга подписанным вкладкам
type FlowPublisher interface {
	Publish(flowID string, msgType ws.MessageType, data any) error
}

// GoogleAuthenticator вход через Google; *auth.GoogleOAuth подходит
type GoogleAuthenticator interface {
	AuthCodeURL(state, verifier, redirectURL string) string
	Exchange(ctx context.Context, code, verifier, redirectURL string) (*auth.GoogleUser, error)
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// internalError логирует причину и отвечает общим сообщением
func internalError(c *gin.Context, log *zap.Logger, err error, msg string) {
	log.Error(msg,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
	)
	errorJSON(c, http.StatusInternalServerError, msg)
}

// selectedChatModel модель из cookie, по умолчанию chat-model
func selectedChatModel(c *gin.Context) string {
	if v, err := c.Cookie(ChatModelCookie); err == nil && ai.ValidModel(v) {
		return v
	}
	return ai.ChatModelDefault
}

// queryLimit разбирает ?limit= в пределах [1, max]
func queryLimit(c *gin.Context, def, max int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= max {
			limit = parsed
		}
	}
	return limit
}
