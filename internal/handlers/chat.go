package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/ai"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/handlers/dto"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/models"
	"github.com/thereayou/quipe/internal/services"
	"go.uber.org/zap"
)

const (
	GuestMessagesPerDay   = 20
	RegularMessagesPerDay = 100

	maxTitleLength = 80
	historyWindow  = 50
)

// ChatEngine один ход модели; *ai.Engine подходит
type ChatEngine interface {
	Run(ctx context.Context, turn ai.Turn, emit ai.Emit) (*ai.Result, error)
}

type ChatHandler struct {
	store        services.Store
	engine       ChatEngine
	cookieSecure bool
	log          *zap.Logger
	now          func() time.Time
}

func NewChatHandler(store services.Store, engine ChatEngine, cookieSecure bool, log *zap.Logger) *ChatHandler {
	return &ChatHandler{store: store, engine: engine, cookieSecure: cookieSecure, log: log, now: time.Now}
}

// Chat сохраняет сообщение пользователя и стримит ответ модели через SSE
func (h *ChatHandler) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	userID, _ := middleware.UserID(c)
	guest := middleware.IsGuest(c)

	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	text := req.Message.Text()
	if text == "" {
		errorJSON(c, http.StatusBadRequest, "Message text is required")
		return
	}
	model := req.SelectedChatModel
	if model == "" {
		model = selectedChatModel(c)
	}
	if !ai.ValidModel(model) {
		errorJSON(c, http.StatusBadRequest, "Unknown chat model")
		return
	}
	visibility := req.SelectedVisibilityType
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	if !visibility.Valid() {
		errorJSON(c, http.StatusBadRequest, "Unknown visibility type")
		return
	}

	limit := RegularMessagesPerDay
	if guest {
		limit = GuestMessagesPerDay
	}
	count, err := h.store.CountUserMessagesSince(ctx, userID, h.now().Add(-24*time.Hour))
	if err != nil {
		internalError(c, h.log, err, "Failed to check message quota")
		return
	}
	if count >= int64(limit) {
		errorJSON(c, http.StatusTooManyRequests, "You have exceeded your maximum number of messages for the day! Please try again later.")
		return
	}

	chat, err := h.store.GetChat(ctx, req.ID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		chat = &models.Chat{ID: req.ID, UserID: userID, Title: chatTitle(text), Visibility: visibility}
		if err := h.store.SaveChat(ctx, chat); err != nil {
			internalError(c, h.log, err, "Failed to create chat")
			return
		}
	case err != nil:
		internalError(c, h.log, err, "Failed to load chat")
		return
	case chat.UserID != userID:
		errorJSON(c, http.StatusForbidden, "Forbidden")
		return
	}

	previous, err := h.store.GetChatMessages(ctx, chat.ID, historyWindow, nil)
	if err != nil {
		internalError(c, h.log, err, "Failed to load chat")
		return
	}

	userMsg, err := newMessage(req.Message.ID, chat.ID, models.RoleUser, req.Message.Parts)
	if err != nil {
		internalError(c, h.log, err, "Failed to save message")
		return
	}
	if err := h.store.SaveMessages(ctx, userMsg); err != nil {
		internalError(c, h.log, err, "Failed to save message")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	emit := func(event string, data any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.SSEvent(event, data)
		c.Writer.Flush()
		return nil
	}

	assistantID := uuid.New()
	_ = emit("start", gin.H{"messageId": assistantID})

	res, err := h.engine.Run(ctx, ai.Turn{
		ChatModel: model,
		Guest:     guest,
		Hints:     requestHints(c),
		History:   ai.HistoryFromMessages(previous),
		UserText:  text,
		UserID:    userID,
		ChatID:    chat.ID,
	}, emit)
	if err != nil {
		h.log.Error("chat turn failed", zap.String("chat", chat.ID), zap.Error(err))
		_ = emit("error", gin.H{"error": "An error occurred while generating the response"})
		return
	}

	if len(res.Parts) > 0 {
		reply, err := newMessage(assistantID.String(), chat.ID, models.RoleAssistant, res.Parts)
		if err == nil {
			err = h.store.SaveMessages(context.WithoutCancel(ctx), reply)
		}
		if err != nil {
			h.log.Error("save assistant message", zap.String("chat", chat.ID), zap.Error(err))
		}
	}
	_ = emit("finish", gin.H{"messageId": assistantID, "steps": res.Steps})
}

// GetChat сообщения чата; приватный чат виден только владельцу
func (h *ChatHandler) GetChat(c *gin.Context) {
	ctx := c.Request.Context()
	chat, ok := h.loadChat(c)
	if !ok {
		return
	}
	if chat.Visibility == models.VisibilityPrivate {
		if id, signed := middleware.UserID(c); !signed || id != chat.UserID {
			errorJSON(c, http.StatusForbidden, "Forbidden")
			return
		}
	}

	limit := queryLimit(c, historyWindow, 100)
	var beforeID *uuid.UUID
	if before := c.Query("before"); before != "" {
		if id, err := uuid.Parse(before); err == nil {
			beforeID = &id
		}
	}

	messages, err := h.store.GetChatMessages(ctx, chat.ID, limit, beforeID)
	if err != nil {
		internalError(c, h.log, err, "Failed to get messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chat":     chat,
		"messages": messages,
		"hasMore":  len(messages) == limit,
	})
}

// DeleteChat удаляет чат владельца вместе с сообщениями
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chat, ok := h.ownChat(c)
	if !ok {
		return
	}
	if err := h.store.DeleteChat(c.Request.Context(), chat.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
		internalError(c, h.log, err, "Failed to delete chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": chat.ID})
}

func (h *ChatHandler) UpdateVisibility(c *gin.Context) {
	var req dto.VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Visibility.Valid() {
		errorJSON(c, http.StatusBadRequest, "Unknown visibility type")
		return
	}
	chat, ok := h.ownChat(c)
	if !ok {
		return
	}
	if err := h.store.UpdateChatVisibility(c.Request.Context(), chat.ID, req.Visibility); err != nil {
		internalError(c, h.log, err, "Failed to update chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": chat.ID, "visibility": req.Visibility})
}

// History чаты текущего пользователя
func (h *ChatHandler) History(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	limit := queryLimit(c, 20, 100)

	chats, err := h.store.GetUserChats(c.Request.Context(), userID, limit)
	if err != nil {
		internalError(c, h.log, err, "Failed to load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats, "hasMore": len(chats) == limit})
}

// Document все версии документа владельца
func (h *ChatHandler) Document(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	id, err := uuid.Parse(c.Query("id"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "Parameter id is missing")
		return
	}

	docs, err := h.store.GetDocumentVersions(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to load document")
		return
	}
	if docs[0].UserID != userID {
		errorJSON(c, http.StatusForbidden, "Forbidden")
		return
	}
	c.JSON(http.StatusOK, docs)
}

// SetChatModel запоминает выбранную модель в cookie
func (h *ChatHandler) SetChatModel(c *gin.Context) {
	var req dto.ChatModelRequest
	if err := c.ShouldBindJSON(&req); err != nil || !ai.ValidModel(req.Model) {
		errorJSON(c, http.StatusBadRequest, "Unknown chat model")
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     ChatModelCookie,
		Value:    req.Model,
		Path:     "/",
		MaxAge:   int(chatModelCookieTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookieSecure,
	})
	c.JSON(http.StatusOK, gin.H{"model": req.Model})
}

func (h *ChatHandler) loadChat(c *gin.Context) (*models.Chat, bool) {
	chat, err := h.store.GetChat(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "Chat not found")
		return nil, false
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to load chat")
		return nil, false
	}
	return chat, true
}

func (h *ChatHandler) ownChat(c *gin.Context) (*models.Chat, bool) {
	chat, ok := h.loadChat(c)
	if !ok {
		return nil, false
	}
	if id, _ := middleware.UserID(c); id != chat.UserID {
		errorJSON(c, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return chat, true
}

func newMessage(id, chatID, role string, parts []models.Part) (*models.Message, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, err
	}
	msgID, err := uuid.Parse(id)
	if err != nil {
		msgID = uuid.New()
	}
	return &models.Message{
		ID:          msgID,
		ChatID:      chatID,
		Role:        role,
		Parts:       raw,
		Attachments: []byte("[]"),
	}, nil
}

// chatTitle первые maxTitleLength символов первого сообщения
func chatTitle(text string) string {
	runes := []rune(text)
	if len(runes) > maxTitleLength {
		runes = runes[:maxTitleLength]
	}
	return string(runes)
}

// requestHints геоданные из заголовков прокси
func requestHints(c *gin.Context) ai.RequestHints {
	return ai.RequestHints{
		Latitude:  c.GetHeader("X-Vercel-IP-Latitude"),
		Longitude: c.GetHeader("X-Vercel-IP-Longitude"),
		City:      c.GetHeader("X-Vercel-IP-City"),
		Country:   firstNonEmpty(c.GetHeader("X-Vercel-IP-Country"), c.GetHeader("CF-IPCountry")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
