package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/onboarding"
	"github.com/thereayou/quipe/internal/services"
	"github.com/thereayou/quipe/internal/telemetry"
	"github.com/thereayou/quipe/internal/username"
	ws "github.com/thereayou/quipe/internal/websocket"
	"go.uber.org/zap"
)

type OnboardingHandler struct {
	flows *onboarding.Store
	store services.Store
	hub   FlowPublisher
	tel   *telemetry.Client
	log   *zap.Logger
}

func NewOnboardingHandler(flows *onboarding.Store, store services.Store, hub FlowPublisher, tel *telemetry.Client, log *zap.Logger) *OnboardingHandler {
	return &OnboardingHandler{flows: flows, store: store, hub: hub, tel: tel, log: log}
}

type continuationRequest struct {
	Step     onboarding.Step `json:"step" binding:"required"`
	Username string          `json:"username"`
	ChatID   string          `json:"chatId" binding:"max=191"`
}

// CreateContinuation сохраняет шаг онбординга перед уходом на OAuth
func (h *OnboardingHandler) CreateContinuation(c *gin.Context) {
	var req continuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	st := onboarding.State{
		Step:      req.Step,
		Username:  username.Normalize(req.Username),
		ChatID:    req.ChatID,
		ChatModel: selectedChatModel(c),
	}
	if st.Username != "" {
		if err := username.Validate(st.Username); err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	if id, ok := middleware.UserID(c); ok && !middleware.IsGuest(c) {
		if user, err := h.store.GetUser(c.Request.Context(), id); err == nil {
			info := userInfo(user)
			st.User = &info
		}
	}

	token, st, err := h.flows.Issue(c.Request.Context(), st)
	if errors.Is(err, onboarding.ErrInvalidStep) {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to save onboarding state")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":     token,
		"flowId":    st.FlowID,
		"expiresAt": time.Now().Add(h.flows.TTL()).UTC(),
	})
}

type resumeRequest struct {
	Token string `json:"token" binding:"required"`
}

// Resume погашает токен и возвращает восстановленное состояние
// вместе с новым токеном для следующего шага
func (h *OnboardingHandler) Resume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	st, err := h.flows.Consume(ctx, req.Token)
	if errors.Is(err, onboarding.ErrInvalidToken) {
		errorJSON(c, http.StatusGone, "Onboarding session expired")
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to restore onboarding state")
		return
	}

	// гость ещё не вошёл: шаг auth остаётся за ним
	var user any
	if id, ok := middleware.UserID(c); ok && !middleware.IsGuest(c) {
		u, err := h.store.GetUser(ctx, id)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			internalError(c, h.log, err, "Failed to restore onboarding state")
			return
		}
		if u != nil {
			st = st.AfterSignIn(userInfo(u))
			user = st.User
		}
	}

	token, st, err := h.flows.Issue(ctx, st)
	if err != nil {
		internalError(c, h.log, err, "Failed to restore onboarding state")
		return
	}

	if err := h.hub.Publish(st.FlowID, ws.TypeContinueOnboarding, gin.H{"state": st}); err != nil {
		h.log.Warn("flow publish failed", zap.String("flow", st.FlowID), zap.Error(err))
	}
	h.tel.Track("", "onboarding_resumed", map[string]any{"step": string(st.Step), "flowId": st.FlowID})

	c.JSON(http.StatusOK, gin.H{"state": st, "user": user, "token": token})
}
