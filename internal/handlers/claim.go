package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/services"
	"github.com/thereayou/quipe/internal/telemetry"
	"github.com/thereayou/quipe/internal/username"
	"go.uber.org/zap"
)

type ClaimHandler struct {
	store services.Store
	tel   *telemetry.Client
	log   *zap.Logger
}

func NewClaimHandler(store services.Store, tel *telemetry.Client, log *zap.Logger) *ClaimHandler {
	return &ClaimHandler{store: store, tel: tel, log: log}
}

// Claim закрепляет username за текущим пользователем
func (h *ClaimHandler) Claim(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		errorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		errorJSON(c, http.StatusBadRequest, username.ErrRequired.Error())
		return
	}
	raw, ok := body["username"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		errorJSON(c, http.StatusBadRequest, username.ErrRequired.Error())
		return
	}

	name := username.Normalize(raw)
	if err := username.Validate(name); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.store.ClaimUsername(c.Request.Context(), userID, name)
	switch {
	case errors.Is(err, database.ErrUsernameTaken):
		errorJSON(c, http.StatusConflict, "Username is already taken")
		return
	case errors.Is(err, database.ErrNotFound):
		errorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	case err != nil:
		internalError(c, h.log, err, "Failed to claim username")
		return
	}

	h.tel.Track("", "username_claimed", map[string]any{
		"userId":   user.ID.String(),
		"username": name,
		"isGuest":  user.IsGuest(),
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user": gin.H{
			"id":          user.ID,
			"username":    user.UsernameValue(),
			"email":       user.Email,
			"displayName": user.DisplayName,
		},
	})
}
