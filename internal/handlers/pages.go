package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/resolver"
	"go.uber.org/zap"
)

type PagesHandler struct {
	resolver *resolver.Resolver
	log      *zap.Logger
}

func NewPagesHandler(r *resolver.Resolver, log *zap.Logger) *PagesHandler {
	return &PagesHandler{resolver: r, log: log}
}

type pageResponse struct {
	*resolver.Resolution
	SelectedChatModel string `json:"selectedChatModel"`
}

// Resolve состояние страницы quipe.me/<username> для текущего зрителя
func (h *PagesHandler) Resolve(c *gin.Context) {
	req := resolver.Request{
		Username:   c.Param("username"),
		Onboarding: c.Query("onboarding") == "true",
	}
	if id, ok := middleware.UserID(c); ok {
		req.Viewer = &resolver.Viewer{ID: id, Guest: middleware.IsGuest(c)}
	}

	res, err := h.resolver.Resolve(c.Request.Context(), req)
	if errors.Is(err, resolver.ErrNotResolvable) {
		errorJSON(c, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to load page")
		return
	}

	c.JSON(http.StatusOK, pageResponse{Resolution: res, SelectedChatModel: selectedChatModel(c)})
}
