package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/handlers/dto"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/models"
	"github.com/thereayou/quipe/internal/services"
	"github.com/thereayou/quipe/internal/username"
	"go.uber.org/zap"
)

type UserHandler struct {
	store services.Store
	log   *zap.Logger
}

func NewUserHandler(store services.Store, log *zap.Logger) *UserHandler {
	return &UserHandler{store: store, log: log}
}

// PublicProfile профиль без приватных полей
type PublicProfile struct {
	ID             uuid.UUID           `json:"id"`
	Username       string              `json:"username"`
	DisplayName    string              `json:"displayName"`
	Bio            string              `json:"bio"`
	ProfilePicture string              `json:"profilePicture"`
	Photos         []models.UserPhoto  `json:"photos"`
	SocialLinks    []models.SocialLink `json:"socialLinks"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func newPublicProfile(p *models.UserWithProfile) PublicProfile {
	return PublicProfile{
		ID:             p.ID,
		Username:       p.UsernameValue(),
		DisplayName:    p.DisplayName,
		Bio:            p.Bio,
		ProfilePicture: p.ProfilePicture,
		Photos:         p.Photos,
		SocialLinks:    p.SocialLinks,
		CreatedAt:      p.CreatedAt,
	}
}

// GetProfile публичный профиль по username с ETag по каноническому JSON
func (h *UserHandler) GetProfile(c *gin.Context) {
	name := username.Normalize(c.Param("username"))

	profile, err := h.store.GetProfileByUsername(c.Request.Context(), name)
	if errors.Is(err, database.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to load profile")
		return
	}

	body, etag, err := canonicalJSON(newPublicProfile(profile))
	if err != nil {
		internalError(c, h.log, err, "Failed to load profile")
		return
	}

	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=0, must-revalidate")
	if match := c.GetHeader("If-None-Match"); match != "" && etagMatches(match, etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetMyProfile профиль текущего пользователя
func (h *UserHandler) GetMyProfile(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	profile, err := h.store.GetUserWithProfile(c.Request.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMyProfile заменяет переданные поля; фото и ссылки заменяются целиком
func (h *UserHandler) UpdateMyProfile(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req dto.ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	upd := database.ProfileUpdate{
		DisplayName:    req.DisplayName,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
	}
	if req.Photos != nil {
		photos := dto.ToPhotos(*req.Photos)
		upd.Photos = &photos
	}
	if req.SocialLinks != nil {
		links := dto.ToSocialLinks(*req.SocialLinks)
		upd.SocialLinks = &links
	}

	profile, err := h.store.UpdateProfile(c.Request.Context(), userID, upd)
	if errors.Is(err, database.ErrNotFound) {
		errorJSON(c, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		internalError(c, h.log, err, "Failed to update profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Platforms поддерживаемые типы ссылок
func (h *UserHandler) Platforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": models.Platforms})
}

// canonicalJSON тело по RFC 8785 и сильный ETag от него
func canonicalJSON(v any) ([]byte, string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(canonical)
	return canonical, `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}
