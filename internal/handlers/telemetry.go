package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/services"
	"github.com/thereayou/quipe/internal/telemetry"
	"go.uber.org/zap"
)

type TelemetryHandler struct {
	tel *telemetry.Client
}

func NewTelemetryHandler(tel *telemetry.Client) *TelemetryHandler {
	return &TelemetryHandler{tel: tel}
}

type telemetryEvent struct {
	EventType  string         `json:"eventType"`
	EventName  string         `json:"eventName"`
	Attributes map[string]any `json:"attributes"`
}

// Ingest принимает события браузера; ответ всегда 202
func (h *TelemetryHandler) Ingest(c *gin.Context) {
	var ev telemetryEvent
	if err := c.ShouldBindJSON(&ev); err == nil && ev.EventName != "" {
		attrs := ev.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrs["source"] = "browser"
		if id, ok := middleware.UserID(c); ok {
			attrs["userId"] = id.String()
		}
		h.tel.Track(ev.EventType, ev.EventName, attrs)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type HealthHandler struct {
	store services.Store
	redis *redis.Client
	log   *zap.Logger
}

func NewHealthHandler(store services.Store, rdb *redis.Client, log *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, redis: rdb, log: log}
}

// Health проверяет базу и Redis
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok", "redis": "ok"}
	healthy := true
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("database ping failed", zap.Error(err))
		status["database"] = "unavailable"
		healthy = false
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.log.Warn("redis ping failed", zap.Error(err))
		status["redis"] = "unavailable"
		healthy = false
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
