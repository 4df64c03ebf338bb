package server

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/thereayou/quipe/internal/handlers"
	"github.com/thereayou/quipe/internal/imagehost"
	"github.com/thereayou/quipe/internal/middleware"
	"go.uber.org/zap"
)

const localImagesPath = "/images"

// Handlers всё, что нужно APIEndpoints
type Handlers struct {
	Authn      *middleware.Authenticator
	Auth       *handlers.AuthHandler
	Claim      *handlers.ClaimHandler
	Upload     *handlers.UploadHandler
	User       *handlers.UserHandler
	Pages      *handlers.PagesHandler
	Onboarding *handlers.OnboardingHandler
	WebSocket  *handlers.WebSocketHandler
	Chat       *handlers.ChatHandler
	Telemetry  *handlers.TelemetryHandler
	Health     *handlers.HealthHandler
	RateLimit  gin.HandlerFunc

	// LocalImagesDir раздаётся по /images, если задан
	LocalImagesDir string
}

// NewRouter gin с общими middleware; app может быть nil
func NewRouter(log *zap.Logger, app *newrelic.Application) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestID(), middleware.AccessLog(log))
	if app != nil {
		r.Use(nrgin.Middleware(app))
	}
	r.Use(middleware.SecurityHeaders())
	return r
}

func APIEndpoints(r *gin.Engine, h Handlers) {
	r.GET("/healthz", h.Health.Health)
	if h.LocalImagesDir != "" {
		images := r.Group(localImagesPath, imageHeaders())
		images.Static("/", h.LocalImagesDir)
	}

	r.GET("/ws/onboarding", h.WebSocket.HandleOnboarding)

	api := r.Group("/api")

	// Auth endpoints
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/guest", h.Auth.Guest)
		auth.POST("/logout", h.Authn.Required(), h.Auth.Logout)
		auth.GET("/me", h.Authn.Required(), h.Auth.Me)
		auth.GET("/google", h.Auth.GoogleStart)
		auth.GET("/google/callback", h.Authn.Optional(), h.Auth.GoogleCallback)
	}

	public := api.Group("", h.Authn.Optional())
	{
		public.GET("/pages/:username", h.Pages.Resolve)
		public.GET("/profile/platforms", h.User.Platforms)
		public.GET("/profile/:username", h.User.GetProfile)
		public.GET("/chat/:id", h.Chat.GetChat)
		public.POST("/onboarding/continuations", h.Onboarding.CreateContinuation)
		public.POST("/onboarding/resume", h.Onboarding.Resume)
		public.POST("/telemetry/events", h.RateLimit, h.Telemetry.Ingest)
		public.POST("/chat/model", h.Chat.SetChatModel)
	}

	private := api.Group("", h.Authn.Required())
	{
		private.POST("/claim-username", h.RateLimit, h.Claim.Claim)
		private.POST("/upload-image", h.RateLimit, h.Upload.Upload)

		private.GET("/profile", h.User.GetMyProfile)
		private.PUT("/profile", h.User.UpdateMyProfile)

		private.POST("/chat", h.Chat.Chat)
		private.DELETE("/chat/:id", h.Chat.DeleteChat)
		private.PATCH("/chat/:id/visibility", h.Chat.UpdateVisibility)
		private.GET("/history", h.Chat.History)
		private.GET("/document", h.Chat.Document)
	}
}

// imageHeaders фиксирует тип ответа для загруженных файлов: всё, что не
// растровая картинка, отдаётся как вложение
func imageHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, ok := imagehost.ServedContentType(c.Request.URL.Path)
		header := c.Writer.Header()
		header.Set("Content-Type", ct)
		header.Set("Content-Security-Policy", "default-src 'none'; sandbox")
		if !ok {
			header.Set("Content-Disposition", "attachment")
		}
		c.Next()
	}
}
