package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/quipe/internal/ai"
	"github.com/thereayou/quipe/internal/config"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/handlers"
	"github.com/thereayou/quipe/internal/imagehost"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/onboarding"
	"github.com/thereayou/quipe/internal/resolver"
	"github.com/thereayou/quipe/internal/services"
	"github.com/thereayou/quipe/internal/telemetry"
	ws "github.com/thereayou/quipe/internal/websocket"
	"github.com/thereayou/quipe/pkg/auth"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	Config    config.Config
	Log       *zap.Logger
	Handler   http.Handler
	DB        *database.Database
	Redis     *redis.Client
	Hub       *ws.Hub
	Telemetry *telemetry.Client
}

// NewServer поднимает все зависимости и собирает роутер
func NewServer(ctx context.Context, cfg config.Config, log *zap.Logger) (*Server, error) {
	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb, err := ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{Config: cfg, Log: log, DB: db, Redis: rdb}
	if err := s.build(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// ConnectRedis разбирает REDIS_URL и проверяет соединение
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return rdb, nil
}

func (s *Server) build(ctx context.Context) error {
	cfg := s.Config

	tel, err := telemetry.New(cfg.NewRelicLicenseKey, cfg.NewRelicAppName, s.Log)
	if err != nil {
		return err
	}
	s.Telemetry = tel

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}

	host, err := imagehost.New(imagehost.Config{
		Provider:              cfg.ImagesProvider,
		CloudflareAccountID:   cfg.CloudflareAccountID,
		CloudflareAPIToken:    cfg.CloudflareImagesAPIToken,
		CloudflareAccountHash: cfg.CloudflareAccountHash,
		OSSEndpoint:           cfg.OSSEndpoint,
		OSSBucket:             cfg.OSSBucket,
		OSSAccessKeyID:        cfg.OSSAccessKeyID,
		OSSAccessKeySecret:    cfg.OSSAccessKeySecret,
		OSSPublicBaseURL:      cfg.OSSPublicBaseURL,
		LocalDir:              cfg.ImagesLocalDir,
		LocalBaseURL:          cfg.PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("image host: %w", err)
	}

	prompts, err := ai.LoadPrompts()
	if err != nil {
		return err
	}
	gemini, err := ai.NewGeminiStreamer(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}
	docs := ai.NewDocuments(gemini, s.DB, prompts)
	tools := append([]ai.Tool{ai.RenderUIComponent{}, ai.NewWeather()}, docs.Tools()...)
	engine := ai.NewEngine(gemini, ai.ModelNames{Chat: cfg.ChatModel, Reasoning: cfg.ReasoningModel}, prompts, s.Log, tools...)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL)
	flows := onboarding.NewStore(s.Redis, cfg.ContinuationTTL)
	s.Hub = ws.NewHub(s.Log)

	var google handlers.GoogleAuthenticator
	if cfg.GoogleEnabled() {
		google = auth.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret)
	} else {
		s.Log.Warn("google sign-in disabled: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET is not set")
	}

	var store services.Store = s.DB
	h := Handlers{
		Authn: middleware.NewAuthenticator(jwtMgr, s.Redis, cfg.SessionCookie),
		Auth: handlers.NewAuthHandler(handlers.AuthHandlerConfig{
			Auth:          services.NewAuthService(store, jwtMgr, s.Redis, node),
			Store:         store,
			Cookie:        auth.CookieOptions{Name: cfg.SessionCookie, Secure: cfg.CookieSecure},
			SessionTTL:    cfg.SessionTTL,
			Google:        google,
			Flows:         flows,
			Hub:           s.Hub,
			Telemetry:     tel,
			PublicBaseURL: cfg.PublicBaseURL,
			Log:           s.Log,
		}),
		Claim:      handlers.NewClaimHandler(store, tel, s.Log),
		Upload:     handlers.NewUploadHandler(host, tel, s.Log),
		User:       handlers.NewUserHandler(store, s.Log),
		Pages:      handlers.NewPagesHandler(resolver.New(store), s.Log),
		Onboarding: handlers.NewOnboardingHandler(flows, store, s.Hub, tel, s.Log),
		WebSocket:  handlers.NewWebSocketHandler(s.Hub, flows, cfg.CORSOrigins, s.Log),
		Chat:       handlers.NewChatHandler(store, engine, cfg.CookieSecure, s.Log),
		Telemetry:  handlers.NewTelemetryHandler(tel),
		Health:     handlers.NewHealthHandler(store, s.Redis, s.Log),
		RateLimit:  middleware.RateLimit(s.Redis, cfg.RateLimitPerMinute, time.Minute, s.Log),
	}
	if local, ok := host.(*imagehost.Local); ok {
		h.LocalImagesDir = local.Root()
	}

	router := NewRouter(s.Log, tel.Application())
	APIEndpoints(router, h)

	s.Handler = cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"ETag", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(router)
	return nil
}

func allowedOrigins(cfg config.Config) []string {
	if len(cfg.CORSOrigins) > 0 {
		return cfg.CORSOrigins
	}
	if cfg.PublicBaseURL != "" {
		return []string{cfg.PublicBaseURL}
	}
	return []string{"http://localhost:3000"}
}

// Run слушает порт и хаб до отмены ctx, затем даёт запросам shutdownTimeout на завершение
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.Config.Port,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Hub.Run(gctx)
	})
	g.Go(func() error {
		s.Log.Info("server starting", zap.String("port", s.Config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.Log.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) Close() {
	if s.Telemetry != nil {
		s.Telemetry.Shutdown(shutdownTimeout)
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Log.Warn("redis close", zap.Error(err))
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			s.Log.Warn("database close", zap.Error(err))
		}
	}
}
