package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string
	RedisURL      string
	JWTSecret     string
	Port          string
	PublicBaseURL string
	CORSOrigins   []string

	SessionCookie string
	CookieSecure  bool
	SessionTTL    time.Duration

	GoogleClientID     string
	GoogleClientSecret string

	GeminiAPIKey   string
	ChatModel      string
	ReasoningModel string

	// Хостинг изображений: "cloudflare" | "aliyun" | "local"
	ImagesProvider           string
	CloudflareAccountID      string
	CloudflareImagesAPIToken string
	CloudflareAccountHash    string
	OSSEndpoint              string
	OSSBucket                string
	OSSAccessKeyID           string
	OSSAccessKeySecret       string
	OSSPublicBaseURL         string
	ImagesLocalDir           string

	NewRelicLicenseKey string
	NewRelicAppName    string

	SnowflakeNode      int64
	ContinuationTTL    time.Duration
	RateLimitPerMinute int
}

// Load читает конфигурацию из окружения, .env.local и .env подгружаются если есть
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	sessionHours := getenvIntDefault("SESSION_TTL_HOURS", 24*30)
	if sessionHours < 1 {
		sessionHours = 1
	}

	continuationMinutes := getenvIntDefault("CONTINUATION_TTL_MINUTES", 15)
	if continuationMinutes < 1 {
		continuationMinutes = 1
	}
	if continuationMinutes > 60 {
		continuationMinutes = 60
	}

	rateLimit := getenvIntDefault("RATE_LIMIT_PER_MINUTE", 30)
	if rateLimit < 1 {
		rateLimit = 1
	}

	node := getenvIntDefault("SNOWFLAKE_NODE", 1)
	if node < 0 || node > 1023 {
		node = 1
	}

	cfg := Config{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		Port:          getenvDefault("PORT", "8080"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/"),
		CORSOrigins:   getenvCSV("CORS_ORIGINS"),

		SessionCookie: getenvDefault("SESSION_COOKIE", "quipe_session"),
		CookieSecure:  getenvBool("COOKIE_SECURE"),
		SessionTTL:    time.Duration(sessionHours) * time.Hour,

		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),

		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		ChatModel:      getenvDefault("CHAT_MODEL", "gemini-2.5-flash"),
		ReasoningModel: getenvDefault("REASONING_MODEL", "gemini-2.5-pro"),

		ImagesProvider:           strings.ToLower(getenvDefault("IMAGES_PROVIDER", "cloudflare")),
		CloudflareAccountID:      strings.TrimSpace(os.Getenv("CLOUDFLARE_ACCOUNT_ID")),
		CloudflareImagesAPIToken: strings.TrimSpace(os.Getenv("CLOUDFLARE_IMAGES_API_TOKEN")),
		CloudflareAccountHash:    strings.TrimSpace(os.Getenv("CLOUDFLARE_ACCOUNT_HASH")),
		OSSEndpoint:              strings.TrimSpace(os.Getenv("OSS_ENDPOINT")),
		OSSBucket:                strings.TrimSpace(os.Getenv("OSS_BUCKET")),
		OSSAccessKeyID:           strings.TrimSpace(os.Getenv("OSS_ACCESS_KEY_ID")),
		OSSAccessKeySecret:       strings.TrimSpace(os.Getenv("OSS_ACCESS_KEY_SECRET")),
		OSSPublicBaseURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("OSS_PUBLIC_BASE_URL")), "/"),
		ImagesLocalDir:           getenvDefault("IMAGES_LOCAL_DIR", "./data/images"),

		NewRelicLicenseKey: strings.TrimSpace(os.Getenv("NEW_RELIC_LICENSE_KEY")),
		NewRelicAppName:    getenvDefault("NEW_RELIC_APP_NAME", "quipedotme"),

		SnowflakeNode:      int64(node),
		ContinuationTTL:    time.Duration(continuationMinutes) * time.Minute,
		RateLimitPerMinute: rateLimit,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return Config{}, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	// redirect_uri строится от публичного адреса, Host запроса не используется
	if cfg.GoogleEnabled() && cfg.PublicBaseURL == "" {
		return Config{}, errors.New("PUBLIC_BASE_URL is required when Google sign-in is configured")
	}
	return cfg, nil
}

// GoogleEnabled сообщает, настроен ли вход через Google
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func getenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func getenvCSV(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
