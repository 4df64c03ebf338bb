// Package imagehost загружает картинки профиля во внешнее хранилище
package imagehost

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

const MaxFileSize = 10 * 1024 * 1024

var (
	ErrNoFile   = errors.New("No file provided")
	ErrNotImage = errors.New("File must be an image")
	ErrTooLarge = errors.New("File size must be less than 10MB")
	// ErrUpstream хранилище ответило ошибкой
	ErrUpstream = errors.New("Upload failed")
)

type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Image struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

type Host interface {
	Upload(ctx context.Context, up Upload) (*Image, error)
}

// Validate проверяет тип и размер до любого сетевого вызова
func Validate(contentType string, size int64) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return ErrNotImage
	}
	if size > MaxFileSize {
		return ErrTooLarge
	}
	return nil
}

type Config struct {
	Provider string

	CloudflareAccountID   string
	CloudflareAPIToken    string
	CloudflareAccountHash string

	OSSEndpoint        string
	OSSBucket          string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	OSSPublicBaseURL   string

	LocalDir     string
	LocalBaseURL string
}

func New(cfg Config) (Host, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "cloudflare":
		if cfg.CloudflareAccountID == "" || cfg.CloudflareAPIToken == "" {
			return nil, errors.New("CLOUDFLARE_ACCOUNT_ID and CLOUDFLARE_IMAGES_API_TOKEN are required for cloudflare images")
		}
		return NewCloudflare(cfg.CloudflareAccountID, cfg.CloudflareAPIToken, cfg.CloudflareAccountHash), nil
	case "aliyun":
		return NewOSS(cfg.OSSEndpoint, cfg.OSSBucket, cfg.OSSAccessKeyID, cfg.OSSAccessKeySecret, cfg.OSSPublicBaseURL)
	case "local":
		return NewLocal(cfg.LocalDir, cfg.LocalBaseURL)
	default:
		return nil, fmt.Errorf("unsupported IMAGES_PROVIDER %q (cloudflare|aliyun|local)", cfg.Provider)
	}
}

// VariantURL адрес варианта картинки в Cloudflare Images
func VariantURL(accountHash, imageID, variant string) string {
	if variant == "" {
		variant = "public"
	}
	return fmt.Sprintf("https://imagedelivery.net/%s/%s/%s", accountHash, imageID, variant)
}

// JoinKey склеивает префикс и ключ объекта
func JoinKey(prefix, key string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if prefix == "" {
		return key
	}
	if key == "" {
		return prefix
	}
	return prefix + "/" + key
}

// rasterTypes растровые форматы, которые хранятся и отдаются с расширением
var rasterTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
	"image/heic": ".heic",
}

// extension берётся только из Content-Type; имя файла от клиента не учитывается
func extension(up Upload) string {
	return rasterTypes[strings.ToLower(strings.TrimSpace(up.ContentType))]
}

// storedContentType тип, с которым объект кладётся в хранилище
func storedContentType(up Upload) string {
	ct := strings.ToLower(strings.TrimSpace(up.ContentType))
	if _, ok := rasterTypes[ct]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ServedContentType Content-Type для файла из локального хранилища.
// false: файл не растровая картинка и отдаётся как вложение
func ServedContentType(name string) (string, bool) {
	ext := strings.ToLower(path.Ext(name))
	for ct, e := range rasterTypes {
		if e == ext {
			return ct, true
		}
	}
	return "application/octet-stream", false
}
