// Package username проверяет формат имени на quipe.me/<username>
package username

import (
	"errors"
	"regexp"
	"strings"
)

const (
	MinLength = 3
	MaxLength = 32
)

var (
	ErrRequired      = errors.New("Username is required")
	ErrInvalidFormat = errors.New("Username must be 3-32 characters and contain only letters, numbers, underscores, and dashes")

	pattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,32}$`)
	invalid = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// Normalize обрезает пробелы, регистр сохраняется
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

func Validate(s string) error {
	if s == "" {
		return ErrRequired
	}
	if !pattern.MatchString(s) {
		return ErrInvalidFormat
	}
	return nil
}

// Suggest предлагает username на основе отображаемого имени.
// Возвращает пустую строку, если подходящего варианта нет
func Suggest(displayName string) string {
	s := strings.ToLower(strings.Join(strings.Fields(displayName), ""))
	s = invalid.ReplaceAllString(s, "")
	if len(s) > MaxLength {
		s = s[:MaxLength]
	}
	if len(s) < MinLength {
		return ""
	}
	return s
}
