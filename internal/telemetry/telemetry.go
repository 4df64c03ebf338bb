// Package telemetry пересылает события в New Relic. Ошибки телеметрии
// только логируются и никогда не влияют на ответ пользователю
package telemetry

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"
)

const (
	EventTypeDefault = "QuipeEvent"
	maxAttributes    = 64
	maxValueLength   = 255
)

var eventTypeRegex = regexp.MustCompile(`^[a-zA-Z0-9:_ ]{1,255}$`)

// Recorder то, что умеет записывать кастомные события; *newrelic.Application подходит
type Recorder interface {
	RecordCustomEvent(eventType string, params map[string]interface{})
}

type Client struct {
	app     *newrelic.Application
	rec     Recorder
	appName string
	log     *zap.Logger
}

// New без ключа лицензии возвращает выключенный клиент
func New(licenseKey, appName string, log *zap.Logger) (*Client, error) {
	c := &Client{appName: appName, log: log}
	if licenseKey == "" {
		log.Info("telemetry disabled: NEW_RELIC_LICENSE_KEY is not set")
		return c, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(appName),
		newrelic.ConfigLicense(licenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("new relic: %w", err)
	}
	c.app = app
	c.rec = app
	return c, nil
}

// NewWithRecorder для тестов и альтернативных бэкендов
func NewWithRecorder(rec Recorder, appName string, log *zap.Logger) *Client {
	return &Client{rec: rec, appName: appName, log: log}
}

// Application nil, если телеметрия выключена
func (c *Client) Application() *newrelic.Application {
	if c == nil {
		return nil
	}
	return c.app
}

// Track записывает событие eventType с actionName=name
func (c *Client) Track(eventType, name string, attrs map[string]any) {
	if c == nil || c.rec == nil {
		return
	}
	if eventType == "" {
		eventType = EventTypeDefault
	}
	if !eventTypeRegex.MatchString(eventType) {
		c.log.Warn("telemetry event dropped: invalid event type", zap.String("eventType", eventType))
		return
	}

	params := make(map[string]interface{}, len(attrs)+3)
	for k, v := range attrs {
		if len(params) >= maxAttributes {
			c.log.Warn("telemetry attributes truncated", zap.String("event", name))
			break
		}
		params[k] = sanitize(v)
	}
	params["actionName"] = truncate(name)
	params["appName"] = c.appName
	params["eventTimestamp"] = time.Now().UnixMilli()

	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("telemetry record failed", zap.String("event", name), zap.Any("panic", r))
		}
	}()
	c.rec.RecordCustomEvent(eventType, params)
}

// Shutdown отправляет накопленные данные
func (c *Client) Shutdown(timeout time.Duration) {
	if c == nil || c.app == nil {
		return
	}
	c.app.Shutdown(timeout)
}

func sanitize(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case bool, int, int32, int64, float32, float64:
		return x
	case string:
		return truncate(x)
	default:
		return truncate(fmt.Sprint(x))
	}
}

// truncate режет по границе руны, не длиннее maxValueLength байт
func truncate(s string) string {
	if len(s) <= maxValueLength {
		return s
	}
	cut := maxValueLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
