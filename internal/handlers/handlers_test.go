package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/database/dbtest"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/models"
	"github.com/thereayou/quipe/internal/onboarding"
	"github.com/thereayou/quipe/internal/services"
	"github.com/thereayou/quipe/internal/telemetry"
	ws "github.com/thereayou/quipe/internal/websocket"
	"github.com/thereayou/quipe/pkg/auth"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordedEvent struct {
	Type   string
	Params map[string]interface{}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeRecorder) RecordCustomEvent(eventType string, params map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{eventType, params})
}

func (f *fakeRecorder) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Params["actionName"].(string))
	}
	return out
}

type published struct {
	FlowID string
	Type   ws.MessageType
	Data   any
}

type fakeHub struct {
	mu     sync.Mutex
	events []published
}

func (f *fakeHub) Publish(flowID string, t ws.MessageType, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{flowID, t, data})
	return nil
}

func (f *fakeHub) types() []ws.MessageType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ws.MessageType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	db    *database.Database
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	authn *middleware.Authenticator
	auth  *services.AuthService
	flows *onboarding.Store
	rec   *fakeRecorder
	tel   *telemetry.Client
	hub   *fakeHub
	log   *zap.Logger
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.New(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	jwtm := auth.NewJWTManager("test-secret", time.Hour)
	rec := &fakeRecorder{}

	return &testEnv{
		db:    db,
		mr:    mr,
		rdb:   rdb,
		authn: middleware.NewAuthenticator(jwtm, rdb, "quipe_session"),
		auth:  services.NewAuthService(db, jwtm, rdb, node),
		flows: onboarding.NewStore(rdb, 15*time.Minute),
		rec:   rec,
		tel:   telemetry.NewWithRecorder(rec, "quipe-test", zap.NewNop()),
		hub:   &fakeHub{},
		log:   zap.NewNop(),
	}
}

// newUser сохраняет пользователя и возвращает его токен
func (e *testEnv) newUser(t *testing.T, email, name string) (*models.User, string) {
	t.Helper()
	u := &models.User{Email: email, DisplayName: "Test " + email}
	if name != "" {
		u.Username = &name
	}
	require.NoError(t, e.db.SaveUser(context.Background(), u))
	sess, err := e.auth.Issue(u)
	require.NoError(t, err)
	return u, sess.Token
}

func (e *testEnv) newGuest(t *testing.T) (*models.User, string) {
	t.Helper()
	sess, err := e.auth.Guest(context.Background())
	require.NoError(t, err)
	return sess.User, sess.Token
}

func doJSON(h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			r = bytes.NewBufferString(s)
		} else {
			raw, _ := json.Marshal(body)
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
