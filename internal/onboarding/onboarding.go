// Package onboarding хранит состояние онбординга между редиректами OAuth.
// Клиент держит только непрозрачный токен продолжения, само состояние лежит в Redis
package onboarding

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Step шаг онбординга
type Step string

const (
	StepWelcome  Step = "welcome"
	StepAuth     Step = "auth"
	StepUsername Step = "username"
	StepProfile  Step = "profile"
	StepComplete Step = "complete"
)

var order = []Step{StepWelcome, StepAuth, StepUsername, StepProfile, StepComplete}

var (
	ErrInvalidToken = errors.New("continuation token is invalid or expired")
	ErrInvalidStep  = errors.New("unknown onboarding step")
)

func (s Step) Valid() bool {
	for _, o := range order {
		if o == s {
			return true
		}
	}
	return false
}

// Next следующий шаг; complete остаётся complete
func (s Step) Next() Step {
	for i, o := range order {
		if o == s && i+1 < len(order) {
			return order[i+1]
		}
	}
	return StepComplete
}

// UserInfo то, что клиент показывает после входа
type UserInfo struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Picture     string    `json:"picture,omitempty"`
}

type State struct {
	FlowID    string    `json:"flowId"`
	Step      Step      `json:"step"`
	Username  string    `json:"username,omitempty"`
	ChatID    string    `json:"chatId,omitempty"`
	ChatModel string    `json:"chatModel,omitempty"`
	User      *UserInfo `json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AfterSignIn продвигает состояние после успешного входа
func (s State) AfterSignIn(user UserInfo) State {
	s.User = &user
	if s.Step == StepWelcome || s.Step == StepAuth {
		if user.Username != "" {
			s.Step = StepProfile
		} else {
			s.Step = StepUsername
		}
	}
	return s
}

// Store токены продолжения в Redis
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue сохраняет состояние и возвращает новый токен.
// Пустой FlowID заменяется новым
func (s *Store) Issue(ctx context.Context, st State) (string, State, error) {
	if !st.Step.Valid() {
		return "", State{}, ErrInvalidStep
	}
	if st.FlowID == "" {
		st.FlowID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now().UTC()
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", State{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	payload, err := json.Marshal(st)
	if err != nil {
		return "", State{}, err
	}
	if err := s.rdb.Set(ctx, key(token), payload, s.ttl).Err(); err != nil {
		return "", State{}, fmt.Errorf("store continuation: %w", err)
	}
	return token, st, nil
}

// Peek читает состояние, не погашая токен
func (s *Store) Peek(ctx context.Context, token string) (State, error) {
	if token == "" {
		return State{}, ErrInvalidToken
	}
	data, err := s.rdb.Get(ctx, key(token)).Bytes()
	return decode(data, err)
}

// Consume атомарно забирает состояние; повторно токен не сработает
func (s *Store) Consume(ctx context.Context, token string) (State, error) {
	if token == "" {
		return State{}, ErrInvalidToken
	}
	data, err := s.rdb.GetDel(ctx, key(token)).Bytes()
	return decode(data, err)
}

func decode(data []byte, err error) (State, error) {
	if errors.Is(err, redis.Nil) {
		return State{}, ErrInvalidToken
	}
	if err != nil {
		return State{}, fmt.Errorf("load continuation: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil || !st.Step.Valid() {
		return State{}, ErrInvalidToken
	}
	return st, nil
}

// в Redis хранится только хеш токена
func key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "onboarding:continuation:" + hex.EncodeToString(sum[:])
}
