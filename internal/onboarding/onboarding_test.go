package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, 15*time.Minute), mr
}

func TestStepNext(t *testing.T) {
	assert.Equal(t, StepAuth, StepWelcome.Next())
	assert.Equal(t, StepUsername, StepAuth.Next())
	assert.Equal(t, StepProfile, StepUsername.Next())
	assert.Equal(t, StepComplete, StepProfile.Next())
	assert.Equal(t, StepComplete, StepComplete.Next())
	assert.False(t, Step("signup").Valid())
}

func TestRoundTripRestoresStep(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	for _, step := range []Step{StepWelcome, StepAuth, StepUsername, StepProfile} {
		t.Run(string(step), func(t *testing.T) {
			token, issued, err := store.Issue(ctx, State{Step: step, Username: "alice", ChatID: "guest-claim-alice"})
			require.NoError(t, err)
			require.NotEmpty(t, issued.FlowID)

			got, err := store.Consume(ctx, token)
			require.NoError(t, err)
			assert.Equal(t, step, got.Step)
			assert.Equal(t, "alice", got.Username)
			assert.Equal(t, "guest-claim-alice", got.ChatID)
			assert.Equal(t, issued.FlowID, got.FlowID)
		})
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	token, _, err := store.Issue(ctx, State{Step: StepAuth})
	require.NoError(t, err)

	_, err = store.Peek(ctx, token)
	require.NoError(t, err)

	_, err = store.Consume(ctx, token)
	require.NoError(t, err)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = store.Peek(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	token, _, err := store.Issue(ctx, State{Step: StepAuth})
	require.NoError(t, err)

	mr.FastForward(16 * time.Minute)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRawTokenIsNotStored(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	token, _, err := store.Issue(ctx, State{Step: StepAuth})
	require.NoError(t, err)

	for _, k := range mr.Keys() {
		assert.NotContains(t, k, token)
	}
}

func TestIssueRejectsUnknownStep(t *testing.T) {
	store, _ := newStore(t)
	_, _, err := store.Issue(context.Background(), State{Step: "signup"})
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestAfterSignIn(t *testing.T) {
	user := UserInfo{ID: uuid.New(), Email: "a@example.com"}

	st := State{Step: StepAuth}.AfterSignIn(user)
	assert.Equal(t, StepUsername, st.Step)
	require.NotNil(t, st.User)

	user.Username = "alice"
	st = State{Step: StepAuth}.AfterSignIn(user)
	assert.Equal(t, StepProfile, st.Step)

	st = State{Step: StepProfile}.AfterSignIn(user)
	assert.Equal(t, StepProfile, st.Step)
}
