package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/database/dbtest"
	"github.com/thereayou/quipe/internal/models"
)

func strPtr(s string) *string { return &s }

func newUser(t *testing.T, db *database.Database, email, username string) *models.User {
	t.Helper()
	u := &models.User{Email: email}
	if username != "" {
		u.Username = strPtr(username)
	}
	require.NoError(t, db.SaveUser(context.Background(), u))
	return u
}

func TestClaimUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns a free username", func(t *testing.T) {
		db := dbtest.New(t)
		u := newUser(t, db, "a@example.com", "")

		got, err := db.ClaimUsername(ctx, u.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.UsernameValue())

		stored, err := db.FindUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, u.ID, stored.ID)
	})

	t.Run("taken username leaves the owner untouched", func(t *testing.T) {
		db := dbtest.New(t)
		owner := newUser(t, db, "owner@example.com", "bob")
		other := newUser(t, db, "other@example.com", "")

		_, err := db.ClaimUsername(ctx, other.ID, "bob")
		assert.ErrorIs(t, err, database.ErrUsernameTaken)

		stored, err := db.FindUserByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, owner.ID, stored.ID)

		unchanged, err := db.GetUser(ctx, other.ID)
		require.NoError(t, err)
		assert.Nil(t, unchanged.Username)
	})

	t.Run("reclaiming own username is a no-op", func(t *testing.T) {
		db := dbtest.New(t)
		u := newUser(t, db, "c@example.com", "carol")

		got, err := db.ClaimUsername(ctx, u.ID, "carol")
		require.NoError(t, err)
		assert.Equal(t, "carol", got.UsernameValue())
	})

	t.Run("unknown user", func(t *testing.T) {
		db := dbtest.New(t)
		_, err := db.ClaimUsername(ctx, uuid.New(), "dave")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestCreateUserWithProfile(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)

	user := &models.User{Email: "e@example.com", Username: strPtr("erin"), DisplayName: "Erin"}
	photos := []models.UserPhoto{
		{URL: "https://img/3", Order: "10"},
		{URL: "https://img/1", Order: "2"},
		{URL: "https://img/x", Order: "later"},
	}
	links := []models.SocialLink{
		{Platform: "github", URL: "https://github.com/erin", Order: "1"},
		{Platform: "twitter", URL: "https://x.com/erin", Order: "0"},
	}
	require.NoError(t, db.CreateUserWithProfile(ctx, user, photos, links))

	profile, err := db.GetProfileByUsername(ctx, "erin")
	require.NoError(t, err)
	require.Len(t, profile.Photos, 3)
	assert.Equal(t, []string{"2", "10", "later"}, []string{profile.Photos[0].Order, profile.Photos[1].Order, profile.Photos[2].Order})
	require.Len(t, profile.SocialLinks, 2)
	assert.Equal(t, "twitter", profile.SocialLinks[0].Platform)

	t.Run("duplicate email", func(t *testing.T) {
		err := db.CreateUserWithProfile(ctx, &models.User{Email: "e@example.com"}, nil, nil)
		assert.ErrorIs(t, err, database.ErrEmailTaken)
	})

	t.Run("duplicate username", func(t *testing.T) {
		err := db.CreateUserWithProfile(ctx, &models.User{Email: "f@example.com", Username: strPtr("erin")}, nil, nil)
		assert.ErrorIs(t, err, database.ErrUsernameTaken)
	})
}

func TestUpdateProfileReplacesItems(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)

	user := &models.User{Email: "g@example.com"}
	require.NoError(t, db.CreateUserWithProfile(ctx, user, []models.UserPhoto{{URL: "old", Order: "0"}}, nil))

	bio := "new bio"
	photos := []models.UserPhoto{{URL: "new", Order: "0"}}
	got, err := db.UpdateProfile(ctx, user.ID, database.ProfileUpdate{Bio: &bio, Photos: &photos})
	require.NoError(t, err)

	assert.Equal(t, "new bio", got.Bio)
	require.Len(t, got.Photos, 1)
	assert.Equal(t, "new", got.Photos[0].URL)
	assert.Empty(t, got.SocialLinks)
}

func TestUpsertGoogleUser(t *testing.T) {
	ctx := context.Background()
	gi := database.GoogleIdentity{Subject: "sub-1", Email: "h@example.com", Name: "Hana", Picture: "https://pic"}

	t.Run("upgrades a guest in place", func(t *testing.T) {
		db := dbtest.New(t)
		guest := newUser(t, db, "guest-12345@quipe.guest", "")
		require.True(t, guest.IsGuest())

		user, err := db.UpsertGoogleUser(ctx, gi, &guest.ID)
		require.NoError(t, err)
		assert.Equal(t, guest.ID, user.ID)
		assert.Equal(t, "h@example.com", user.Email)
		assert.False(t, user.IsGuest())
	})

	t.Run("links by email then by subject", func(t *testing.T) {
		db := dbtest.New(t)
		existing := newUser(t, db, "h@example.com", "hana")

		first, err := db.UpsertGoogleUser(ctx, gi, nil)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, first.ID)
		assert.Equal(t, "Hana", first.DisplayName)

		second, err := db.UpsertGoogleUser(ctx, gi, nil)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, second.ID)
	})

	t.Run("creates a new user", func(t *testing.T) {
		db := dbtest.New(t)
		user, err := db.UpsertGoogleUser(ctx, gi, nil)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, user.ID)
		assert.Equal(t, "https://pic", user.ProfilePicture)
	})
}

func TestChatsAndMessages(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	u := newUser(t, db, "i@example.com", "")

	chat := &models.Chat{ID: "claim-ivy-" + u.ID.String(), UserID: u.ID, Title: "hi", Visibility: models.VisibilityPrivate}
	require.NoError(t, db.SaveChat(ctx, chat))

	base := time.Now().Add(-time.Minute)
	var msgs []*models.Message
	for i := 0; i < 5; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs = append(msgs, &models.Message{ChatID: chat.ID, Role: role, CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	require.NoError(t, db.SaveMessages(ctx, msgs...))

	page, err := db.GetChatMessages(ctx, chat.ID, 2, &msgs[4].ID)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, msgs[2].ID, page[0].ID)
	assert.Equal(t, msgs[3].ID, page[1].ID)

	n, err := db.CountUserMessagesSince(ctx, u.ID, base.Add(-time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, db.UpdateChatVisibility(ctx, chat.ID, models.VisibilityPublic))
	got, err := db.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPublic, got.Visibility)

	require.NoError(t, db.DeleteChat(ctx, chat.ID))
	_, err = db.GetChat(ctx, chat.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.ErrorIs(t, db.DeleteChat(ctx, chat.ID), database.ErrNotFound)
}

func TestDocumentVersions(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	owner := uuid.New()

	v1 := &models.Document{UserID: owner, Title: "Plan", Kind: models.KindText, Content: "one", CreatedAt: time.Now().Add(-time.Minute)}
	require.NoError(t, db.SaveDocument(ctx, v1))
	v2 := &models.Document{ID: v1.ID, UserID: owner, Title: "Plan", Kind: models.KindText, Content: "two"}
	require.NoError(t, db.SaveDocument(ctx, v2))

	versions, err := db.GetDocumentVersions(ctx, v1.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	latest, err := db.GetLatestDocument(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, "two", latest.Content)

	_, err = db.GetDocumentVersions(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrNotFound)
}
