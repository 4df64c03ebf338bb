package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/quipe/internal/ai"
	"github.com/thereayou/quipe/internal/models"
)

type fakeEngine struct {
	turns []ai.Turn
	err   error
}

func (f *fakeEngine) Run(_ context.Context, turn ai.Turn, emit ai.Emit) (*ai.Result, error) {
	f.turns = append(f.turns, turn)
	if f.err != nil {
		return nil, f.err
	}
	if err := emit("text-delta", "Hello"); err != nil {
		return nil, err
	}
	return &ai.Result{Text: "Hello", Parts: []models.Part{{Type: "text", Text: "Hello"}}, Steps: 1}, nil
}

func chatRouter(e *testEnv, engine ChatEngine) *gin.Engine {
	h := NewChatHandler(e.db, engine, false, e.log)
	r := gin.New()
	r.GET("/api/chat/:id", e.authn.Optional(), h.GetChat)
	g := r.Group("/api", e.authn.Required())
	g.POST("/chat", h.Chat)
	g.DELETE("/chat/:id", h.DeleteChat)
	g.PATCH("/chat/:id/visibility", h.UpdateVisibility)
	g.GET("/history", h.History)
	g.GET("/document", h.Document)
	g.POST("/chat-model", h.SetChatModel)
	return r
}

func chatBody(chatID, text string) map[string]any {
	return map[string]any{
		"id": chatID,
		"message": map[string]any{
			"id":    uuid.NewString(),
			"role":  "user",
			"parts": []map[string]any{{"type": "text", "text": text}},
		},
	}
}

func TestChatStreamsAndPersists(t *testing.T) {
	e := newEnv(t)
	engine := &fakeEngine{}
	r := chatRouter(e, engine)
	user, token := e.newUser(t, "chat@example.com", "")

	w := doJSON(r, http.MethodPost, "/api/chat", chatBody("chat-1", "hi there"), token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	stream := w.Body.String()
	assert.Contains(t, stream, "event:start")
	assert.Contains(t, stream, "event:text-delta")
	assert.Contains(t, stream, "data:Hello")
	assert.True(t, strings.Index(stream, "event:start") < strings.Index(stream, "event:finish"))

	require.Len(t, engine.turns, 1)
	assert.Equal(t, "hi there", engine.turns[0].UserText)
	assert.Equal(t, ai.ChatModelDefault, engine.turns[0].ChatModel)
	assert.Empty(t, engine.turns[0].History)

	chat, err := e.db.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, chat.UserID)
	assert.Equal(t, "hi there", chat.Title)
	assert.Equal(t, models.VisibilityPrivate, chat.Visibility)

	msgs, err := e.db.GetChatMessages(context.Background(), "chat-1", 10, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	roles := []string{msgs[0].Role, msgs[1].Role}
	assert.ElementsMatch(t, []string{models.RoleUser, models.RoleAssistant}, roles)

	// второй ход видит историю
	w = doJSON(r, http.MethodPost, "/api/chat", chatBody("chat-1", "again"), token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, engine.turns, 2)
	assert.Len(t, engine.turns[1].History, 2)
}

func TestChatGuestQuota(t *testing.T) {
	e := newEnv(t)
	engine := &fakeEngine{}
	r := chatRouter(e, engine)
	guest, token := e.newGuest(t)

	ctx := context.Background()
	require.NoError(t, e.db.SaveChat(ctx, &models.Chat{ID: "busy", UserID: guest.ID, Title: "busy", Visibility: models.VisibilityPrivate}))
	for i := 0; i < GuestMessagesPerDay; i++ {
		msg, err := newMessage("", "busy", models.RoleUser, []models.Part{{Type: "text", Text: "x"}})
		require.NoError(t, err)
		require.NoError(t, e.db.SaveMessages(ctx, msg))
	}

	w := doJSON(r, http.MethodPost, "/api/chat", chatBody("busy", "one more"), token)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, engine.turns)
}

func TestChatForeignChat(t *testing.T) {
	e := newEnv(t)
	engine := &fakeEngine{}
	r := chatRouter(e, engine)
	owner, _ := e.newUser(t, "owner@example.com", "")
	_, token := e.newUser(t, "intruder@example.com", "")

	require.NoError(t, e.db.SaveChat(context.Background(), &models.Chat{ID: "owned", UserID: owner.ID, Title: "t", Visibility: models.VisibilityPrivate}))

	w := doJSON(r, http.MethodPost, "/api/chat", chatBody("owned", "hello"), token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, engine.turns)

	w = doJSON(r, http.MethodGet, "/api/chat/owned", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(r, http.MethodDelete, "/api/chat/owned", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatValidation(t *testing.T) {
	e := newEnv(t)
	r := chatRouter(e, &fakeEngine{})
	_, token := e.newUser(t, "v@example.com", "")

	body := chatBody("c", "hi")
	body["selectedChatModel"] = "gpt-9"
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/api/chat", body, token).Code)

	body = chatBody("c", "   ")
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/api/chat", body, token).Code)

	body = chatBody("c", "hi")
	body["message"].(map[string]any)["role"] = "assistant"
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/api/chat", body, token).Code)

	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodPost, "/api/chat", chatBody("c", "hi"), "").Code)
}

func TestChatEngineFailureEmitsError(t *testing.T) {
	e := newEnv(t)
	r := chatRouter(e, &fakeEngine{err: errors.New("model unavailable")})
	_, token := e.newUser(t, "f@example.com", "")

	w := doJSON(r, http.MethodPost, "/api/chat", chatBody("failing", "hi"), token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:error")
	assert.NotContains(t, w.Body.String(), "event:finish")

	msgs, err := e.db.GetChatMessages(context.Background(), "failing", 10, nil)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestChatVisibilityAndHistory(t *testing.T) {
	e := newEnv(t)
	r := chatRouter(e, &fakeEngine{})
	_, token := e.newUser(t, "h@example.com", "")

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/api/chat", chatBody("mine", "first"), token).Code)

	assert.Equal(t, http.StatusForbidden, doJSON(r, http.MethodGet, "/api/chat/mine", nil, "").Code)

	w := doJSON(r, http.MethodPatch, "/api/chat/mine/visibility", map[string]string{"visibility": "public"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/chat/mine", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["messages"], 2)

	w = doJSON(r, http.MethodPatch, "/api/chat/mine/visibility", map[string]string{"visibility": "secret"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/api/history", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["chats"], 1)

	require.Equal(t, http.StatusOK, doJSON(r, http.MethodDelete, "/api/chat/mine", nil, token).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/chat/mine", nil, token).Code)
}

func TestSetChatModel(t *testing.T) {
	e := newEnv(t)
	r := chatRouter(e, &fakeEngine{})
	_, token := e.newUser(t, "m@example.com", "")

	w := doJSON(r, http.MethodPost, "/api/chat-model", map[string]string{"model": ai.ChatModelReasoning}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), ChatModelCookie+"="+ai.ChatModelReasoning)

	w = doJSON(r, http.MethodPost, "/api/chat-model", map[string]string{"model": "nope"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentVersions(t *testing.T) {
	e := newEnv(t)
	r := chatRouter(e, &fakeEngine{})
	owner, ownerToken := e.newUser(t, "doc@example.com", "")
	_, otherToken := e.newUser(t, "other@example.com", "")

	id := uuid.New()
	require.NoError(t, e.db.SaveDocument(context.Background(), &models.Document{ID: id, UserID: owner.ID, Title: "Essay", Kind: models.KindText, Content: "v1"}))

	w := doJSON(r, http.MethodGet, "/api/document?id="+id.String(), nil, ownerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"content":"v1"`)

	assert.Equal(t, http.StatusForbidden, doJSON(r, http.MethodGet, "/api/document?id="+id.String(), nil, otherToken).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/document?id="+uuid.NewString(), nil, ownerToken).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/api/document?id=nope", nil, ownerToken).Code)
}
