package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/handlers/dto"
	"github.com/thereayou/quipe/internal/middleware"
	"github.com/thereayou/quipe/internal/models"
	"github.com/thereayou/quipe/internal/onboarding"
	"github.com/thereayou/quipe/internal/services"
	"github.com/thereayou/quipe/internal/telemetry"
	ws "github.com/thereayou/quipe/internal/websocket"
	"github.com/thereayou/quipe/pkg/auth"
	"go.uber.org/zap"
)

const (
	oauthStateCookie    = "quipe_oauth_state"
	oauthVerifierCookie = "quipe_oauth_verifier"
	oauthContextCookie  = "quipe_oauth_ctx"
	oauthCookieTTL      = 10 * time.Minute
	oauthCookiePath     = "/api/auth/google"

	modePopup    = "popup"
	modeRedirect = "redirect"
)

type AuthHandlerConfig struct {
	Auth          *services.AuthService
	Store         services.Store
	Cookie        auth.CookieOptions
	SessionTTL    time.Duration
	Google        GoogleAuthenticator
	Flows         *onboarding.Store
	Hub           FlowPublisher
	Telemetry     *telemetry.Client
	PublicBaseURL string
	Log           *zap.Logger
}

type AuthHandler struct {
	AuthHandlerConfig
}

func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &AuthHandler{AuthHandlerConfig: cfg}
}

func (h *AuthHandler) setSession(c *gin.Context, sess *services.Session) {
	h.Cookie.Set(c.Writer, sess.Token, h.SessionTTL)
}

// Register регистрация с профилем: фото, ссылки и username проверяются до записи
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_data", "error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_data", "error": err.Error()})
		return
	}

	sess, err := h.Auth.Register(c.Request.Context(), services.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		Username:       req.Username,
		DisplayName:    req.DisplayName,
		Bio:            req.Bio,
		ProfilePicture: req.ProfilePicture,
		Photos:         dto.ToPhotos(req.Photos),
		SocialLinks:    dto.ToSocialLinks(req.SocialLinks),
	})
	switch {
	case errors.Is(err, database.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"status": "user_exists"})
		return
	case errors.Is(err, database.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"status": "username_taken"})
		return
	case err != nil:
		h.Log.Error("register failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed"})
		return
	}

	h.setSession(c, sess)
	h.Telemetry.Track("", "user_registered", map[string]any{
		"userId":      sess.User.ID.String(),
		"photos":      len(req.Photos),
		"socialLinks": len(req.SocialLinks),
	})

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"user":   dto.NewUserResponse(sess.User),
		"token":  sess.Token,
	})
}

// Login выдаёт JWT и ставит cookie сессии
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "invalid_data", "error": err.Error()})
		return
	}

	sess, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "failed", "error": "invalid credentials"})
		return
	}
	if err != nil {
		h.Log.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed"})
		return
	}

	h.setSession(c, sess)
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"user":   dto.NewUserResponse(sess.User),
		"token":  sess.Token,
	})
}

// Guest создаёт гостевую сессию
func (h *AuthHandler) Guest(c *gin.Context) {
	sess, err := h.Auth.Guest(c.Request.Context())
	if err != nil {
		internalError(c, h.Log, err, "Failed to create guest session")
		return
	}
	h.setSession(c, sess)
	c.JSON(http.StatusOK, gin.H{"user": dto.NewUserResponse(sess.User), "token": sess.Token})
}

// Logout ставит токен в черный список в Redis до истечения
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Auth.Logout(c.Request.Context(), middleware.SessionToken(c)); err != nil {
		internalError(c, h.Log, err, "Failed to sign out")
		return
	}
	h.Cookie.Clear(c.Writer)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me текущий пользователь с профилем
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	profile, err := h.Store.GetUserWithProfile(c.Request.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		errorJSON(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err != nil {
		internalError(c, h.Log, err, "Failed to load user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile, "isGuest": profile.IsGuest()})
}

// oauthContext то, что переживает редирект к Google
type oauthContext struct {
	Continuation string `json:"c,omitempty"`
	Mode         string `json:"m,omitempty"`
	ChatID       string `json:"chat,omitempty"`
}

func (h *AuthHandler) callbackURL() string {
	return h.PublicBaseURL + oauthCookiePath + "/callback"
}

func (h *AuthHandler) setOAuthCookie(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     oauthCookiePath,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.Cookie.Secure,
	})
}

// GoogleStart редиректит к Google; continuation, mode и chatId сохраняются в cookie
func (h *AuthHandler) GoogleStart(c *gin.Context) {
	if h.Google == nil {
		errorJSON(c, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}

	octx := oauthContext{
		Continuation: c.Query("continuation"),
		Mode:         c.DefaultQuery("mode", modeRedirect),
		ChatID:       c.Query("chatId"),
	}
	if octx.Mode != modePopup && octx.Mode != modeRedirect {
		errorJSON(c, http.StatusBadRequest, "mode must be popup or redirect")
		return
	}

	state, err := randomToken()
	if err != nil {
		internalError(c, h.Log, err, "Failed to start sign-in")
		return
	}
	verifier := oauth2.GenerateVerifier()
	raw, _ := json.Marshal(octx)

	h.setOAuthCookie(c, oauthStateCookie, state, oauthCookieTTL)
	h.setOAuthCookie(c, oauthVerifierCookie, verifier, oauthCookieTTL)
	h.setOAuthCookie(c, oauthContextCookie, base64.RawURLEncoding.EncodeToString(raw), oauthCookieTTL)

	c.Redirect(http.StatusFound, h.Google.AuthCodeURL(state, verifier, h.callbackURL()))
}

// GoogleCallback завершает вход и продолжает онбординг из токена продолжения
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	octx := h.readOAuthContext(c)
	state, _ := c.Cookie(oauthStateCookie)
	verifier, _ := c.Cookie(oauthVerifierCookie)
	for _, name := range []string{oauthStateCookie, oauthVerifierCookie, oauthContextCookie} {
		h.setOAuthCookie(c, name, "", -time.Second)
	}

	if h.Google == nil {
		errorJSON(c, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}
	if e := c.Query("error"); e != "" {
		h.authFailed(c, octx, "Sign-in was cancelled")
		return
	}
	if state == "" || verifier == "" || c.Query("state") != state {
		h.authFailed(c, octx, "Sign-in session expired, please try again")
		return
	}

	gu, err := h.Google.Exchange(ctx, c.Query("code"), verifier, h.callbackURL())
	if err != nil {
		h.Log.Warn("google exchange failed", zap.Error(err))
		h.authFailed(c, octx, "Google sign-in failed")
		return
	}

	var guestID *uuid.UUID
	if id, ok := middleware.UserID(c); ok && middleware.IsGuest(c) {
		guestID = &id
	}
	sess, err := h.Auth.GoogleSignIn(ctx, gu, guestID)
	if err != nil {
		h.Log.Error("google sign-in failed", zap.Error(err))
		h.authFailed(c, octx, "Google sign-in failed")
		return
	}
	h.setSession(c, sess)
	h.Telemetry.Track("", "google_sign_in", map[string]any{
		"userId":        sess.User.ID.String(),
		"upgradedGuest": guestID != nil && *guestID == sess.User.ID,
	})

	user := dto.NewUserResponse(sess.User)

	var next *onboarding.State
	var nextToken string
	if octx.Continuation != "" {
		st, err := h.Flows.Consume(ctx, octx.Continuation)
		if err != nil {
			h.Log.Warn("continuation not restored", zap.Error(err))
		} else {
			st = st.AfterSignIn(userInfo(sess.User))
			nextToken, st, err = h.Flows.Issue(ctx, st)
			if err != nil {
				internalError(c, h.Log, err, "Failed to continue onboarding")
				return
			}
			next = &st
			h.publish(st.FlowID, ws.TypeAuthSuccess, gin.H{"user": user})
			h.publish(st.FlowID, ws.TypeContinueOnboarding, gin.H{"state": st, "continuation": nextToken})
		}
	}

	if octx.Mode == modePopup {
		h.popupResult(c, gin.H{"type": "AUTH_SUCCESS", "user": user, "continuation": nextToken})
		return
	}

	var query string
	if next != nil {
		q := url.Values{"continuation": {nextToken}}
		if next.Username != "" {
			q.Set("onboarding", "true")
		}
		query = "?" + q.Encode()
	}

	switch {
	case next != nil && next.Username != "":
		c.Redirect(http.StatusFound, h.PublicBaseURL+"/"+url.PathEscape(next.Username)+query)
	case octx.ChatID != "":
		c.Redirect(http.StatusFound, h.PublicBaseURL+"/chat/"+url.PathEscape(octx.ChatID)+query)
	default:
		c.Redirect(http.StatusFound, h.PublicBaseURL+"/"+query)
	}
}

func (h *AuthHandler) readOAuthContext(c *gin.Context) oauthContext {
	octx := oauthContext{Mode: modeRedirect}
	raw, err := c.Cookie(oauthContextCookie)
	if err != nil {
		return octx
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return octx
	}
	_ = json.Unmarshal(data, &octx)
	if octx.Mode != modePopup {
		octx.Mode = modeRedirect
	}
	return octx
}

func (h *AuthHandler) authFailed(c *gin.Context, octx oauthContext, msg string) {
	if octx.Continuation != "" {
		if st, err := h.Flows.Peek(c.Request.Context(), octx.Continuation); err == nil {
			h.publish(st.FlowID, ws.TypeAuthError, gin.H{"error": msg})
		}
	}
	if octx.Mode == modePopup {
		h.popupResult(c, gin.H{"type": "AUTH_ERROR", "error": msg})
		return
	}
	c.Redirect(http.StatusFound, h.PublicBaseURL+"/?authError="+url.QueryEscape(msg))
}

func (h *AuthHandler) publish(flowID string, t ws.MessageType, data any) {
	if h.Hub == nil {
		return
	}
	if err := h.Hub.Publish(flowID, t, data); err != nil {
		h.Log.Warn("flow publish failed", zap.String("flow", flowID), zap.Error(err))
	}
}

var popupTemplate = template.Must(template.New("popup").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Quipe</title></head>
<body>
<script>
(function () {
  var payload = {{.Payload}};
  if (window.opener) {
    window.opener.postMessage(payload, {{.Origin}});
  }
  window.close();
})();
</script>
</body></html>
`))

// popupResult страница, которая передаёт результат входа открывшему окну и закрывается
func (h *AuthHandler) popupResult(c *gin.Context, payload gin.H) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := popupTemplate.Execute(c.Writer, gin.H{"Payload": payload, "Origin": h.PublicBaseURL}); err != nil {
		h.Log.Error("render popup result", zap.Error(err))
	}
}

func userInfo(u *models.User) onboarding.UserInfo {
	return onboarding.UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.UsernameValue(),
		DisplayName: u.DisplayName,
		Picture:     u.ProfilePicture,
	}
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
