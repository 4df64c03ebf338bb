package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type GoogleUser struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleOAuth вход через Google по authorization code + PKCE
type GoogleOAuth struct {
	cfg         oauth2.Config
	userInfoURL string
}

func NewGoogleOAuth(clientID, clientSecret string) *GoogleOAuth {
	return &GoogleOAuth{
		cfg: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleOAuth) config(redirectURL string) *oauth2.Config {
	c := g.cfg
	c.RedirectURL = redirectURL
	return &c
}

func (g *GoogleOAuth) AuthCodeURL(state, verifier, redirectURL string) string {
	return g.config(redirectURL).AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange меняет code на токен и читает профиль пользователя
func (g *GoogleOAuth) Exchange(ctx context.Context, code, verifier, redirectURL string) (*GoogleUser, error) {
	cfg := g.config(redirectURL)
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo: status %d", resp.StatusCode)
	}

	var gu GoogleUser
	if err := json.Unmarshal(body, &gu); err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	if gu.Subject == "" || gu.Email == "" {
		return nil, errors.New("google userinfo: missing subject or email")
	}
	if !gu.EmailVerified {
		return nil, errors.New("google userinfo: email is not verified")
	}
	return &gu, nil
}
