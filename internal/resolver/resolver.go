// Package resolver решает, что показать на странице quipe.me/<username>:
// свободно ли имя, какое приветствие отправить и нужен ли онбординг
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/database"
	"github.com/thereayou/quipe/internal/models"
	"github.com/thereayou/quipe/internal/username"
)

// ErrNotResolvable имя не занято и при этом не может быть занято
var ErrNotResolvable = errors.New("profile not found")

type UserFinder interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Viewer тот, кто открыл страницу; nil значит без сессии
type Viewer struct {
	ID    uuid.UUID
	Guest bool
}

type Request struct {
	Username   string
	Viewer     *Viewer
	Onboarding bool
}

type Metadata struct {
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID       uuid.UUID     `json:"id"`
	Role     string        `json:"role"`
	Parts    []models.Part `json:"parts"`
	Metadata Metadata      `json:"metadata"`
}

type PageMeta struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Target struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	DisplayName    string    `json:"displayName"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profilePicture"`
}

type Resolution struct {
	Username        string    `json:"username"`
	Available       bool      `json:"isUsernameAvailable"`
	IsSelf          bool      `json:"isTargetUserSelf"`
	IsGuest         bool      `json:"isGuest"`
	Onboarding      bool      `json:"isOnboarding"`
	ShowOnboarding  bool      `json:"shouldShowOnboarding"`
	ChatID          string    `json:"chatId"`
	InitialMessages []Message `json:"initialMessages"`
	Target          *Target   `json:"target,omitempty"`
	Meta            PageMeta  `json:"meta"`
}

type Resolver struct {
	users UserFinder
	newID func() uuid.UUID
	now   func() time.Time
}

func New(users UserFinder) *Resolver {
	return &Resolver{users: users, newID: uuid.New, now: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolution, error) {
	name := username.Normalize(req.Username)

	target, err := r.users.FindUserByUsername(ctx, name)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("lookup %q: %w", name, err)
	}
	available := target == nil
	if available && username.Validate(name) != nil {
		return nil, ErrNotResolvable
	}

	res := &Resolution{
		Username:        name,
		Available:       available,
		Onboarding:      req.Onboarding,
		InitialMessages: []Message{},
	}
	if req.Viewer != nil {
		res.IsGuest = req.Viewer.Guest
		res.IsSelf = target != nil && target.ID == req.Viewer.ID
	}

	switch {
	case res.IsGuest:
		res.ChatID = "guest-claim-" + name
	case req.Viewer != nil && available:
		res.ChatID = fmt.Sprintf("claim-%s-%s", name, req.Viewer.ID)
	case req.Viewer != nil:
		res.ChatID = fmt.Sprintf("user-%s-to-%s", req.Viewer.ID, target.ID)
	default:
		res.ChatID = r.newID().String()
	}

	if text := greeting(res, target); text != "" {
		res.InitialMessages = append(res.InitialMessages, Message{
			ID:       r.newID(),
			Role:     models.RoleAssistant,
			Parts:    []models.Part{{Type: "text", Text: text}},
			Metadata: Metadata{CreatedAt: r.now().UTC()},
		})
	}

	res.ShowOnboarding = (available && (res.IsGuest || req.Onboarding)) || (res.IsSelf && req.Onboarding)

	if target != nil {
		res.Target = &Target{
			ID:             target.ID,
			Username:       target.UsernameValue(),
			DisplayName:    target.DisplayName,
			Bio:            target.Bio,
			ProfilePicture: target.ProfilePicture,
		}
	}
	res.Meta = pageMeta(target)

	return res, nil
}

func greeting(res *Resolution, target *models.User) string {
	name := res.Username
	switch {
	case res.Available && res.IsGuest:
		return fmt.Sprintf("🎉 Great news! The username \"%s\" is available!\n\n"+
			"Would you like to claim quipe.me/%s as your profile? I can help you set it up!\n\n"+
			"To get started, let's connect your Google account:\n\n**Quick responses:**", name, name)
	case res.Available && res.Onboarding:
		return fmt.Sprintf("🎉 Perfect! Welcome to your new profile at quipe.me/%s!\n\n"+
			"Let's set it up together. I'll help you:\n\n"+
			"✨ Add a bio and description\n📸 Upload photos\n🔗 Add social media links\n💫 Make it uniquely yours!\n\n"+
			"What would you like to work on first?", name)
	case res.Available:
		return fmt.Sprintf("The username \"%s\" is available! Would you like to claim quipe.me/%s as your profile?", name, name)
	case res.IsSelf && res.Onboarding:
		return fmt.Sprintf("🎉 Welcome back to your profile at quipe.me/%s!\n\n"+
			"Let's continue customizing it. I can help you:\n\n"+
			"✨ Update your bio\n📸 Add more photos\n🔗 Add social media links\n💫 Make it even better!\n\n"+
			"What would you like to work on?", name)
	case !res.IsSelf && target != nil:
		return fmt.Sprintf("👋 Hi! You're viewing %s's profile. Feel free to ask me anything about them or send a message!", target.PublicName())
	}
	return ""
}

func pageMeta(target *models.User) PageMeta {
	if target == nil {
		return PageMeta{Title: "Profile Not Found | Quipe"}
	}
	display := target.PublicName()
	desc := target.Bio
	if desc == "" {
		desc = fmt.Sprintf("Connect with %s on Quipe", display)
	}
	return PageMeta{
		Title:       fmt.Sprintf("%s (@%s) | Quipe", display, target.UsernameValue()),
		Description: desc,
	}
}
