package dto

import (
	"strings"

	"github.com/thereayou/quipe/internal/models"
)

type ChatMessage struct {
	ID    string        `json:"id"`
	Role  string        `json:"role" binding:"required,eq=user"`
	Parts []models.Part `json:"parts" binding:"required,min=1"`
}

// Text склеенный текст всех текстовых частей
func (m ChatMessage) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

type ChatRequest struct {
	ID                     string            `json:"id" binding:"required,max=191"`
	Message                ChatMessage       `json:"message" binding:"required"`
	SelectedChatModel      string            `json:"selectedChatModel"`
	SelectedVisibilityType models.Visibility `json:"selectedVisibilityType"`
}

type VisibilityRequest struct {
	Visibility models.Visibility `json:"visibility" binding:"required"`
}

type ChatModelRequest struct {
	Model string `json:"model" binding:"required"`
}
