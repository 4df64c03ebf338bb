package ai

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/thereayou/quipe/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type Prompts struct {
	Regular      string                         `yaml:"regular"`
	Onboarding   string                         `yaml:"onboarding"`
	RequestHints string                         `yaml:"request_hints"`
	Artifacts    string                         `yaml:"artifacts"`
	Documents    map[models.DocumentKind]string `yaml:"documents"`
	Updates      map[models.DocumentKind]string `yaml:"updates"`
}

// RequestHints геоданные запроса из заголовков прокси
type RequestHints struct {
	Latitude  string
	Longitude string
	City      string
	Country   string
}

func LoadPrompts() (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(promptsYAML, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if p.Regular == "" || p.Onboarding == "" || p.Artifacts == "" {
		return nil, fmt.Errorf("prompts.yaml is incomplete")
	}
	return &p, nil
}

// System собирает системный промпт. Гостям достаётся онбординг,
// reasoning-модели не получают инструкции по артефактам
func (p *Prompts) System(hints RequestHints, guest, reasoning bool) string {
	base := p.Regular
	if guest {
		base = p.Onboarding
	}

	parts := []string{strings.TrimSpace(base), strings.TrimSpace(p.hints(hints))}
	if !reasoning {
		parts = append(parts, strings.TrimSpace(p.Artifacts))
	}
	return strings.Join(parts, "\n\n")
}

func (p *Prompts) hints(h RequestHints) string {
	return strings.NewReplacer(
		"{latitude}", orUnknown(h.Latitude),
		"{longitude}", orUnknown(h.Longitude),
		"{city}", orUnknown(h.City),
		"{country}", orUnknown(h.Country),
	).Replace(p.RequestHints)
}

func (p *Prompts) Document(kind models.DocumentKind) string {
	return p.Documents[kind]
}

func (p *Prompts) UpdateDocument(content string, kind models.DocumentKind) string {
	tmpl, ok := p.Updates[kind]
	if !ok {
		return ""
	}
	return strings.ReplaceAll(tmpl, "{content}", content)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
