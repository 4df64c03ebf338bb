package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/models"
	"google.golang.org/genai"
)

// ToolContext то, что инструмент знает о текущем ходе
type ToolContext struct {
	UserID  uuid.UUID
	ChatID  string
	Model   string
	Emit    Emit
	AddPart func(models.Part)
}

type Tool interface {
	Declaration() *genai.FunctionDeclaration
	Execute(ctx context.Context, tc ToolContext, args map[string]any) (map[string]any, error)
}

// UI-компоненты, которые клиент умеет рисовать в чате
var UIComponents = []string{"google-signin-button", "username-input", "profile-form", "success-card"}

type RenderUIComponent struct{}

func (RenderUIComponent) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        "renderUIComponent",
		Description: "Specify UI components to render in chat (Google sign-in button, forms, etc.)",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"componentType": {Type: genai.TypeString, Enum: UIComponents, Description: "The type of component to render"},
				"props":         {Type: genai.TypeObject, Description: "Props to pass to the component"},
				"message":       {Type: genai.TypeString, Description: "Message to show with the component"},
			},
			Required: []string{"componentType", "message"},
		},
	}
}

func (RenderUIComponent) Execute(_ context.Context, tc ToolContext, args map[string]any) (map[string]any, error) {
	componentType, _ := args["componentType"].(string)
	if !knownComponent(componentType) {
		return nil, fmt.Errorf("unsupported component type %q", componentType)
	}
	message, _ := args["message"].(string)
	props, _ := args["props"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}

	component := map[string]any{"type": componentType, "props": props, "message": message}
	if err := tc.Emit("data-uiComponent", component); err != nil {
		return nil, err
	}
	if tc.AddPart != nil {
		tc.AddPart(models.Part{Type: "data-uiComponent", Data: component})
	}
	return map[string]any{"success": true, "rendered": componentType}, nil
}

func knownComponent(t string) bool {
	for _, c := range UIComponents {
		if c == t {
			return true
		}
	}
	return false
}

// Weather текущая погода через open-meteo
type Weather struct {
	baseURL string
	client  *http.Client
}

func NewWeather() *Weather {
	return &Weather{
		baseURL: "https://api.open-meteo.com/v1/forecast",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (*Weather) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        "getWeather",
		Description: "Get the current weather at a location",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"latitude":  {Type: genai.TypeNumber},
				"longitude": {Type: genai.TypeNumber},
			},
			Required: []string{"latitude", "longitude"},
		},
	}
}

func (w *Weather) Execute(ctx context.Context, _ ToolContext, args map[string]any) (map[string]any, error) {
	lat, ok1 := args["latitude"].(float64)
	lon, ok2 := args["longitude"].(float64)
	if !ok1 || !ok2 {
		return nil, errors.New("latitude and longitude are required")
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", lat))
	q.Set("longitude", fmt.Sprintf("%g", lon))
	q.Set("current", "temperature_2m")
	q.Set("hourly", "temperature_2m")
	q.Set("daily", "sunrise,sunset")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather: status %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	return out, nil
}

// DocumentStore хранилище артефактов
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetLatestDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// Documents инструменты createDocument и updateDocument
type Documents struct {
	gen     Streamer
	store   DocumentStore
	prompts *Prompts
}

func NewDocuments(gen Streamer, store DocumentStore, prompts *Prompts) *Documents {
	return &Documents{gen: gen, store: store, prompts: prompts}
}

// Tools пара инструментов для регистрации в Engine
func (d *Documents) Tools() []Tool {
	return []Tool{createDocument{d}, updateDocument{d}}
}

type createDocument struct{ d *Documents }

func (createDocument) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        "createDocument",
		Description: "Create a document for a writing or content creation activity. Generates the contents based on the title and kind.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"title": {Type: genai.TypeString},
				"kind":  {Type: genai.TypeString, Enum: []string{string(models.KindText), string(models.KindCode), string(models.KindSheet)}},
			},
			Required: []string{"title", "kind"},
		},
	}
}

func (t createDocument) Execute(ctx context.Context, tc ToolContext, args map[string]any) (map[string]any, error) {
	title, _ := args["title"].(string)
	kind := models.DocumentKind(stringArg(args, "kind"))
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("title is required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unsupported document kind %q", kind)
	}

	id := uuid.New()
	for _, ev := range []struct {
		name string
		data any
	}{
		{"data-kind", kind},
		{"data-id", id},
		{"data-title", title},
		{"data-clear", nil},
	} {
		if err := tc.Emit(ev.name, ev.data); err != nil {
			return nil, err
		}
	}

	content, err := t.d.generate(ctx, tc, kind, t.d.prompts.Document(kind), title)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{ID: id, UserID: tc.UserID, Title: title, Kind: kind, Content: content}
	if err := t.d.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	if err := tc.Emit("data-finish", nil); err != nil {
		return nil, err
	}

	return map[string]any{
		"id":      id.String(),
		"title":   title,
		"kind":    string(kind),
		"content": "A document was created and is now visible to the user.",
	}, nil
}

type updateDocument struct{ d *Documents }

func (updateDocument) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        "updateDocument",
		Description: "Update a document with the given description.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"id":          {Type: genai.TypeString, Description: "The ID of the document to update"},
				"description": {Type: genai.TypeString, Description: "The description of changes that need to be made"},
			},
			Required: []string{"id", "description"},
		},
	}
}

func (t updateDocument) Execute(ctx context.Context, tc ToolContext, args map[string]any) (map[string]any, error) {
	id, err := uuid.Parse(stringArg(args, "id"))
	if err != nil {
		return nil, errors.New("document id is invalid")
	}
	description := stringArg(args, "description")

	doc, err := t.d.store.GetLatestDocument(ctx, id)
	if err != nil {
		return map[string]any{"error": "Document not found"}, nil
	}
	if doc.UserID != tc.UserID {
		return map[string]any{"error": "Document not found"}, nil
	}

	if err := tc.Emit("data-clear", nil); err != nil {
		return nil, err
	}

	content, err := t.d.generate(ctx, tc, doc.Kind, t.d.prompts.UpdateDocument(doc.Content, doc.Kind), description)
	if err != nil {
		return nil, err
	}

	next := &models.Document{ID: doc.ID, UserID: doc.UserID, Title: doc.Title, Kind: doc.Kind, Content: content}
	if err := t.d.store.SaveDocument(ctx, next); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	if err := tc.Emit("data-finish", nil); err != nil {
		return nil, err
	}

	return map[string]any{
		"id":      doc.ID.String(),
		"title":   doc.Title,
		"kind":    string(doc.Kind),
		"content": "The document has been updated successfully.",
	}, nil
}

// generate стримит содержимое документа клиенту дельтами data-<kind>Delta
func (d *Documents) generate(ctx context.Context, tc ToolContext, kind models.DocumentKind, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	event := "data-" + string(kind) + "Delta"

	var b strings.Builder
	for resp, err := range d.gen.GenerateContentStream(ctx, tc.Model, contents, cfg) {
		if err != nil {
			return "", fmt.Errorf("generate document: %w", err)
		}
		for _, part := range firstCandidateParts(resp) {
			if part.Text == "" || part.Thought {
				continue
			}
			b.WriteString(part.Text)
			if err := tc.Emit(event, part.Text); err != nil {
				return "", err
			}
		}
	}
	return b.String(), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
