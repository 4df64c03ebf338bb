// Package ai ведёт один ход чата: системный промпт, вызов модели,
// исполнение инструментов и стриминг событий клиенту
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/thereayou/quipe/internal/models"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	ChatModelDefault   = "chat-model"
	ChatModelReasoning = "chat-model-reasoning"

	defaultMaxSteps = 5
)

var ErrUnknownModel = errors.New("unknown chat model")

// Streamer потоковая генерация; *genai.Models удовлетворяет интерфейсу
type Streamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Emit отправляет событие клиенту
type Emit func(event string, data any) error

type ModelNames struct {
	Chat      string
	Reasoning string
}

type Engine struct {
	models   Streamer
	names    ModelNames
	prompts  *Prompts
	tools    map[string]Tool
	order    []string
	maxSteps int
	log      *zap.Logger
}

func NewEngine(models Streamer, names ModelNames, prompts *Prompts, log *zap.Logger, tools ...Tool) *Engine {
	e := &Engine{
		models:   models,
		names:    names,
		prompts:  prompts,
		tools:    make(map[string]Tool, len(tools)),
		maxSteps: defaultMaxSteps,
		log:      log,
	}
	for _, t := range tools {
		name := t.Declaration().Name
		e.tools[name] = t
		e.order = append(e.order, name)
	}
	return e
}

// NewGeminiStreamer клиент Gemini API
func NewGeminiStreamer(ctx context.Context, apiKey string) (Streamer, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client.Models, nil
}

// ValidModel проверяет id модели, пришедший от клиента
func ValidModel(id string) bool {
	return id == ChatModelDefault || id == ChatModelReasoning
}

type Turn struct {
	ChatModel string
	Guest     bool
	Hints     RequestHints
	History   []*genai.Content
	UserText  string
	UserID    uuid.UUID
	ChatID    string
}

type Result struct {
	Text  string
	Parts []models.Part
	Steps int
}

// Run выполняет ход; инструменты вызываются, пока модель их просит, но не больше maxSteps шагов
func (e *Engine) Run(ctx context.Context, turn Turn, emit Emit) (*Result, error) {
	if turn.ChatModel == "" {
		turn.ChatModel = ChatModelDefault
	}
	if !ValidModel(turn.ChatModel) {
		return nil, ErrUnknownModel
	}
	reasoning := turn.ChatModel == ChatModelReasoning
	model := e.names.Chat
	if reasoning {
		model = e.names.Reasoning
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: e.prompts.System(turn.Hints, turn.Guest, reasoning)}},
		},
	}
	if !reasoning && len(e.tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(e.order))
		for _, name := range e.order {
			decls = append(decls, e.tools[name].Declaration())
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := append([]*genai.Content{}, turn.History...)
	contents = append(contents, genai.NewContentFromText(turn.UserText, genai.RoleUser))

	res := &Result{}
	tc := ToolContext{
		UserID:  turn.UserID,
		ChatID:  turn.ChatID,
		Model:   model,
		Emit:    emit,
		AddPart: func(p models.Part) { res.Parts = append(res.Parts, p) },
	}
	var text strings.Builder

	for res.Steps < e.maxSteps {
		res.Steps++

		var modelParts []*genai.Part
		var calls []*genai.FunctionCall
		for resp, err := range e.models.GenerateContentStream(ctx, model, contents, cfg) {
			if err != nil {
				return nil, fmt.Errorf("generate: %w", err)
			}
			for _, part := range firstCandidateParts(resp) {
				modelParts = append(modelParts, part)
				if part.FunctionCall != nil {
					calls = append(calls, part.FunctionCall)
					continue
				}
				if part.Text != "" && !part.Thought {
					text.WriteString(part.Text)
					if err := emit("text-delta", map[string]string{"delta": part.Text}); err != nil {
						return nil, err
					}
				}
			}
		}
		if len(modelParts) > 0 {
			contents = append(contents, genai.NewContentFromParts(modelParts, genai.RoleModel))
		}
		if len(calls) == 0 {
			break
		}

		responses := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			out := e.callTool(ctx, tc, call)
			if err := emit("tool-result", map[string]any{"toolCallId": call.ID, "toolName": call.Name, "output": out}); err != nil {
				return nil, err
			}
			p := genai.NewPartFromFunctionResponse(call.Name, out)
			p.FunctionResponse.ID = call.ID
			responses = append(responses, p)
		}
		contents = append(contents, genai.NewContentFromParts(responses, genai.RoleUser))
	}

	res.Text = text.String()
	if res.Text != "" {
		res.Parts = append([]models.Part{{Type: "text", Text: res.Text}}, res.Parts...)
	}
	return res, nil
}

func (e *Engine) callTool(ctx context.Context, tc ToolContext, call *genai.FunctionCall) map[string]any {
	if err := tc.Emit("tool-call", map[string]any{"toolCallId": call.ID, "toolName": call.Name, "input": call.Args}); err != nil {
		return map[string]any{"error": err.Error()}
	}

	tool, ok := e.tools[call.Name]
	if !ok {
		e.log.Warn("model called unknown tool", zap.String("tool", call.Name))
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
	}

	out, err := tool.Execute(ctx, tc, call.Args)
	if err != nil {
		e.log.Warn("tool failed", zap.String("tool", call.Name), zap.Error(err))
		return map[string]any{"error": err.Error()}
	}
	return out
}

func firstCandidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

// HistoryFromMessages переводит сохранённые сообщения в формат модели; учитываются только текстовые части
func HistoryFromMessages(msgs []models.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var parts []models.Part
		if err := json.Unmarshal(m.Parts, &parts); err != nil {
			continue
		}

		var text strings.Builder
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(p.Text)
			}
		}
		if text.Len() == 0 {
			continue
		}

		if m.Role == models.RoleAssistant {
			out = append(out, genai.NewContentFromText(text.String(), genai.RoleModel))
		} else {
			out = append(out, genai.NewContentFromText(text.String(), genai.RoleUser))
		}
	}
	return out
}
