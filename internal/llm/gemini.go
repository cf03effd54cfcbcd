package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface for Google Gemini
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiModels lists available Gemini models
var GeminiModels = []Model{
	{
		ID:            "gemini-2.0-flash",
		Name:          "Gemini 2.0 Flash",
		ContextWindow: 1000000,
		InputCost:     0.10,
		OutputCost:    0.40,
	},
	{
		ID:            "gemini-1.5-pro",
		Name:          "Gemini 1.5 Pro",
		ContextWindow: 2000000,
		InputCost:     1.25,
		OutputCost:    5.0,
	},
	{
		ID:            "gemini-1.5-flash",
		Name:          "Gemini 1.5 Flash",
		ContextWindow: 1000000,
		InputCost:     0.075,
		OutputCost:    0.30,
	},
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// ID returns the provider identifier
func (p *GeminiProvider) ID() ProviderID {
	return ProviderGemini
}

// Name returns the human-readable provider name
func (p *GeminiProvider) Name() string {
	return "Google Gemini"
}

// Models returns available models
func (p *GeminiProvider) Models() []Model {
	return GeminiModels
}

// DefaultModel returns the default model
func (p *GeminiProvider) DefaultModel() string {
	return p.model
}

// SetModel switches the active model after validating the ID
func (p *GeminiProvider) SetModel(modelID string) error {
	if err := ValidateModelID(modelID, p.Models()); err != nil {
		return err
	}
	p.model = modelID
	return nil
}

// Chat sends a message and returns the response
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	cs, last, err := p.session(req)
	if err != nil {
		return nil, err
	}

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	out := &ChatResponse{}
	if err := mergeGeminiResponse(out, resp, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// Stream relays text parts from a streamed response.
func (p *GeminiProvider) Stream(ctx context.Context, req *ChatRequest, onDelta func(string) error) (*ChatResponse, error) {
	cs, last, err := p.session(req)
	if err != nil {
		return nil, err
	}

	iter := cs.SendMessageStream(ctx, last.Parts...)
	out := &ChatResponse{}
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		if err := mergeGeminiResponse(out, resp, onDelta); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close closes the client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) session(req *ChatRequest) (*genai.ChatSession, *genai.Content, error) {
	if len(req.Messages) == 0 {
		return nil, nil, ErrEmptyRequest
	}

	model := p.client.GenerativeModel(req.model(p.model))
	model.SetMaxOutputTokens(int32(req.maxTokens()))
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1] // All but last message
	return cs, contents[len(contents)-1], nil
}

// mergeGeminiResponse folds one response (or stream chunk) into out, passing
// new text to onDelta when it is set.
func mergeGeminiResponse(out *ChatResponse, resp *genai.GenerateContentResponse, onDelta func(string) error) error {
	if len(resp.Candidates) == 0 {
		if out.Content == "" && onDelta == nil {
			return fmt.Errorf("no candidates in response")
		}
		return nil
	}

	candidate := resp.Candidates[0]
	if r := geminiStopReason(candidate.FinishReason); r != "" {
		out.StopReason = r
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if candidate.Content == nil {
		return nil
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	chunk := text.String()
	out.Content += chunk
	if onDelta != nil && chunk != "" {
		return onDelta(chunk)
	}
	return nil
}

func geminiStopReason(r genai.FinishReason) string {
	switch r {
	case genai.FinishReasonUnspecified:
		return ""
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	case genai.FinishReasonSafety:
		return "safety"
	default:
		return "other"
	}
}
