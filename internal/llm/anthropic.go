package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// AnthropicModels lists available Anthropic models
var AnthropicModels = []Model{
	{
		ID:            "claude-sonnet-4-20250514",
		Name:          "Claude Sonnet 4",
		ContextWindow: 200000,
		InputCost:     3.0,
		OutputCost:    15.0,
	},
	{
		ID:            "claude-3-5-sonnet-20241022",
		Name:          "Claude 3.5 Sonnet",
		ContextWindow: 200000,
		InputCost:     3.0,
		OutputCost:    15.0,
	},
	{
		ID:            "claude-3-5-haiku-20241022",
		Name:          "Claude 3.5 Haiku",
		ContextWindow: 200000,
		InputCost:     0.80,
		OutputCost:    4.0,
	},
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey string, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(apiKey),
		model:  model,
	}, nil
}

// ID returns the provider identifier
func (p *AnthropicProvider) ID() ProviderID {
	return ProviderAnthropic
}

// Name returns the human-readable provider name
func (p *AnthropicProvider) Name() string {
	return "Anthropic"
}

// Models returns available models
func (p *AnthropicProvider) Models() []Model {
	return AnthropicModels
}

// DefaultModel returns the default model
func (p *AnthropicProvider) DefaultModel() string {
	return p.model
}

// SetModel switches the active model after validating the ID
func (p *AnthropicProvider) SetModel(modelID string) error {
	if err := ValidateModelID(modelID, p.Models()); err != nil {
		return err
	}
	p.model = modelID
	return nil
}

// Chat sends a message and returns the response
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	anthropicReq, err := p.request(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateMessages(ctx, anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return anthropicResponse(resp), nil
}

// Stream relays text deltas from the messages stream. The client delivers
// deltas through a callback, so a failing onDelta cancels the request.
func (p *AnthropicProvider) Stream(ctx context.Context, req *ChatRequest, onDelta func(string) error) (*ChatResponse, error) {
	anthropicReq, err := p.request(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var deltaErr error
	resp, err := p.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
		MessagesRequest: anthropicReq,
		OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
			if deltaErr != nil || data.Delta.Text == nil || *data.Delta.Text == "" {
				return
			}
			if err := onDelta(*data.Delta.Text); err != nil {
				deltaErr = err
				cancel()
			}
		},
	})
	if deltaErr != nil {
		return nil, deltaErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stream message: %w", err)
	}
	return anthropicResponse(resp), nil
}

func (p *AnthropicProvider) request(req *ChatRequest) (anthropic.MessagesRequest, error) {
	if len(req.Messages) == 0 {
		return anthropic.MessagesRequest{}, ErrEmptyRequest
	}

	messages := make([]anthropic.Message, len(req.Messages))
	for i, msg := range req.Messages {
		role := anthropic.RoleUser
		if msg.Role == "assistant" {
			role = anthropic.RoleAssistant
		}
		messages[i] = anthropic.Message{
			Role: role,
			Content: []anthropic.MessageContent{
				anthropic.NewTextMessageContent(msg.Content),
			},
		}
	}

	return anthropic.MessagesRequest{
		Model:     anthropic.Model(req.model(p.model)),
		MaxTokens: req.maxTokens(),
		System:    req.SystemPrompt,
		Messages:  messages,
	}, nil
}

func anthropicResponse(resp anthropic.MessagesResponse) *ChatResponse {
	var text strings.Builder
	for _, content := range resp.Content {
		if content.Type == anthropic.MessagesContentTypeText && content.Text != nil {
			text.WriteString(*content.Text)
		}
	}
	return &ChatResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
}
