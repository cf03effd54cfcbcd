package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	baseURL string
}

// OpenAIModels lists available OpenAI models
var OpenAIModels = []Model{
	{
		ID:            "gpt-4o",
		Name:          "GPT-4o",
		ContextWindow: 128000,
		InputCost:     2.50,
		OutputCost:    10.0,
	},
	{
		ID:            "gpt-4o-mini",
		Name:          "GPT-4o Mini",
		ContextWindow: 128000,
		InputCost:     0.15,
		OutputCost:    0.60,
	},
	{
		ID:            "gpt-4-turbo",
		Name:          "GPT-4 Turbo",
		ContextWindow: 128000,
		InputCost:     10.0,
		OutputCost:    30.0,
	},
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey string, model string, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	if model == "" {
		model = "gpt-4o"
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		baseURL: baseURL,
	}, nil
}

// ID returns the provider identifier
func (p *OpenAIProvider) ID() ProviderID {
	return ProviderOpenAI
}

// Name returns the human-readable provider name
func (p *OpenAIProvider) Name() string {
	return "OpenAI"
}

// Models returns available models
func (p *OpenAIProvider) Models() []Model {
	return OpenAIModels
}

// DefaultModel returns the default model
func (p *OpenAIProvider) DefaultModel() string {
	return p.model
}

// SetModel switches the active model after validating the ID
func (p *OpenAIProvider) SetModel(modelID string) error {
	if err := ValidateModelID(modelID, p.Models()); err != nil {
		return err
	}
	p.model = modelID
	return nil
}

// Chat sends a message and returns the response
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	openaiReq, err := p.request(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// Stream relays content deltas from a streaming chat completion.
func (p *OpenAIProvider) Stream(ctx context.Context, req *ChatRequest, onDelta func(string) error) (*ChatResponse, error) {
	openaiReq, err := p.request(req)
	if err != nil {
		return nil, err
	}
	openaiReq.Stream = true
	openaiReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to start chat stream: %w", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	var (
		content strings.Builder
		final   ChatResponse
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat stream: %w", err)
		}
		for _, ch := range chunk.Choices {
			if ch.FinishReason != "" {
				final.StopReason = string(ch.FinishReason)
			}
			if ch.Delta.Content == "" {
				continue
			}
			content.WriteString(ch.Delta.Content)
			if err := onDelta(ch.Delta.Content); err != nil {
				return nil, err
			}
		}
		if chunk.Usage != nil {
			final.Usage = Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
	}
	final.Content = content.String()
	return &final, nil
}

func (p *OpenAIProvider) request(req *ChatRequest) (openai.ChatCompletionRequest, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionRequest{}, ErrEmptyRequest
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	return openai.ChatCompletionRequest{
		Model:     req.model(p.model),
		MaxTokens: req.maxTokens(),
		Messages:  messages,
	}, nil
}
