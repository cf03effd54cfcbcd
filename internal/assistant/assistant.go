// Package assistant is the ChatDeFi chat assistant: a fixed system prompt in
// front of a streaming LLM provider, served over HTTP at /api/chat.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yolodolo42/chatdefi/internal/llm"
)

// SystemPrompt frames every conversation.
const SystemPrompt = `You are an AI assistant for ChatDeFi, a DeFi yield aggregator with AI capabilities.
Help users understand DeFi concepts, ChatDeFi vaults, and how to maximize their yield.
You can provide information about crypto assets, yield strategies, and general DeFi knowledge.
Be concise, helpful, and accurate.`

// MaxDuration bounds one streamed reply.
const MaxDuration = 30 * time.Second

var ErrInvalidConversation = errors.New("invalid conversation")

// Assistant relays conversations to an LLM provider.
type Assistant struct {
	provider    llm.Provider
	logger      *zap.Logger
	maxDuration time.Duration
	model       string
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithMaxDuration overrides MaxDuration.
func WithMaxDuration(d time.Duration) Option {
	return func(a *Assistant) { a.maxDuration = d }
}

// WithModel pins the model instead of the provider default.
func WithModel(model string) Option {
	return func(a *Assistant) { a.model = model }
}

// New returns an assistant backed by provider.
func New(provider llm.Provider, opts ...Option) *Assistant {
	a := &Assistant{
		provider:    provider,
		logger:      zap.NewNop(),
		maxDuration: MaxDuration,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the backing provider.
func (a *Assistant) Provider() llm.Provider { return a.provider }

// Stream sends the conversation with the system prompt and calls onDelta
// with each chunk of the reply.
func (a *Assistant) Stream(ctx context.Context, messages []llm.Message, onDelta func(string) error) (*llm.ChatResponse, error) {
	if err := Validate(messages); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.maxDuration)
	defer cancel()

	start := time.Now()
	resp, err := a.provider.Stream(ctx, &llm.ChatRequest{
		SystemPrompt: SystemPrompt,
		Messages:     messages,
		Model:        a.model,
	}, onDelta)
	if err != nil {
		a.logger.Warn("assistant stream failed",
			zap.String("provider", string(a.provider.ID())),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	a.logger.Debug("assistant reply",
		zap.String("provider", string(a.provider.ID())),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// Validate checks that a conversation is non-empty, uses only user and
// assistant roles and ends with the user.
func Validate(messages []llm.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: no messages", ErrInvalidConversation)
	}
	for i, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidConversation, i, m.Role)
		}
	}
	if messages[len(messages)-1].Role != "user" {
		return fmt.Errorf("%w: last message must come from the user", ErrInvalidConversation)
	}
	return nil
}
