package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ProviderID represents a unique provider identifier
type ProviderID string

const (
	ProviderOpenAI     ProviderID = "openai"
	ProviderOpenRouter ProviderID = "openrouter"
	ProviderAnthropic  ProviderID = "anthropic"
	ProviderGemini     ProviderID = "gemini"
)

var (
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrMissingAPIKey   = errors.New("API key is required")
	ErrEmptyRequest    = errors.New("no messages to send")
)

// Provider is the interface all LLM providers must implement
type Provider interface {
	// ID returns the unique provider identifier
	ID() ProviderID

	// Name returns the human-readable provider name
	Name() string

	// Chat sends the conversation and returns the whole reply
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream sends the conversation and calls onDelta with each text chunk as
	// it arrives. A non-nil error from onDelta stops the stream and is returned.
	Stream(ctx context.Context, req *ChatRequest, onDelta func(string) error) (*ChatResponse, error)

	// Models returns available models for this provider
	Models() []Model

	// DefaultModel returns the default model for this provider
	DefaultModel() string

	// SetModel switches the active model. Returns error if model ID is not
	// in the provider's supported model list.
	SetModel(modelID string) error
}

// Model represents an available model
type Model struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContextWindow int     `json:"context_window"`
	InputCost     float64 `json:"input_cost"`  // per 1M tokens
	OutputCost    float64 `json:"output_cost"` // per 1M tokens
}

// Message represents a conversation message
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is a provider-agnostic chat request
type ChatRequest struct {
	SystemPrompt string    `json:"system_prompt"`
	Messages     []Message `json:"messages"`
	Model        string    `json:"model,omitempty"` // Uses default if empty
	MaxTokens    int       `json:"max_tokens,omitempty"`
}

// ChatResponse is a provider-agnostic chat response
type ChatResponse struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      Usage  `json:"usage"`
}

// Usage tracks token usage
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

const defaultMaxTokens = 4096

func (r *ChatRequest) model(fallback string) string {
	if r.Model != "" {
		return r.Model
	}
	return fallback
}

func (r *ChatRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// EnvVarForProvider returns the environment variable name for a provider's API key
func EnvVarForProvider(id ProviderID) string {
	switch id {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderGemini:
		return "GOOGLE_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}

// AllProviderIDs returns all known provider IDs in priority order
func AllProviderIDs() []ProviderID {
	return []ProviderID{
		ProviderOpenAI,
		ProviderOpenRouter,
		ProviderAnthropic,
		ProviderGemini,
	}
}

// ValidateModelID checks whether modelID exists in the given model list.
func ValidateModelID(modelID string, models []Model) error {
	for _, m := range models {
		if m.ID == modelID {
			return nil
		}
	}
	return fmt.Errorf("unknown model %q for this provider", modelID)
}

// NewProvider constructs the provider named by id.
func NewProvider(ctx context.Context, id ProviderID, apiKey, model string) (Provider, error) {
	switch id {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model, "")
	case ProviderOpenRouter:
		return NewOpenRouterProvider(apiKey, model)
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model)
	case ProviderGemini:
		return NewGeminiProvider(ctx, apiKey, model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
}

// ProviderRegistry holds the configured providers and which one is the default.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[ProviderID]Provider
	defaultID ProviderID
}

// NewProviderRegistry returns an empty registry defaulting to OpenAI.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[ProviderID]Provider),
		defaultID: ProviderOpenAI,
	}
}

// Register adds or replaces a provider.
func (r *ProviderRegistry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns the provider with id.
func (r *ProviderRegistry) Get(id ProviderID) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q not configured", ErrUnknownProvider, id)
	}
	return p, nil
}

// SetDefault selects the default provider; it must be registered.
func (r *ProviderRegistry) SetDefault(id ProviderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[id]; !ok {
		return fmt.Errorf("%w: %q not configured", ErrUnknownProvider, id)
	}
	r.defaultID = id
	return nil
}

// Default returns the default provider, or the first registered one in
// priority order when the default is not configured.
func (r *ProviderRegistry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[r.defaultID]; ok {
		return p, nil
	}
	for _, id := range AllProviderIDs() {
		if p, ok := r.providers[id]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: none configured", ErrUnknownProvider)
}

// List returns the registered providers sorted by id.
func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
