// Package auth resolves API keys for the assistant's LLM providers.
package auth

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/yolodolo42/chatdefi/internal/llm"
)

// ConfigSource is the read side of the config layer. *viper.Viper
// implements it.
type ConfigSource interface {
	GetString(key string) string
}

var envRef = regexp.MustCompile(`\{env:([^}]+)\}`)

// Manager resolves keys from, in order: the provider's environment
// variable, llm.providers.<id>.api_key in the config file (which may
// reference {env:VAR}) and auth.json.
type Manager struct {
	store  *Store
	config ConfigSource
}

// NewManager opens the key store under dataDir. config may be nil.
func NewManager(dataDir string, config ConfigSource) (*Manager, error) {
	store, err := NewStore(dataDir)
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, config: config}, nil
}

// APIKey returns the key for id.
func (m *Manager) APIKey(id llm.ProviderID) (string, error) {
	if env := llm.EnvVarForProvider(id); env != "" {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}
	if m.config != nil {
		if key := expandEnv(m.config.GetString(fmt.Sprintf("llm.providers.%s.api_key", id))); key != "" {
			return key, nil
		}
	}
	return m.store.Key(id)
}

// HasKey reports whether any source holds a key for id.
func (m *Manager) HasKey(id llm.ProviderID) bool {
	_, err := m.APIKey(id)
	return err == nil
}

func (m *Manager) SetAPIKey(id llm.ProviderID, key string) error {
	return m.store.SetKey(id, key)
}

func (m *Manager) RemoveAPIKey(id llm.ProviderID) error {
	return m.store.RemoveKey(id)
}

// Connected returns the providers that have a key, in priority order.
func (m *Manager) Connected() []llm.ProviderID {
	var out []llm.ProviderID
	for _, id := range llm.AllProviderIDs() {
		if m.HasKey(id) {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) DefaultProvider() llm.ProviderID {
	return m.store.DefaultProvider()
}

func (m *Manager) SetDefaultProvider(id llm.ProviderID) error {
	if !m.HasKey(id) {
		return fmt.Errorf("%w for %s", ErrNoCredential, id)
	}
	return m.store.SetDefaultProvider(id)
}

// Choose picks the provider to use: preferred when it has a key, then the
// stored default, then the first connected provider.
func (m *Manager) Choose(preferred llm.ProviderID) (llm.ProviderID, error) {
	for _, id := range []llm.ProviderID{preferred, m.store.DefaultProvider()} {
		if id != "" && m.HasKey(id) {
			return id, nil
		}
	}
	if connected := m.Connected(); len(connected) > 0 {
		return connected[0], nil
	}
	return "", fmt.Errorf("%w: set %s or run `chatdefi auth connect`",
		ErrNoCredential, llm.EnvVarForProvider(orDefault(preferred)))
}

// Open builds the provider picked by Choose.
func (m *Manager) Open(ctx context.Context, preferred llm.ProviderID, model string) (llm.Provider, error) {
	id, err := m.Choose(preferred)
	if err != nil {
		return nil, err
	}
	key, err := m.APIKey(id)
	if err != nil {
		return nil, err
	}
	if id != preferred {
		// a model named for another provider would not validate
		model = ""
	}
	return llm.NewProvider(ctx, id, key, model)
}

// Registry opens every connected provider. The one picked by Choose is the
// default and gets model.
func (m *Manager) Registry(ctx context.Context, preferred llm.ProviderID, model string) (*llm.ProviderRegistry, error) {
	chosen, err := m.Choose(preferred)
	if err != nil {
		return nil, err
	}
	if chosen != preferred {
		model = ""
	}

	reg := llm.NewProviderRegistry()
	for _, id := range m.Connected() {
		key, err := m.APIKey(id)
		if err != nil {
			return nil, err
		}
		var pm string
		if id == chosen {
			pm = model
		}
		p, err := llm.NewProvider(ctx, id, key, pm)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		reg.Register(p)
	}
	if err := reg.SetDefault(chosen); err != nil {
		return nil, err
	}
	return reg, nil
}

// KeyHint tells the user where to get a key for id.
func KeyHint(id llm.ProviderID) string {
	switch id {
	case llm.ProviderOpenAI:
		return "platform.openai.com/api-keys"
	case llm.ProviderOpenRouter:
		return "openrouter.ai/settings/keys"
	case llm.ProviderAnthropic:
		return "console.anthropic.com"
	case llm.ProviderGemini:
		return "aistudio.google.com/apikey"
	default:
		return ""
	}
}

func orDefault(id llm.ProviderID) llm.ProviderID {
	if id == "" {
		return llm.ProviderOpenAI
	}
	return id
}

// expandEnv replaces {env:VAR} references with the variable's value.
func expandEnv(value string) string {
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[5 : len(match)-1])
	})
}
