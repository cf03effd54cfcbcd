//go:build integration
// +build integration

package llm

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireOpenRouter(t *testing.T, model string) (Provider, context.Context) {
	t.Helper()

	key := os.Getenv("OPENROUTER_API_KEY")
	if key == "" {
		t.Skip("OPENROUTER_API_KEY not set; skipping live OpenRouter tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	p, err := NewOpenRouterProvider(key, model)
	require.NoError(t, err)
	return p, ctx
}

func TestOpenRouter_Stream(t *testing.T) {
	provider, ctx := requireOpenRouter(t, "openai/gpt-4o")

	var b strings.Builder
	resp, err := provider.Stream(ctx, &ChatRequest{
		SystemPrompt: "Answer with one word.",
		Messages:     []Message{{Role: "user", Content: "What token does an ERC-4626 vault accept?"}},
		MaxTokens:    16,
	}, func(s string) error {
		b.WriteString(s)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, b.String())
	require.Equal(t, b.String(), resp.Content)
}
