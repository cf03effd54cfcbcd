package llm

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterModels lists popular OpenRouter models
var OpenRouterModels = []Model{
	{
		ID:            "openai/gpt-4o",
		Name:          "GPT-4o",
		ContextWindow: 128000,
		InputCost:     2.50,
		OutputCost:    10.0,
	},
	{
		ID:            "anthropic/claude-3.5-sonnet",
		Name:          "Claude 3.5 Sonnet",
		ContextWindow: 200000,
		InputCost:     3.0,
		OutputCost:    15.0,
	},
	{
		ID:            "google/gemini-2.5-pro-preview",
		Name:          "Gemini 2.5 Pro",
		ContextWindow: 1000000,
		InputCost:     1.25,
		OutputCost:    10.0,
	},
	{
		ID:            "meta-llama/llama-4-maverick",
		Name:          "Llama 4 Maverick",
		ContextWindow: 1000000,
		InputCost:     0.25,
		OutputCost:    1.0,
	},
}

// NewOpenRouterProvider creates a provider for OpenRouter's OpenAI-compatible API.
func NewOpenRouterProvider(apiKey string, model string) (*OpenAICompatProvider, error) {
	return newOpenAICompatProvider(apiKey, model, openRouterBaseURL,
		ProviderOpenRouter, "OpenRouter", OpenRouterModels, "openai/gpt-4o")
}
