package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/pearlyx/internal/config"
)

var defaultModels = map[string]string{
	"openai": "gpt-4o-mini",
	"gemini": "gemini-2.0-flash",
	"claude": "claude-3-5-haiku-latest",
	"ollama": "llama3.2",
}

// NewClient builds the provider named in cfg. The "backend" provider is not
// an LLM and is handled by the caller.
func NewClient(ctx context.Context, cfg config.ChatConfig) (Client, error) {
	provider := strings.ToLower(cfg.Provider)

	model := cfg.Model
	if model == "" {
		model = defaultModels[provider]
	}

	switch provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("chat provider openai requires an api key")
		}
		return NewOpenAIClient(cfg.APIKey, model, cfg.BaseURL), nil

	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("chat provider gemini requires an api key")
		}
		return NewGeminiClient(ctx, cfg.APIKey, model)

	case "claude":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("chat provider claude requires an api key")
		}
		return NewClaudeClient(cfg.APIKey, model, cfg.BaseURL), nil

	case "ollama":
		// Ollama speaks the OpenAI API under /v1
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama" // ignored by Ollama, required by the client
		}
		return NewOpenAIClient(apiKey, model, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
