package llm

import (
	"context"
)

type MockLLMClient struct {
	Response   string
	Err        error
	LastSystem string
	LastPrompt string
}

func (m *MockLLMClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.LastSystem = system
	m.LastPrompt = prompt
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}
