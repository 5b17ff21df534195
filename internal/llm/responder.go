package llm

import (
	"context"
	"fmt"
	"strings"
)

// Responder answers chat messages with an LLM instead of the analysis
// service.
type Responder struct {
	LLM          Client
	SystemPrompt string
}

func NewResponder(client Client, systemPrompt string) *Responder {
	return &Responder{LLM: client, SystemPrompt: systemPrompt}
}

func (r *Responder) Chat(ctx context.Context, message string) (string, error) {
	reply, err := r.LLM.Generate(ctx, r.SystemPrompt, message)
	if err != nil {
		return "", fmt.Errorf("llm chat: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
