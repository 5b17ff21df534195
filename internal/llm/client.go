package llm

import (
	"context"
)

// Client generates a reply to one user message under a system prompt.
type Client interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
