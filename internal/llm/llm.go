package llm

import "context"

// LLM is the completion-model contract. The model invocation is a black box
// to the rest of the system: prompt in, text out.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
