package domain

import "context"

// Citation points at a retrieved chunk the model used as evidence.
type Citation struct {
	Source string
	Index  int // chunk ordinal within its source document
	Offset int
}

// Answer is the generated response to one question. Not persisted.
type Answer struct {
	Text      string
	Citations []Citation
	Grounded  bool // false when the insufficient-context policy fired
}

// GenerationResult carries the raw model reply and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator is the language model contract for answer synthesis.
type Generator interface {
	Generate(ctx context.Context, prompt string) (GenerationResult, error)
}
