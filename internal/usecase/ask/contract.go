package ask

import (
	"context"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// Embedder vectorizes the question for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Generator synthesizes an answer from the grounded prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (domain.GenerationResult, error)
}
