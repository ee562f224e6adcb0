package ingest

import (
	"context"

	"github.com/kestrel-labs/docqa/internal/domain"
	"github.com/kestrel-labs/docqa/internal/loader"
)

// Loader extracts document text from an uploaded file or URL.
type Loader interface {
	Load(ctx context.Context, src loader.Source) (domain.Document, error)
}

// Splitter divides document text into overlapping chunks.
type Splitter interface {
	Split(doc domain.Document) []domain.Chunk
}

// Embedder vectorizes chunk texts, preserving input order.
type Embedder interface {
	domain.Embedder
}
