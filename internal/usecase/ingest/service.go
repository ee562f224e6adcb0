// Package ingest orchestrates the build phase of the pipeline:
// load, split, embed, index, install.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrel-labs/docqa/internal/domain"
	"github.com/kestrel-labs/docqa/internal/index"
	"github.com/kestrel-labs/docqa/internal/loader"
	logpkg "github.com/kestrel-labs/docqa/internal/logger"
	"github.com/kestrel-labs/docqa/internal/metrics"
	"github.com/kestrel-labs/docqa/internal/session"
)

// Result summarizes a completed ingestion.
type Result struct {
	Source string
	Kind   domain.SourceKind
	Chunks int
	Tokens int
}

// Service runs the ingestion pipeline for one source at a time.
// Pipeline log lines go through the request-scoped logger in the
// context, so they carry the request_id.
type Service struct {
	loader    Loader
	splitter  Splitter
	embedder  Embedder
	batchSize int
}

// New creates an ingestion service.
func New(l Loader, sp Splitter, e Embedder, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Service{
		loader:    l,
		splitter:  sp,
		embedder:  e,
		batchSize: batchSize,
	}
}

// Ingest replaces the session's index with one built from the source.
// Any failure leaves the prior index untouched. If a newer ingestion
// begins for the same session while this one is in flight, the stale
// result is discarded with ErrIngestSuperseded.
func (s *Service) Ingest(ctx context.Context, sess *session.Session, src loader.Source) (Result, error) {
	gen := sess.BeginIngest()
	kind := string(src.Kind())

	doc, err := s.loader.Load(ctx, src)
	if err != nil {
		metrics.IngestedDocumentsTotal.WithLabelValues(kind, "error").Inc()
		return Result{}, fmt.Errorf("load source: %w", err)
	}

	chunks := s.splitter.Split(doc)
	if len(chunks) == 0 {
		metrics.IngestedDocumentsTotal.WithLabelValues(kind, "error").Inc()
		return Result{}, fmt.Errorf("split %s: %w", doc.Source, domain.ErrEmptyDocument)
	}

	vectors, tokens, err := s.embedChunks(ctx, chunks)
	if err != nil {
		metrics.IngestedDocumentsTotal.WithLabelValues(kind, "error").Inc()
		return Result{}, err
	}

	ix := index.New()
	if err := ix.Build(chunks, vectors); err != nil {
		metrics.IngestedDocumentsTotal.WithLabelValues(kind, "error").Inc()
		return Result{}, fmt.Errorf("build index: %w", err)
	}

	if err := sess.Install(gen, ix, doc.Source, doc.Kind, len(chunks)); err != nil {
		return Result{}, err
	}

	metrics.IngestedDocumentsTotal.WithLabelValues(kind, "success").Inc()
	metrics.IngestedChunksTotal.Add(float64(len(chunks)))

	logpkg.FromContext(ctx).Info("Source ingested",
		zap.String("session", sess.ID),
		zap.String("source", doc.Source),
		zap.String("kind", kind),
		zap.Int("chunks", len(chunks)),
		zap.Int("tokens", tokens),
	)

	return Result{
		Source: doc.Source,
		Kind:   doc.Kind,
		Chunks: len(chunks),
		Tokens: tokens,
	}, nil
}

// embedChunks vectorizes chunk texts in sub-batches, keeping vector[i]
// aligned with chunks[i].
func (s *Service) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors := make([][]float32, 0, len(texts))
	tokens := 0

	for start := 0; start < len(texts); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("ingestion aborted: %w", err)
		}

		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		var (
			res domain.BatchEmbeddingResult
			err error
		)
		if be, ok := s.embedder.(domain.BatchEmbedder); ok {
			res, err = be.BatchEmbed(ctx, texts[start:end])
		} else {
			res, err = domain.BatchFallback(ctx, s.embedder, texts[start:end])
		}
		if err != nil {
			return nil, 0, fmt.Errorf("embed chunks [%d:%d]: %w", start, end, err)
		}
		if len(res.Embeddings) != end-start {
			return nil, 0, fmt.Errorf("embedder returned %d vectors for %d chunks: %w",
				len(res.Embeddings), end-start, domain.ErrEmbeddingProvider)
		}

		vectors = append(vectors, res.Embeddings...)
		tokens += res.TotalTokens
	}

	return vectors, tokens, nil
}
