// Package index provides the per-session in-memory nearest-neighbor
// structure over chunk embeddings.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// Hit is one search result: a chunk and its similarity to the query.
type Hit struct {
	Chunk domain.Chunk
	Score float32
}

// Index maps embeddings to chunks for one ingestion session.
// Vectors are L2-normalized at build time so that inner product equals
// cosine similarity; the same normalization is applied to queries.
// Safe for concurrent search after Build.
type Index struct {
	mu      sync.RWMutex
	built   bool
	dim     int
	chunks  []domain.Chunk
	vectors [][]float32
}

// New creates an empty, unbuilt index.
func New() *Index {
	return &Index{}
}

// Build installs the chunk set and its embeddings. chunks[i] must
// correspond to vectors[i]; all vectors must share one dimension.
// Build replaces any previous contents.
func (ix *Index) Build(chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return fmt.Errorf("cannot build an index from zero chunks")
	}

	dim := len(vectors[0])
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dim %d, expected %d",
				domain.ErrVectorDimMismatch, i, len(v), dim)
		}
		normalized[i] = normalize(v)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = append([]domain.Chunk(nil), chunks...)
	ix.vectors = normalized
	ix.dim = dim
	ix.built = true
	return nil
}

// Search returns the k chunks nearest to the query vector, ranked by
// non-increasing similarity. Ties break by insertion order. k larger
// than the index size returns everything, ranked.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if !ix.built {
		return nil, domain.ErrIndexNotReady
	}
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has dim %d, index has %d",
			domain.ErrVectorDimMismatch, len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	q := normalize(query)
	hits := make([]Hit, len(ix.chunks))
	for i, v := range ix.vectors {
		hits[i] = Hit{Chunk: ix.chunks[i], Score: dot(q, v)}
	}

	// Stable sort keeps insertion order on equal scores, making
	// results deterministic.
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Len reports the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Ready reports whether Build has completed.
func (ix *Index) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.built
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return append([]float32(nil), v...)
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
