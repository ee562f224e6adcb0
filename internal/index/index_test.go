package index

import (
	"errors"
	"testing"

	"github.com/kestrel-labs/docqa/internal/domain"
)

func chunk(i int, text string) domain.Chunk {
	return domain.Chunk{Source: "doc.txt", Index: i, Text: text}
}

func TestSearch_BeforeBuild(t *testing.T) {
	ix := New()

	_, err := ix.Search([]float32{1, 0}, 3)
	if !errors.Is(err, domain.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
}

func TestBuild_CountMismatch(t *testing.T) {
	ix := New()
	err := ix.Build([]domain.Chunk{chunk(0, "a")}, [][]float32{{1, 0}, {0, 1}})
	if err == nil {
		t.Fatal("expected error for chunk/vector count mismatch")
	}
}

func TestBuild_DimMismatch(t *testing.T) {
	ix := New()
	err := ix.Build(
		[]domain.Chunk{chunk(0, "a"), chunk(1, "b")},
		[][]float32{{1, 0}, {0, 1, 0}},
	)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestSearch_RanksNearestFirst(t *testing.T) {
	ix := New()
	err := ix.Build(
		[]domain.Chunk{chunk(0, "east"), chunk(1, "north"), chunk(2, "northeast")},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Text != "east" {
		t.Errorf("expected nearest chunk to be east, got %q", hits[0].Chunk.Text)
	}
	if hits[1].Chunk.Text != "northeast" {
		t.Errorf("expected second chunk to be northeast, got %q", hits[1].Chunk.Text)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores not non-increasing: %f < %f", hits[0].Score, hits[1].Score)
	}
}

func TestSearch_KLargerThanIndex(t *testing.T) {
	ix := New()
	if err := ix.Build(
		[]domain.Chunk{chunk(0, "a"), chunk(1, "b")},
		[][]float32{{1, 0}, {0, 1}},
	); err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := ix.Search([]float32{1, 1}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected all 2 chunks, got %d", len(hits))
	}
}

func TestSearch_TieBreaksByInsertionOrder(t *testing.T) {
	// Two identical vectors: scores tie exactly.
	ix := New()
	if err := ix.Build(
		[]domain.Chunk{chunk(0, "first"), chunk(1, "second"), chunk(2, "third")},
		[][]float32{{0, 1}, {1, 0}, {1, 0}},
	); err != nil {
		t.Fatalf("build: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Chunk.Text != "second" || hits[1].Chunk.Text != "third" {
		t.Errorf("tie not broken by insertion order: got %q then %q",
			hits[0].Chunk.Text, hits[1].Chunk.Text)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	ix := New()
	if err := ix.Build(
		[]domain.Chunk{chunk(0, "a"), chunk(1, "b"), chunk(2, "c"), chunk(3, "d")},
		[][]float32{{1, 0}, {0.9, 0.1}, {0.9, 0.1}, {0, 1}},
	); err != nil {
		t.Fatalf("build: %v", err)
	}

	first, err := ix.Search([]float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for n := 0; n < 10; n++ {
		again, err := ix.Search([]float32{1, 0}, 4)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		for i := range first {
			if first[i].Chunk.Text != again[i].Chunk.Text {
				t.Fatalf("ranking not deterministic at position %d", i)
			}
		}
	}
}

func TestSearch_QueryDimMismatch(t *testing.T) {
	ix := New()
	if err := ix.Build([]domain.Chunk{chunk(0, "a")}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("build: %v", err)
	}

	_, err := ix.Search([]float32{1, 0, 0}, 1)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestBuild_ReplacesPreviousContents(t *testing.T) {
	ix := New()
	if err := ix.Build([]domain.Chunk{chunk(0, "old")}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := ix.Build([]domain.Chunk{chunk(0, "new")}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	hits, err := ix.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Chunk.Text != "new" {
		t.Fatalf("expected only the new chunk, got %+v", hits)
	}
}
