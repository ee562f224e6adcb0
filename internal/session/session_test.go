package session

import (
	"errors"
	"testing"
	"time"

	"github.com/kestrel-labs/docqa/internal/domain"
	"github.com/kestrel-labs/docqa/internal/index"
)

func builtIndex(t *testing.T) *index.Index {
	t.Helper()
	ix := index.New()
	err := ix.Build(
		[]domain.Chunk{{Source: "a.txt", Index: 0, Text: "hello"}},
		[][]float32{{1, 0}},
	)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return ix
}

func TestSession_IndexBeforeIngest(t *testing.T) {
	m := NewManager(time.Hour)
	s := m.Create()

	_, _, err := s.Index()
	if !errors.Is(err, domain.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
}

func TestSession_InstallAndRead(t *testing.T) {
	m := NewManager(time.Hour)
	s := m.Create()

	gen := s.BeginIngest()
	if err := s.Install(gen, builtIndex(t), "a.txt", domain.SourceFile, 1); err != nil {
		t.Fatalf("install: %v", err)
	}

	ix, source, err := s.Index()
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if source != "a.txt" {
		t.Errorf("expected source a.txt, got %q", source)
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 chunk, got %d", ix.Len())
	}
}

func TestSession_SupersededIngestCannotInstall(t *testing.T) {
	m := NewManager(time.Hour)
	s := m.Create()

	gen1 := s.BeginIngest()
	if err := s.Install(gen1, builtIndex(t), "old.txt", domain.SourceFile, 1); err != nil {
		t.Fatalf("install old: %v", err)
	}

	// A newer ingestion begins before the stale one finishes.
	staleGen := s.BeginIngest()
	freshGen := s.BeginIngest()

	err := s.Install(staleGen, builtIndex(t), "stale.txt", domain.SourceFile, 1)
	if !errors.Is(err, domain.ErrIngestSuperseded) {
		t.Fatalf("expected ErrIngestSuperseded, got %v", err)
	}

	// Prior index must be untouched by the failed install.
	_, source, err := s.Index()
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if source != "old.txt" {
		t.Errorf("expected prior source old.txt, got %q", source)
	}

	// The fresh ingestion still installs fine.
	if err := s.Install(freshGen, builtIndex(t), "fresh.txt", domain.SourceFile, 1); err != nil {
		t.Fatalf("install fresh: %v", err)
	}
}

func TestManager_GetUnknownSession(t *testing.T) {
	m := NewManager(time.Hour)

	_, err := m.Get("nope")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(time.Hour)

	s1 := m.GetOrCreate("")
	if s1 == nil || s1.ID == "" {
		t.Fatal("expected a fresh session")
	}

	s2 := m.GetOrCreate(s1.ID)
	if s2.ID != s1.ID {
		t.Errorf("expected same session back, got %q and %q", s1.ID, s2.ID)
	}

	s3 := m.GetOrCreate("expired-id")
	if s3.ID == s1.ID {
		t.Error("expected a new session for an unknown ID")
	}
}

func TestManager_SweepRemovesIdleSessions(t *testing.T) {
	m := NewManager(50 * time.Millisecond)
	s := m.Create()
	fresh := m.Create()

	// Age the first session past the TTL.
	s.mu.Lock()
	s.lastAccess = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	if removed := m.Sweep(); removed != 1 {
		t.Fatalf("expected 1 removed session, got %d", removed)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("expected swept session to be gone")
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Errorf("expected fresh session to survive sweep: %v", err)
	}
}
