// Package session holds per-user pipeline state: the current index and
// its source. Sessions are memory-only and expire after inactivity.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-labs/docqa/internal/domain"
	"github.com/kestrel-labs/docqa/internal/index"
)

// Session owns one user's index for its lifetime. A new ingestion
// bumps the generation; a stale ingestion cannot install its result.
type Session struct {
	ID string

	mu         sync.Mutex
	idx        *index.Index
	source     string
	kind       domain.SourceKind
	chunkCount int
	generation uint64
	lastAccess time.Time
}

// BeginIngest marks the start of an ingestion and returns its
// generation token. Any ingestion started earlier is superseded.
func (s *Session) BeginIngest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.lastAccess = time.Now()
	return s.generation
}

// Install atomically replaces the session index with a freshly built
// one. Fails with ErrIngestSuperseded when a newer ingestion has begun
// since gen was issued; the prior index stays untouched in that case.
func (s *Session) Install(gen uint64, idx *index.Index, source string, kind domain.SourceKind, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return fmt.Errorf("%w: generation %d, current %d", domain.ErrIngestSuperseded, gen, s.generation)
	}
	s.idx = idx
	s.source = source
	s.kind = kind
	s.chunkCount = chunkCount
	s.lastAccess = time.Now()
	return nil
}

// Index returns the current index and its source, or ErrIndexNotReady
// when nothing has been ingested yet.
func (s *Session) Index() (*index.Index, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()
	if s.idx == nil {
		return nil, "", domain.ErrIndexNotReady
	}
	return s.idx, s.source, nil
}

// Status reports the ingested source and chunk count for display.
func (s *Session) Status() (source string, kind domain.SourceKind, chunks int, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source, s.kind, s.chunkCount, s.idx != nil
}

// Manager tracks live sessions by ID and expires idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewManager creates a session manager with the given idle TTL.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create registers a new session with a random ID.
func (m *Manager) Create() *Session {
	s := &Session{
		ID:         uuid.New().String(),
		lastAccess: time.Now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// GetOrCreate returns the session for id, or a fresh one when id is
// empty or unknown (cookie expired, process restarted).
func (m *Manager) GetOrCreate(id string) *Session {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s
		}
	}
	return m.Create()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle longer than the TTL and returns how many
// were dropped.
func (m *Manager) Sweep() int {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastAccess.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until stop is closed.
func (m *Manager) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}
