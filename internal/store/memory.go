package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// MemoryStore keeps sessions in process memory. It is used when Redis is
// not configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	locked   map[string]bool
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		locked:   make(map[string]bool),
	}
}

// CreateSession creates and stores a new empty session.
func (m *MemoryStore) CreateSession(ctx context.Context) (*models.Session, error) {
	s := models.NewSession(newSessionID())
	if err := m.SaveSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession returns a copy of the stored session, or nil if it does not exist.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession stores a snapshot of s.
func (m *MemoryStore) SaveSession(_ context.Context, s *models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.ID] = data
	m.mu.Unlock()
	return nil
}

// DeleteSession removes a session.
func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Lock marks a session as answering.
func (m *MemoryStore) Lock(_ context.Context, id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked[id] {
		return nil, ErrSessionBusy
	}
	m.locked[id] = true
	return func() {
		m.mu.Lock()
		delete(m.locked, id)
		m.mu.Unlock()
	}, nil
}
