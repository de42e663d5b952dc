package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"alarmd/internal/alarm"
	"alarmd/internal/trigger"
)

type memoryStore struct {
	mu      sync.Mutex
	alarms  map[string]*alarm.Record
	pending map[uuid.UUID]trigger.Request
	closed  bool
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{
		alarms:  map[string]*alarm.Record{},
		pending: map[uuid.UUID]trigger.Request{},
	}
}

func (s *memoryStore) Insert(_ context.Context, r *alarm.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.alarms[r.ID]; ok {
		return ErrExists
	}
	s.alarms[r.ID] = r.Clone()
	return nil
}

func (s *memoryStore) Save(_ context.Context, r *alarm.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.alarms[r.ID]; !ok {
		return ErrNotFound
	}
	s.alarms[r.ID] = r.Clone()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.alarms[id]; !ok {
		return ErrNotFound
	}
	delete(s.alarms, id)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*alarm.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	r, ok := s.alarms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *memoryStore) List(context.Context) ([]*alarm.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*alarm.Record, 0, len(s.alarms))
	for _, r := range s.alarms {
		out = append(out, r.Clone())
	}
	sortRecords(out)
	return out, nil
}

func (s *memoryStore) PutPending(_ context.Context, r trigger.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending[r.ID] = r
	return nil
}

func (s *memoryStore) DeletePending(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.pending, id)
	return nil
}

func (s *memoryStore) ListPending(context.Context) ([]trigger.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]trigger.Request, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, r)
	}
	sortPending(out)
	return out, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
