package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"alarmd/internal/alarm"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

// fileStore keeps everything in memory and rewrites one JSON document on
// every change (write to <path>.tmp, then rename).
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	alarms  map[string]*alarm.Record
	pending map[uuid.UUID]trigger.Request
	closed  bool
}

type fileDoc struct {
	Version int               `json:"version"`
	Alarms  []*alarm.Record   `json:"alarms"`
	Pending []trigger.Request `json:"pending"`
}

const fileDocVersion = 1

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{
		log:     log,
		path:    path,
		alarms:  map[string]*alarm.Record{},
		pending: map[uuid.UUID]trigger.Request{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", path), logx.Int("alarms", len(s.alarms)), logx.Int("pending", len(s.pending)))
	return s, nil
}

func (s *fileStore) load() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("storage: decode %s: %w", s.path, err)
	}
	for _, r := range doc.Alarms {
		if r == nil || r.ID == "" {
			continue
		}
		s.alarms[r.ID] = r
	}
	for _, p := range doc.Pending {
		s.pending[p.ID] = p
	}
	return nil
}

// flushLocked writes the whole document atomically. Call with s.mu held.
func (s *fileStore) flushLocked() error {
	doc := fileDoc{Version: fileDocVersion, Alarms: make([]*alarm.Record, 0, len(s.alarms)), Pending: make([]trigger.Request, 0, len(s.pending))}
	for _, r := range s.alarms {
		doc.Alarms = append(doc.Alarms, r)
	}
	for _, p := range s.pending {
		doc.Pending = append(doc.Pending, p)
	}
	sortRecords(doc.Alarms)
	sortPending(doc.Pending)

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// mutate applies fn and persists; fn's changes are rolled back when the
// write fails.
func (s *fileStore) mutate(fn func() error, undo func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := fn(); err != nil {
		return err
	}
	if err := s.flushLocked(); err != nil {
		undo()
		s.log.Warn("file store write failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}

func (s *fileStore) Insert(_ context.Context, r *alarm.Record) error {
	return s.mutate(func() error {
		if _, ok := s.alarms[r.ID]; ok {
			return ErrExists
		}
		s.alarms[r.ID] = r.Clone()
		return nil
	}, func() { delete(s.alarms, r.ID) })
}

func (s *fileStore) Save(_ context.Context, r *alarm.Record) error {
	var prev *alarm.Record
	return s.mutate(func() error {
		old, ok := s.alarms[r.ID]
		if !ok {
			return ErrNotFound
		}
		prev = old
		s.alarms[r.ID] = r.Clone()
		return nil
	}, func() { s.alarms[r.ID] = prev })
}

func (s *fileStore) Delete(_ context.Context, id string) error {
	var prev *alarm.Record
	return s.mutate(func() error {
		old, ok := s.alarms[id]
		if !ok {
			return ErrNotFound
		}
		prev = old
		delete(s.alarms, id)
		return nil
	}, func() { s.alarms[id] = prev })
}

func (s *fileStore) Get(_ context.Context, id string) (*alarm.Record, error) {
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

func (s *fileStore) List(context.Context) ([]*alarm.Record, error) {
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

func (s *fileStore) PutPending(_ context.Context, r trigger.Request) error {
	prev, had := trigger.Request{}, false
	return s.mutate(func() error {
		prev, had = s.pending[r.ID]
		s.pending[r.ID] = r
		return nil
	}, func() {
		if had {
			s.pending[r.ID] = prev
		} else {
			delete(s.pending, r.ID)
		}
	})
}

func (s *fileStore) DeletePending(_ context.Context, id uuid.UUID) error {
	prev, had := trigger.Request{}, false
	return s.mutate(func() error {
		prev, had = s.pending[id]
		delete(s.pending, id)
		return nil
	}, func() {
		if had {
			s.pending[id] = prev
		}
	})
}

func (s *fileStore) ListPending(context.Context) ([]trigger.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]trigger.Request, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	sortPending(out)
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
