package devstore

import (
	"context"
	"encoding/json"
	"sync"
)

type table struct {
	order []string
	docs  map[string]json.RawMessage
}

// MemoryStore is the default RecordStore. Contents are lost on exit.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[Collection]*table
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{tables: make(map[Collection]*table, len(Collections))}
	for _, c := range Collections {
		s.tables[c] = &table{docs: make(map[string]json.RawMessage)}
	}
	return s
}

func (s *MemoryStore) table(c Collection) *table {
	t, ok := s.tables[c]
	if !ok {
		t = &table{docs: make(map[string]json.RawMessage)}
		s.tables[c] = t
	}
	return t
}

func (s *MemoryStore) List(_ context.Context, c Collection) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[c]
	if !ok {
		return nil, nil
	}
	out := make([]json.RawMessage, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, clone(t.docs[id]))
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, c Collection, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[c]; ok {
		if doc, ok := t.docs[id]; ok {
			return clone(doc), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Insert(_ context.Context, c Collection, id string, doc json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(c)
	if _, ok := t.docs[id]; ok {
		return ErrDuplicate
	}
	t.docs[id] = clone(doc)
	t.order = append(t.order, id)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, c Collection, id string, fn func(json.RawMessage) (json.RawMessage, error)) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(c)
	old, ok := t.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(clone(old))
	if err != nil {
		return nil, err
	}
	t.docs[id] = clone(next)
	return clone(next), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func clone(doc json.RawMessage) json.RawMessage {
	return append(json.RawMessage(nil), doc...)
}
