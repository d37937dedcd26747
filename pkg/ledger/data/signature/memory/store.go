package memory

import (
	"context"
	"sync"
	"time"

	"github.com/code-payments/code-custody/pkg/ledger/data/signature"
)

type store struct {
	mu      sync.Mutex
	records map[string]*signature.Record
	last    uint64
}

// New returns a new in memory signature.Store
func New() signature.Store {
	return &store{
		records: make(map[string]*signature.Record),
	}
}

// Save implements signature.Store.Save
func (s *store) Save(_ context.Context, data *signature.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[data.Signature]; ok {
		return signature.ErrAlreadyExists
	}

	s.last++
	data.Id = s.last
	data.CreatedAt = time.Now()

	cloned := data.Clone()
	s.records[data.Signature] = &cloned

	return nil
}

// Get implements signature.Store.Get
func (s *store) Get(_ context.Context, sig string) (*signature.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[sig]
	if !ok {
		return nil, signature.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*signature.Record)
	s.last = 0
}
