package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/code-payments/code-custody/pkg/database/query"
	"github.com/code-payments/code-custody/pkg/ledger/data/account"
)

type store struct {
	mu      sync.Mutex
	records map[string]*account.Record
	last    uint64
}

// New returns a new in memory account.Store
func New() account.Store {
	return &store{
		records: make(map[string]*account.Record),
	}
}

// Get implements account.Store.Get
func (s *store) Get(_ context.Context, address string) (*account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[address]
	if !ok {
		return nil, account.ErrAccountNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

// GetAll implements account.Store.GetAll
func (s *store) GetAll(_ context.Context, addresses ...string) ([]*account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]*account.Record, 0, len(addresses))
	for _, address := range addresses {
		item, ok := s.records[address]
		if !ok {
			continue
		}

		cloned := item.Clone()
		res = append(res, &cloned)
	}
	return res, nil
}

// GetByOwner implements account.Store.GetByOwner
func (s *store) GetByOwner(_ context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []*account.Record
	for _, item := range s.records {
		if item.Owner != owner {
			continue
		}

		if len(cursor) > 0 {
			if direction == query.Ascending && item.Id <= cursor.ToUint64() {
				continue
			}
			if direction == query.Descending && item.Id >= cursor.ToUint64() {
				continue
			}
		}

		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if direction == query.Descending {
			return items[i].Id > items[j].Id
		}
		return items[i].Id < items[j].Id
	})

	if limit > 0 && uint64(len(items)) > limit {
		items = items[:limit]
	}

	if len(items) == 0 {
		return nil, account.ErrAccountNotFound
	}

	res := make([]*account.Record, len(items))
	for i, item := range items {
		cloned := item.Clone()
		res[i] = &cloned
	}
	return res, nil
}

// Count implements account.Store.Count
func (s *store) Count(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.records)), nil
}

// Commit implements account.Store.Commit
func (s *store) Commit(_ context.Context, updates []*account.Record, deletes []string) error {
	for _, update := range updates {
		if err := update.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, update := range updates {
		if item, ok := s.records[update.Address]; ok {
			update.Id = item.Id
		} else {
			s.last++
			update.Id = s.last
		}
		update.LastUpdatedAt = now

		cloned := update.Clone()
		s.records[update.Address] = &cloned
	}

	for _, address := range deletes {
		delete(s.records, address)
	}

	return nil
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*account.Record)
	s.last = 0
}
