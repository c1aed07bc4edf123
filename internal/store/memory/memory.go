// Package memory is an in-process RemoteStore used for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	tips     map[string]*domain.Tip
	profiles map[string]*domain.Creator
}

func New() *Store {
	return &Store{
		tips:     make(map[string]*domain.Tip),
		profiles: make(map[string]*domain.Creator),
	}
}

var _ store.RemoteStore = (*Store)(nil)

func (s *Store) CreateTip(_ context.Context, tip *domain.Tip) error {
	if tip == nil || tip.ID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tips[tip.ID]; exists {
		return store.ErrDuplicateKey
	}
	tipCopy := *tip
	s.tips[tip.ID] = &tipCopy
	return nil
}

func (s *Store) UpdateTipStatus(_ context.Context, id string, status domain.TipStatus) error {
	if !status.Valid() {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tip, exists := s.tips[id]
	if !exists {
		return store.ErrNotFound
	}
	if tip.Status != domain.TipPending {
		return store.ErrStatusConflict
	}
	tip.Status = status
	return nil
}

func (s *Store) ListTips(_ context.Context, q store.TipQuery) ([]*domain.Tip, error) {
	sender := domain.NormalizeAddress(q.Sender)

	s.mu.RLock()
	result := make([]*domain.Tip, 0, len(s.tips))
	for _, t := range s.tips {
		if sender != "" && t.Sender != sender {
			continue
		}
		tipCopy := *t
		result = append(result, &tipCopy)
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp > result[j].Timestamp
	})
	if limit := q.EffectiveLimit(); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetProfile(_ context.Context, address string) (*domain.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.profiles[domain.NormalizeAddress(address)]
	if !exists {
		return nil, store.ErrNotFound
	}
	creatorCopy := *c
	return &creatorCopy, nil
}

func (s *Store) UpsertProfile(_ context.Context, c *domain.Creator) error {
	if c == nil || c.Address == "" {
		return store.ErrInvalidInput
	}
	key := domain.NormalizeAddress(c.Address)

	s.mu.Lock()
	defer s.mu.Unlock()

	creatorCopy := *c
	creatorCopy.Address = key
	creatorCopy.ID = key
	s.profiles[key] = &creatorCopy
	return nil
}

func (s *Store) ListProfiles(_ context.Context) ([]*domain.Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Creator, 0, len(s.profiles))
	for _, c := range s.profiles {
		creatorCopy := *c
		result = append(result, &creatorCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result, nil
}

func (s *Store) IncrementTipCount(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.profiles[domain.NormalizeAddress(address)]
	if !exists {
		return store.ErrNotFound
	}
	c.TipCount++
	return nil
}
