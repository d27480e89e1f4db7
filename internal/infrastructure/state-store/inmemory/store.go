package inmemorystatestore

import (
	"context"
	"sync"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
)

type stateStore struct {
	lock   sync.RWMutex
	raffle *domain.Raffle
}

func NewStateStore() ports.StateStore {
	return &stateStore{}
}

func (s *stateStore) Get(_ context.Context) (*domain.Raffle, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.raffle == nil {
		return nil, nil
	}
	return s.raffle.Clone(), nil
}

func (s *stateStore) Update(
	_ context.Context, fn func(r *domain.Raffle) (*domain.Raffle, error),
) (*domain.Raffle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var current *domain.Raffle
	if s.raffle != nil {
		current = s.raffle.Clone()
	}

	updated, err := fn(current)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, nil
	}

	s.raffle = updated.Clone()
	return updated, nil
}

func (s *stateStore) Close() {}
