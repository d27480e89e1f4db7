package badgerstatestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	badgerdb "github.com/ark-network/raffle/internal/infrastructure/db/badger"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
	log "github.com/sirupsen/logrus"
)

const (
	stateStoreDir = "state"
	raffleKey     = "raffle"
	numOfRetries  = 5
)

type stateStore struct {
	store *badgerhold.Store
}

func NewStateStore(config ...interface{}) (ports.StateStore, error) {
	baseDir, logger, err := badgerdb.ParseConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, stateStoreDir)
	}
	store, err := badgerdb.CreateDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %s", err)
	}

	return &stateStore{store}, nil
}

func (s *stateStore) Get(_ context.Context) (*domain.Raffle, error) {
	var raffle domain.Raffle
	if err := s.store.Get(raffleKey, &raffle); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &raffle, nil
}

// Update runs fn within a badger transaction, which is committed only if fn
// succeeds. On conflict the whole transaction is retried.
func (s *stateStore) Update(
	ctx context.Context, fn func(r *domain.Raffle) (*domain.Raffle, error),
) (*domain.Raffle, error) {
	var updated *domain.Raffle
	var err error
	for attempt := 0; attempt < numOfRetries; attempt++ {
		err = s.store.Badger().Update(func(tx *badger.Txn) error {
			var current *domain.Raffle
			var raffle domain.Raffle
			if err := s.store.TxGet(tx, raffleKey, &raffle); err != nil {
				if !errors.Is(err, badgerhold.ErrNotFound) {
					return err
				}
			} else {
				current = &raffle
			}

			var err error
			updated, err = fn(current)
			if err != nil {
				return err
			}
			if updated == nil {
				return nil
			}
			return s.store.TxUpsert(tx, raffleKey, *updated)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		log.Debugf("raffle update conflict, attempt %d/%d", attempt+1, numOfRetries)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *stateStore) Close() {
	// nolint
	s.store.Close()
}
