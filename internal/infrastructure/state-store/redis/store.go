package redisstatestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const raffleKey = "raffleStore:raffle"

type stateStore struct {
	rdb          *redis.Client
	numOfRetries int
}

func NewStateStore(rdb *redis.Client, numOfRetries int) ports.StateStore {
	if numOfRetries <= 0 {
		numOfRetries = 1
	}
	return &stateStore{rdb: rdb, numOfRetries: numOfRetries}
}

func (s *stateStore) Get(ctx context.Context) (*domain.Raffle, error) {
	data, err := s.rdb.Get(ctx, raffleKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decode(data)
}

// Update runs fn in an optimistic transaction over the raffle key. On
// conflict fn is run again on the fresh record, so anything it does outside
// the raffle must be safe to repeat.
func (s *stateStore) Update(
	ctx context.Context, fn func(r *domain.Raffle) (*domain.Raffle, error),
) (*domain.Raffle, error) {
	var updated *domain.Raffle
	var err error
	for attempt := 0; attempt < s.numOfRetries; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var current *domain.Raffle
			data, err := tx.Get(ctx, raffleKey).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				if current, err = decode(data); err != nil {
					return err
				}
			}

			updated, err = fn(current)
			if err != nil {
				return err
			}
			if updated == nil {
				return nil
			}

			val, err := json.Marshal(updated)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, raffleKey, val, 0)
				return nil
			})
			return err
		}, raffleKey)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		log.Debugf("raffle update conflict, attempt %d/%d", attempt+1, s.numOfRetries)
	}
	return nil, fmt.Errorf("failed to update raffle after %d attempts: %w", s.numOfRetries, err)
}

func (s *stateStore) Close() {
	if err := s.rdb.Close(); err != nil {
		log.WithError(err).Warn("failed to close redis connection")
	}
}

func decode(data []byte) (*domain.Raffle, error) {
	var raffle domain.Raffle
	if err := json.Unmarshal(data, &raffle); err != nil {
		return nil, fmt.Errorf("failed to decode raffle: %w", err)
	}
	return &raffle, nil
}
