package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const roundStoreDir = "rounds"

var (
	errInvalidConfig  = errors.New("invalid config")
	errInvalidBaseDir = errors.New("invalid base directory")
	errInvalidLogger  = errors.New("invalid logger")
)

type roundRepository struct {
	store *badgerhold.Store
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	baseDir, logger, err := ParseConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, roundStoreDir)
	}
	store, err := CreateDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open round store: %s", err)
	}

	return &roundRepository{store}, nil
}

func (r *roundRepository) AddOrUpdateRound(
	ctx context.Context, round domain.RoundRecord,
) error {
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		return r.store.TxUpsert(tx, round.Id, round)
	}
	return r.store.Upsert(round.Id, round)
}

func (r *roundRepository) GetRoundWithId(
	ctx context.Context, id uint64,
) (*domain.RoundRecord, error) {
	query := badgerhold.Where("Id").Eq(id)
	rounds, err := r.findRound(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rounds) <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrRoundNotFound, id)
	}
	round := &rounds[0]
	return round, nil
}

func (r *roundRepository) GetRoundsIds(
	ctx context.Context, startedAfter, startedBefore int64,
) ([]uint64, error) {
	query := badgerhold.Where("Id").Gt(uint64(0))

	if startedAfter > 0 {
		query = query.And("StartingTimestamp").Gt(startedAfter)
	}

	if startedBefore > 0 {
		query = query.And("StartingTimestamp").Lt(startedBefore)
	}

	rounds, err := r.findRound(ctx, query)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(rounds))
	for _, round := range rounds {
		ids = append(ids, round.Id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func (r *roundRepository) Close() {
	// nolint
	r.store.Close()
}

func (r *roundRepository) findRound(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.RoundRecord, error) {
	var rounds []domain.RoundRecord
	var err error

	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(tx, &rounds, query)
	} else {
		err = r.store.Find(&rounds, query)
	}

	return rounds, err
}
