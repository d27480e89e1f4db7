package domain

import "context"

type RoundRepository interface {
	AddOrUpdateRound(ctx context.Context, round RoundRecord) error
	GetRoundWithId(ctx context.Context, id uint64) (*RoundRecord, error)
	// GetRoundsIds returns the ids of the rounds started within the given
	// time range. A zero bound is ignored.
	GetRoundsIds(ctx context.Context, startedAfter, startedBefore int64) ([]uint64, error)
	Close()
}
