package ports

import (
	"context"

	"github.com/ark-network/raffle/internal/core/domain"
)

// StateStore holds the single authoritative raffle record.
type StateStore interface {
	// Get returns nil if the raffle has not been created yet.
	Get(ctx context.Context) (*domain.Raffle, error)
	// Update runs fn over the stored raffle as one atomic unit. The result of
	// fn is persisted only if fn returns no error, otherwise the stored
	// raffle is left untouched. fn receives nil if the raffle does not exist.
	Update(
		ctx context.Context, fn func(r *domain.Raffle) (*domain.Raffle, error),
	) (*domain.Raffle, error)
	Close()
}
