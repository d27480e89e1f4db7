package ports

import (
	"context"

	"github.com/ark-network/raffle/internal/core/domain"
)

type WalletService interface {
	// Transfer sends the payout amount to its recipient and returns the
	// transfer id. Repeated calls for the same payout id must not move funds
	// twice.
	Transfer(ctx context.Context, payout domain.Payout) (string, error)
	GetBalance(ctx context.Context, account string) (uint64, error)
	Close()
}
