package application

import (
	"context"
	"math/big"

	"github.com/ark-network/raffle/internal/core/domain"
)

type Service interface {
	Start() error
	Stop()
	Enter(ctx context.Context, player string, amount uint64) error
	CheckUpkeep(ctx context.Context, data []byte) (bool, []byte, error)
	PerformUpkeep(ctx context.Context, data []byte) (string, error)
	FulfillRandomWords(
		ctx context.Context, caller, requestId string, words []*big.Int,
	) error
	GetInfo(ctx context.Context) (*RaffleInfo, error)
	GetPlayer(ctx context.Context, index int) (string, error)
	GetRound(ctx context.Context, id uint64) (*domain.RoundRecord, error)
	ListRounds(ctx context.Context, startedAfter, startedBefore int64) ([]uint64, error)
	GetBalance(ctx context.Context, account string) (uint64, error)
	GetEventsChannel(ctx context.Context) <-chan []domain.Event
}

type Config struct {
	EntryFee         uint64
	Interval         int64
	CallbackGasLimit uint32
	Confirmations    uint16
	NumWords         uint32
	TrustedFulfiller string
	// UpkeepInterval is the period in seconds of the built-in automation
	// job. Zero disables it.
	UpkeepInterval int64
}

type RaffleInfo struct {
	State              string
	EntryFee           uint64
	Interval           int64
	RecentWinner       string
	NumOfPlayers       int
	LatestTimestamp    int64
	RoundId            uint64
	Balance            uint64
	PendingRequest     *domain.PendingRequest
	RandomnessProvider string
	CallbackGasLimit   uint32
	Confirmations      uint16
}
