package ports

import (
	"context"
	"math/big"
)

type RandomnessRequest struct {
	RoundId       uint64
	GasLimit      uint32
	Confirmations uint16
	NumWords      uint32
}

// FulfillmentHandler is invoked by a provider to deliver the random words of
// a previous request. caller is the identity of the delivering party.
type FulfillmentHandler func(
	ctx context.Context, caller, requestId string, words []*big.Int,
) error

type RandomnessProvider interface {
	Identity() string
	RequestRandomWords(ctx context.Context, req RandomnessRequest) (string, error)
	RegisterFulfillmentHandler(handler FulfillmentHandler)
	// Resume re-arms the delivery of a request issued before a restart.
	// Providers whose fulfillments come from outside the process have nothing
	// to re-arm.
	Resume(ctx context.Context, requestId string, req RandomnessRequest) error
	Close()
}
