package localprovider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	maxNumWords   = 500
	maxRetries    = 3
	wordBitLength = 256
)

var maxWord = new(big.Int).Lsh(big.NewInt(1), wordBitLength)

type provider struct {
	identity  string
	blockTime int64
	scheduler ports.SchedulerService

	lock    sync.Mutex
	lastId  uint64
	handler ports.FulfillmentHandler
	closed  bool
}

// NewProvider returns a randomness provider that answers every request
// with uniformly random 256-bit words, once the requested number of
// confirmations (blockTime seconds each) has elapsed.
func NewProvider(
	identity string, blockTime int64, scheduler ports.SchedulerService,
) (ports.RandomnessProvider, error) {
	if len(identity) <= 0 {
		return nil, fmt.Errorf("missing provider identity")
	}
	if blockTime < 0 {
		return nil, fmt.Errorf("block time must not be negative")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("missing scheduler")
	}
	return &provider{
		identity:  identity,
		blockTime: blockTime,
		scheduler: scheduler,
	}, nil
}

func (p *provider) Identity() string {
	return p.identity
}

func (p *provider) RegisterFulfillmentHandler(handler ports.FulfillmentHandler) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.handler = handler
}

func (p *provider) RequestRandomWords(
	_ context.Context, req ports.RandomnessRequest,
) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.ready(); err != nil {
		return "", err
	}

	requestId := strconv.FormatUint(p.lastId+1, 10)
	if err := p.schedule(requestId, req); err != nil {
		return "", err
	}
	p.lastId++
	return requestId, nil
}

// Resume schedules a fresh delivery for a request restored from the state
// store. The id counter moves past the restored id so it is never reused.
func (p *provider) Resume(
	_ context.Context, requestId string, req ports.RandomnessRequest,
) error {
	id, err := strconv.ParseUint(requestId, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request id %s", requestId)
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.ready(); err != nil {
		return err
	}
	if err := p.schedule(requestId, req); err != nil {
		return err
	}
	if id > p.lastId {
		p.lastId = id
	}
	return nil
}

func (p *provider) Close() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.closed = true
}

func (p *provider) ready() error {
	if p.closed {
		return fmt.Errorf("provider is closed")
	}
	if p.handler == nil {
		return fmt.Errorf("no fulfillment handler registered")
	}
	return nil
}

func (p *provider) schedule(requestId string, req ports.RandomnessRequest) error {
	words := make([]*big.Int, 0, req.NumWords)
	for i := uint32(0); i < req.NumWords; i++ {
		word, err := rand.Int(rand.Reader, maxWord)
		if err != nil {
			return fmt.Errorf("failed to generate random word: %s", err)
		}
		words = append(words, word)
	}

	at := p.scheduler.Now() + int64(req.Confirmations)*p.blockTime
	if err := p.scheduler.ScheduleTaskOnce(at, func() {
		p.deliver(requestId, words, 0)
	}); err != nil {
		return fmt.Errorf("failed to schedule fulfillment: %s", err)
	}

	log.Debugf(
		"randomness request %s for round %d will be fulfilled at %d",
		requestId, req.RoundId, at,
	)
	return nil
}

func (p *provider) deliver(requestId string, words []*big.Int, attempt int) {
	p.lock.Lock()
	handler := p.handler
	closed := p.closed
	p.lock.Unlock()

	if closed || handler == nil {
		return
	}

	err := handler(context.Background(), p.identity, requestId, words)
	if err == nil {
		log.Debugf("fulfilled randomness request %s", requestId)
		return
	}

	// Stray or replayed requests are never retried.
	if errors.Is(err, domain.ErrUnknownRequest) || errors.Is(err, domain.ErrCallerNotTrusted) {
		log.WithError(err).Warnf("randomness request %s rejected", requestId)
		return
	}
	if attempt >= maxRetries {
		log.WithError(err).Errorf(
			"giving up fulfilling randomness request %s after %d retries", requestId, attempt,
		)
		return
	}

	log.WithError(err).Warnf(
		"failed to fulfill randomness request %s, retrying (%d/%d)",
		requestId, attempt+1, maxRetries,
	)
	at := p.scheduler.Now() + p.blockTime
	if err := p.scheduler.ScheduleTaskOnce(at, func() {
		p.deliver(requestId, words, attempt+1)
	}); err != nil {
		log.WithError(err).Warnf("failed to reschedule fulfillment %s", requestId)
	}
}

func validateRequest(req ports.RandomnessRequest) error {
	if req.NumWords <= 0 || req.NumWords > maxNumWords {
		return fmt.Errorf(
			"invalid number of words %d, must be in range [1, %d]", req.NumWords, maxNumWords,
		)
	}
	return nil
}
