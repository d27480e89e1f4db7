package application_test

import (
	"context"
	"math/big"
	"sync"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

type mockedRandomness struct {
	mock.Mock
	handler ports.FulfillmentHandler
}

func (m *mockedRandomness) Identity() string {
	args := m.Called()
	return args.String(0)
}

func (m *mockedRandomness) RequestRandomWords(
	ctx context.Context, req ports.RandomnessRequest,
) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockedRandomness) RegisterFulfillmentHandler(handler ports.FulfillmentHandler) {
	m.handler = handler
}

func (m *mockedRandomness) Resume(
	ctx context.Context, requestId string, req ports.RandomnessRequest,
) error {
	args := m.Called(ctx, requestId, req)
	return args.Error(0)
}

func (m *mockedRandomness) fulfill(
	caller, requestId string, words ...int64,
) error {
	bigWords := make([]*big.Int, 0, len(words))
	for _, w := range words {
		bigWords = append(bigWords, big.NewInt(w))
	}
	return m.handler(context.Background(), caller, requestId, bigWords)
}

func (m *mockedRandomness) Close() {}

type mockedWallet struct {
	mock.Mock
}

func (m *mockedWallet) Transfer(ctx context.Context, payout domain.Payout) (string, error) {
	args := m.Called(ctx, payout)
	return args.String(0), args.Error(1)
}

func (m *mockedWallet) GetBalance(ctx context.Context, account string) (uint64, error) {
	args := m.Called(ctx, account)

	var res uint64
	if a := args.Get(0); a != nil {
		res = a.(uint64)
	}
	return res, args.Error(1)
}

func (m *mockedWallet) Close() {}

type mockedScheduler struct {
	lock sync.Mutex
	now  int64
	jobs []func()
}

func (m *mockedScheduler) Start() {}

func (m *mockedScheduler) Stop() {}

func (m *mockedScheduler) Now() int64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.now
}

func (m *mockedScheduler) advance(seconds int64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.now += seconds
}

func (m *mockedScheduler) ScheduleTask(_ int64, _ bool, task func()) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.jobs = append(m.jobs, task)
	return nil
}

func (m *mockedScheduler) ScheduleTaskOnce(_ int64, task func()) error {
	return m.ScheduleTask(0, false, task)
}

func (m *mockedScheduler) runJobs() {
	m.lock.Lock()
	jobs := append([]func(){}, m.jobs...)
	m.lock.Unlock()
	for _, job := range jobs {
		job()
	}
}

// conflictingStore runs every update once more on a fresh record before
// committing, like an optimistic store does after a write conflict.
type conflictingStore struct {
	ports.StateStore
}

func (s conflictingStore) Update(
	ctx context.Context, fn func(r *domain.Raffle) (*domain.Raffle, error),
) (*domain.Raffle, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := fn(current); err != nil {
		return nil, err
	}
	return s.StateStore.Update(ctx, fn)
}

type mockedRepoManager struct {
	events *mockedEventRepository
	rounds *mockedRoundRepository
}

func newMockedRepoManager() *mockedRepoManager {
	return &mockedRepoManager{
		events: &mockedEventRepository{handlers: make(map[string][]func([]domain.Event))},
		rounds: &mockedRoundRepository{rounds: make(map[uint64]domain.RoundRecord)},
	}
}

func (m *mockedRepoManager) Events() domain.EventRepository { return m.events }

func (m *mockedRepoManager) Rounds() domain.RoundRepository { return m.rounds }

func (m *mockedRepoManager) Close() {}

// mockedEventRepository dispatches synchronously and records every saved
// batch.
type mockedEventRepository struct {
	lock     sync.Mutex
	handlers map[string][]func([]domain.Event)
	saved    []domain.Event
}

func (m *mockedEventRepository) Save(
	_ context.Context, topic, _ string, events []domain.Event,
) error {
	m.lock.Lock()
	m.saved = append(m.saved, events...)
	handlers := append([]func([]domain.Event){}, m.handlers[topic]...)
	m.lock.Unlock()

	for _, handler := range handlers {
		handler(events)
	}
	return nil
}

func (m *mockedEventRepository) RegisterEventsHandler(
	topic string, handler func(events []domain.Event),
) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handlers[topic] = append(m.handlers[topic], handler)
}

func (m *mockedEventRepository) ClearRegisteredHandlers(topics ...string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, topic := range topics {
		delete(m.handlers, topic)
	}
}

func (m *mockedEventRepository) Close() {}

func (m *mockedEventRepository) savedOfType(eventType domain.EventType) []domain.Event {
	m.lock.Lock()
	defer m.lock.Unlock()

	events := make([]domain.Event, 0)
	for _, e := range m.saved {
		if e.GetType() == eventType {
			events = append(events, e)
		}
	}
	return events
}

type mockedRoundRepository struct {
	lock   sync.Mutex
	rounds map[uint64]domain.RoundRecord
}

func (m *mockedRoundRepository) AddOrUpdateRound(
	_ context.Context, round domain.RoundRecord,
) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.rounds[round.Id] = round
	return nil
}

func (m *mockedRoundRepository) GetRoundWithId(
	_ context.Context, id uint64,
) (*domain.RoundRecord, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	round, ok := m.rounds[id]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	return &round, nil
}

func (m *mockedRoundRepository) GetRoundsIds(
	_ context.Context, _, _ int64,
) ([]uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	ids := make([]uint64, 0, len(m.rounds))
	for id := range m.rounds {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockedRoundRepository) Close() {}
