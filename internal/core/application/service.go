package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const eventsChannelSize = 64

var ErrRaffleNotInitialized = errors.New("raffle not initialized")

type service struct {
	cfg Config

	store       ports.StateStore
	repoManager ports.RepoManager
	randomness  ports.RandomnessProvider
	wallet      ports.WalletService
	scheduler   ports.SchedulerService

	// Serializes the mutating operations.
	lock     sync.Mutex
	eventsCh chan []domain.Event
}

func NewService(
	cfg Config,
	store ports.StateStore, repoManager ports.RepoManager,
	randomness ports.RandomnessProvider, walletSvc ports.WalletService,
	schedulerSvc ports.SchedulerService,
) (Service, error) {
	if cfg.EntryFee <= 0 {
		return nil, fmt.Errorf("entry fee must be greater than 0")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be greater than 0")
	}
	if cfg.NumWords <= 0 {
		cfg.NumWords = 1
	}
	if len(cfg.TrustedFulfiller) <= 0 {
		cfg.TrustedFulfiller = randomness.Identity()
	}

	svc := &service{
		cfg:         cfg,
		store:       store,
		repoManager: repoManager,
		randomness:  randomness,
		wallet:      walletSvc,
		scheduler:   schedulerSvc,
		eventsCh:    make(chan []domain.Event, eventsChannelSize),
	}

	repoManager.Events().RegisterEventsHandler(
		domain.RaffleTopic, func(events []domain.Event) {
			svc.propagateEvents(events)
		},
	)

	return svc, nil
}

func (s *service) Start() error {
	log.Debug("starting app service")

	ctx := context.Background()
	raffle, err := s.init(ctx)
	if err != nil {
		return err
	}

	s.randomness.RegisterFulfillmentHandler(s.FulfillRandomWords)

	s.scheduler.Start()
	if req, ok := raffle.PendingRequest(); ok {
		if err := s.randomness.Resume(ctx, req.RequestId, ports.RandomnessRequest{
			RoundId:       req.RoundId,
			GasLimit:      s.cfg.CallbackGasLimit,
			Confirmations: s.cfg.Confirmations,
			NumWords:      s.cfg.NumWords,
		}); err != nil {
			return fmt.Errorf(
				"failed to resume randomness request %s: %w", req.RequestId, err,
			)
		}
		log.Infof("resumed randomness request %s for round %d", req.RequestId, req.RoundId)
	}
	if s.cfg.UpkeepInterval > 0 {
		immediate := false
		if err := s.scheduler.ScheduleTask(
			s.cfg.UpkeepInterval, immediate, s.upkeep,
		); err != nil {
			return fmt.Errorf("failed to schedule upkeep job: %w", err)
		}
	}
	return nil
}

func (s *service) Stop() {
	s.scheduler.Stop()
	log.Debug("stopped scheduler")
	s.randomness.Close()
	log.Debug("closed connection to randomness provider")
	s.wallet.Close()
	log.Debug("closed connection to wallet")
	s.repoManager.Close()
	log.Debug("closed connection to db")
	s.store.Close()
	log.Debug("closed state store")
	close(s.eventsCh)
}

func (s *service) Enter(ctx context.Context, player string, amount uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.scheduler.Now()
	raffle, err := s.store.Update(
		ctx, func(r *domain.Raffle) (*domain.Raffle, error) {
			if r == nil {
				return nil, ErrRaffleNotInitialized
			}
			if _, err := r.Enter(player, amount, now); err != nil {
				return nil, err
			}
			return r, nil
		},
	)
	if err != nil {
		return err
	}

	log.Debugf(
		"player %s entered round %d with %d", player, raffle.Round.Id, amount,
	)
	s.publishEvents(ctx, raffle)
	return nil
}

func (s *service) CheckUpkeep(ctx context.Context, _ []byte) (bool, []byte, error) {
	raffle, err := s.getRaffle(ctx)
	if err != nil {
		return false, nil, err
	}
	needed, reason := raffle.CheckUpkeep(s.scheduler.Now())
	if !needed {
		log.Tracef("upkeep not needed: %s", reason)
	}
	return needed, []byte{}, nil
}

func (s *service) PerformUpkeep(ctx context.Context, _ []byte) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.scheduler.Now()
	requestId := ""
	// The store may run the update again on write conflicts, a request
	// already issued for the same round is reused instead of sending another.
	issued := make(map[uint64]string)
	raffle, err := s.store.Update(
		ctx, func(r *domain.Raffle) (*domain.Raffle, error) {
			if r == nil {
				return nil, ErrRaffleNotInitialized
			}
			if _, err := r.RequestDraw(
				now, func(roundId uint64) (string, error) {
					if id, ok := issued[roundId]; ok {
						requestId = id
						return id, nil
					}
					id, err := s.randomness.RequestRandomWords(
						ctx, ports.RandomnessRequest{
							RoundId:       roundId,
							GasLimit:      s.cfg.CallbackGasLimit,
							Confirmations: s.cfg.Confirmations,
							NumWords:      s.cfg.NumWords,
						},
					)
					if err != nil {
						return "", err
					}
					issued[roundId] = id
					requestId = id
					return id, nil
				},
			); err != nil {
				return nil, err
			}
			return r, nil
		},
	)
	if err != nil {
		return "", err
	}

	log.Infof("requested draw %s for round %d", requestId, raffle.Round.Id)
	s.publishEvents(ctx, raffle)
	return requestId, nil
}

func (s *service) FulfillRandomWords(
	ctx context.Context, caller, requestId string, words []*big.Int,
) error {
	if caller != s.cfg.TrustedFulfiller {
		return fmt.Errorf("%w: %s", domain.ErrCallerNotTrusted, caller)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.scheduler.Now()
	var record *domain.RoundRecord
	raffle, err := s.store.Update(
		ctx, func(r *domain.Raffle) (*domain.Raffle, error) {
			if r == nil {
				return nil, ErrRaffleNotInitialized
			}
			rec, _, err := r.Fulfill(requestId, words, now)
			if err != nil {
				return nil, err
			}

			// The raffle is already settled at this point, the transfer is the
			// last step and its failure discards the whole update.
			txid, err := s.wallet.Transfer(ctx, rec.Payout())
			if err != nil {
				return nil, fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
			}
			rec.PayoutTxid = txid
			record = rec
			return r, nil
		},
	)
	if err != nil {
		if errors.Is(err, domain.ErrTransferFailed) {
			log.WithError(err).Warnf("failed to pay out winner for request %s", requestId)
		}
		return err
	}

	log.Infof(
		"round %d settled, winner %s paid %d (tx %s)",
		record.Id, record.Winner, record.Balance, record.PayoutTxid,
	)

	if err := s.repoManager.Rounds().AddOrUpdateRound(ctx, *record); err != nil {
		log.WithError(err).Warnf("failed to store round %d", record.Id)
	}
	s.publishEvents(ctx, raffle)
	return nil
}

func (s *service) GetInfo(ctx context.Context) (*RaffleInfo, error) {
	raffle, err := s.getRaffle(ctx)
	if err != nil {
		return nil, err
	}

	var pending *domain.PendingRequest
	if req, ok := raffle.PendingRequest(); ok {
		pending = &req
	}

	return &RaffleInfo{
		State:              raffle.State.String(),
		EntryFee:           raffle.EntryFee,
		Interval:           raffle.Interval,
		RecentWinner:       raffle.RecentWinner,
		NumOfPlayers:       raffle.Round.NumOfPlayers(),
		LatestTimestamp:    raffle.Round.StartingTimestamp,
		RoundId:            raffle.Round.Id,
		Balance:            raffle.Balance,
		PendingRequest:     pending,
		RandomnessProvider: s.randomness.Identity(),
		CallbackGasLimit:   s.cfg.CallbackGasLimit,
		Confirmations:      s.cfg.Confirmations,
	}, nil
}

func (s *service) GetPlayer(ctx context.Context, index int) (string, error) {
	raffle, err := s.getRaffle(ctx)
	if err != nil {
		return "", err
	}
	return raffle.Round.Player(index)
}

func (s *service) GetRound(ctx context.Context, id uint64) (*domain.RoundRecord, error) {
	return s.repoManager.Rounds().GetRoundWithId(ctx, id)
}

func (s *service) ListRounds(
	ctx context.Context, startedAfter, startedBefore int64,
) ([]uint64, error) {
	return s.repoManager.Rounds().GetRoundsIds(ctx, startedAfter, startedBefore)
}

func (s *service) GetBalance(ctx context.Context, account string) (uint64, error) {
	return s.wallet.GetBalance(ctx, account)
}

func (s *service) GetEventsChannel(_ context.Context) <-chan []domain.Event {
	return s.eventsCh
}

func (s *service) init(ctx context.Context) (*domain.Raffle, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	created := false
	raffle, err := s.store.Update(
		ctx, func(r *domain.Raffle) (*domain.Raffle, error) {
			if r != nil {
				return r, nil
			}
			created = true
			return domain.NewRaffle(s.cfg.EntryFee, s.cfg.Interval, s.scheduler.Now())
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize raffle: %w", err)
	}

	if !created {
		if raffle.EntryFee != s.cfg.EntryFee || raffle.Interval != s.cfg.Interval {
			log.Warnf(
				"configured entry fee %d and interval %d differ from stored ones "+
					"(%d, %d), keeping the stored values",
				s.cfg.EntryFee, s.cfg.Interval, raffle.EntryFee, raffle.Interval,
			)
		}
		log.Infof(
			"restored raffle at round %d in state %s", raffle.Round.Id, raffle.State,
		)
		return raffle, nil
	}

	log.Infof("created raffle with entry fee %d", raffle.EntryFee)
	s.publishEvents(ctx, raffle)
	return raffle, nil
}

// upkeep is the built-in automation job. Redundant calls are harmless since
// the draw request re-checks the upkeep conditions.
func (s *service) upkeep() {
	ctx := context.Background()

	needed, _, err := s.CheckUpkeep(ctx, nil)
	if err != nil {
		log.WithError(err).Warn("failed to check upkeep")
		return
	}
	if !needed {
		return
	}

	if _, err := s.PerformUpkeep(ctx, nil); err != nil {
		if errors.Is(err, domain.ErrUpkeepNotNeeded) {
			log.Debugf("skipping upkeep: %s", err)
			return
		}
		log.WithError(err).Warn("failed to perform upkeep")
	}
}

func (s *service) getRaffle(ctx context.Context) (*domain.Raffle, error) {
	raffle, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if raffle == nil {
		return nil, ErrRaffleNotInitialized
	}
	return raffle, nil
}

func (s *service) publishEvents(ctx context.Context, raffle *domain.Raffle) {
	events := raffle.Events()
	if len(events) <= 0 {
		return
	}
	id := fmt.Sprintf("%d", raffle.Round.Id)
	if err := s.repoManager.Events().Save(
		ctx, domain.RaffleTopic, id, events,
	); err != nil {
		log.WithError(err).Warn("failed to publish raffle events")
	}
}

func (s *service) propagateEvents(events []domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("recovered from panic in propagateEvents: %v", r)
		}
	}()

	select {
	case s.eventsCh <- events:
	default:
		log.Warnf("events channel full, dropped %d events", len(events))
	}
}
