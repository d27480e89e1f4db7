package application_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ark-network/raffle/internal/core/application"
	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	localprovider "github.com/ark-network/raffle/internal/infrastructure/randomness/local"
	inmemorystatestore "github.com/ark-network/raffle/internal/infrastructure/state-store/inmemory"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	// 0.01 in base units of an 18 decimals asset.
	entryFee       = uint64(10_000_000_000_000_000)
	interval       = int64(30)
	startTime      = int64(1_700_000_000)
	providerId     = "vrf-coordinator"
	gasLimit       = uint32(500000)
	confirmations  = uint16(3)
	upkeepInterval = int64(10)
)

var (
	playerA = "addr-a"
	playerB = "addr-b"
	playerC = "addr-c"
	playerD = "addr-d"

	drawRequest = ports.RandomnessRequest{
		RoundId:       1,
		GasLimit:      gasLimit,
		Confirmations: confirmations,
		NumWords:      1,
	}
)

type testEnv struct {
	svc        application.Service
	store      ports.StateStore
	randomness *mockedRandomness
	wallet     *mockedWallet
	scheduler  *mockedScheduler
	repo       *mockedRepoManager
}

func newTestEnv(t *testing.T) *testEnv {
	randomness := &mockedRandomness{}
	randomness.On("Identity").Return(providerId)
	wallet := &mockedWallet{}
	scheduler := &mockedScheduler{now: startTime}
	repo := newMockedRepoManager()
	store := inmemorystatestore.NewStateStore()

	svc, err := application.NewService(
		application.Config{
			EntryFee:         entryFee,
			Interval:         interval,
			CallbackGasLimit: gasLimit,
			Confirmations:    confirmations,
			UpkeepInterval:   upkeepInterval,
		},
		store, repo, randomness, wallet, scheduler,
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	return &testEnv{svc, store, randomness, wallet, scheduler, repo}
}

func TestService(t *testing.T) {
	testStart(t)

	testEnter(t)

	testPerformUpkeep(t)

	testFulfillRandomWords(t)

	testUpkeepJob(t)
}

func testStart(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		t.Run("new_raffle", func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			info, err := env.svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, "OPEN", info.State)
			require.Equal(t, entryFee, info.EntryFee)
			require.Equal(t, interval, info.Interval)
			require.Equal(t, uint64(1), info.RoundId)
			require.Equal(t, startTime, info.LatestTimestamp)
			require.Zero(t, info.NumOfPlayers)
			require.Empty(t, info.RecentWinner)
			require.Nil(t, info.PendingRequest)
			require.Equal(t, providerId, info.RandomnessProvider)

			require.NotNil(t, env.randomness.handler)
			require.Len(t, env.scheduler.jobs, 1)
			require.Len(t, env.repo.events.savedOfType(domain.EventTypeRoundStarted), 1)
		})

		t.Run("restore_raffle", func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			require.NoError(t, env.svc.Enter(ctx, playerA, entryFee))

			svc, err := application.NewService(
				application.Config{EntryFee: 2 * entryFee, Interval: interval},
				env.store, newMockedRepoManager(), env.randomness, env.wallet, env.scheduler,
			)
			require.NoError(t, err)
			require.NoError(t, svc.Start())

			info, err := svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, entryFee, info.EntryFee)
			require.Equal(t, 1, info.NumOfPlayers)
		})

		t.Run("resume_pending_request", func(t *testing.T) {
			env := newCalculatingEnv(t)
			env.randomness.On("Resume", mock.Anything, "1", drawRequest).
				Return(nil).Once()

			svc, err := application.NewService(
				application.Config{
					EntryFee:         entryFee,
					Interval:         interval,
					CallbackGasLimit: gasLimit,
					Confirmations:    confirmations,
				},
				env.store, newMockedRepoManager(), env.randomness, env.wallet, env.scheduler,
			)
			require.NoError(t, err)
			require.NoError(t, svc.Start())
			env.randomness.AssertExpectations(t)

			env.randomness.On("Resume", mock.Anything, "1", drawRequest).
				Return(fmt.Errorf("provider is closed")).Once()
			svc, err = application.NewService(
				application.Config{
					EntryFee:         entryFee,
					Interval:         interval,
					CallbackGasLimit: gasLimit,
					Confirmations:    confirmations,
				},
				env.store, newMockedRepoManager(), env.randomness, env.wallet, env.scheduler,
			)
			require.NoError(t, err)
			require.EqualError(
				t, svc.Start(), "failed to resume randomness request 1: provider is closed",
			)
		})

		t.Run("restart_while_calculating", func(t *testing.T) {
			env := newCalculatingEnv(t)
			ctx := context.Background()
			env.wallet.On("Transfer", mock.Anything, mock.Anything).Return("txid", nil)

			// The process that requested the draw is gone, a new one restores
			// the raffle from the same state store.
			scheduler := &mockedScheduler{now: env.scheduler.Now()}
			randomness, err := localprovider.NewProvider(providerId, 12, scheduler)
			require.NoError(t, err)
			repo := newMockedRepoManager()

			svc, err := application.NewService(
				application.Config{
					EntryFee:         entryFee,
					Interval:         interval,
					CallbackGasLimit: gasLimit,
					Confirmations:    confirmations,
				},
				env.store, repo, randomness, env.wallet, scheduler,
			)
			require.NoError(t, err)
			require.NoError(t, svc.Start())

			info, err := svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, "CALCULATING", info.State)
			require.Len(t, scheduler.jobs, 1)

			scheduler.runJobs()

			info, err = svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, "OPEN", info.State)
			require.Nil(t, info.PendingRequest)
			require.Zero(t, info.NumOfPlayers)
			require.Zero(t, info.Balance)
			require.Contains(t, []string{playerA, playerB, playerC, playerD}, info.RecentWinner)

			round, err := svc.GetRound(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, "1", round.RequestId)
			require.Equal(t, 4*entryFee, round.Balance)
			require.Equal(t, "txid", round.PayoutTxid)

			// Ids of restored requests are never handed out again.
			for _, player := range []string{playerA, playerB} {
				require.NoError(t, svc.Enter(ctx, player, entryFee))
			}
			scheduler.advance(interval + 1)
			requestId, err := svc.PerformUpkeep(ctx, nil)
			require.NoError(t, err)
			require.Equal(t, "2", requestId)
		})

		t.Run("invalid", func(t *testing.T) {
			randomness := &mockedRandomness{}
			randomness.On("Identity").Return(providerId)
			fixtures := []struct {
				cfg         application.Config
				expectedErr string
			}{
				{
					cfg:         application.Config{Interval: interval},
					expectedErr: "entry fee must be greater than 0",
				},
				{
					cfg:         application.Config{EntryFee: entryFee},
					expectedErr: "interval must be greater than 0",
				},
			}

			for _, f := range fixtures {
				svc, err := application.NewService(
					f.cfg, inmemorystatestore.NewStateStore(), newMockedRepoManager(),
					randomness, &mockedWallet{}, &mockedScheduler{},
				)
				require.EqualError(t, err, f.expectedErr)
				require.Nil(t, svc)
			}
		})
	})
}

func testEnter(t *testing.T) {
	t.Run("enter", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			err := env.svc.Enter(ctx, playerA, entryFee)
			require.NoError(t, err)

			info, err := env.svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, info.NumOfPlayers)
			require.Equal(t, entryFee, info.Balance)

			player, err := env.svc.GetPlayer(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, playerA, player)

			_, err = env.svc.GetPlayer(ctx, 1)
			require.ErrorIs(t, err, domain.ErrPlayerIndexOutRange)

			events := env.repo.events.savedOfType(domain.EventTypeEntryRecorded)
			require.Len(t, events, 1)
			require.Equal(t, playerA, events[0].(domain.EntryRecorded).Player)
		})

		t.Run("invalid", func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			err := env.svc.Enter(ctx, playerA, entryFee/2)
			require.ErrorIs(t, err, domain.ErrInsufficientEntryFee)

			err = env.svc.Enter(ctx, "", entryFee)
			require.ErrorIs(t, err, domain.ErrInvalidPlayer)

			info, err := env.svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Zero(t, info.NumOfPlayers)
			require.Zero(t, info.Balance)
			require.Empty(t, env.repo.events.savedOfType(domain.EventTypeEntryRecorded))
		})
	})
}

func testPerformUpkeep(t *testing.T) {
	t.Run("perform_upkeep", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.randomness.On("RequestRandomWords", mock.Anything, drawRequest).
				Return("1", nil).Once()

			require.NoError(t, env.svc.Enter(ctx, playerA, entryFee))

			needed, performData, err := env.svc.CheckUpkeep(ctx, nil)
			require.NoError(t, err)
			require.False(t, needed)
			require.Empty(t, performData)

			env.scheduler.advance(interval + 1)

			needed, _, err = env.svc.CheckUpkeep(ctx, nil)
			require.NoError(t, err)
			require.True(t, needed)

			requestId, err := env.svc.PerformUpkeep(ctx, nil)
			require.NoError(t, err)
			require.Equal(t, "1", requestId)

			info, err := env.svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, "CALCULATING", info.State)
			require.NotNil(t, info.PendingRequest)
			require.Equal(t, "1", info.PendingRequest.RequestId)

			// No double draw.
			requestId, err = env.svc.PerformUpkeep(ctx, nil)
			require.ErrorIs(t, err, domain.ErrUpkeepNotNeeded)
			require.Empty(t, requestId)
			env.randomness.AssertNumberOfCalls(t, "RequestRandomWords", 1)
			require.Len(t, env.repo.events.savedOfType(domain.EventTypeDrawRequested), 1)

			// No entries while calculating.
			err = env.svc.Enter(ctx, playerB, entryFee)
			require.ErrorIs(t, err, domain.ErrRaffleNotOpen)
		})

		t.Run("invalid", func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			requestId, err := env.svc.PerformUpkeep(ctx, nil)
			require.ErrorIs(t, err, domain.ErrUpkeepNotNeeded)
			require.Empty(t, requestId)

			require.NoError(t, env.svc.Enter(ctx, playerA, entryFee))
			env.scheduler.advance(interval)

			env.randomness.On("RequestRandomWords", mock.Anything, drawRequest).
				Return("", fmt.Errorf("subscription not funded")).Once()

			requestId, err = env.svc.PerformUpkeep(ctx, nil)
			require.EqualError(
				t, err, "failed to request randomness: subscription not funded",
			)
			require.Empty(t, requestId)

			info, err := env.svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, "OPEN", info.State)
			require.Nil(t, info.PendingRequest)
			require.Empty(t, env.repo.events.savedOfType(domain.EventTypeDrawRequested))
		})
	})
}

func TestPerformUpkeepOnConflict(t *testing.T) {
	randomness := &mockedRandomness{}
	randomness.On("Identity").Return(providerId)
	randomness.On("RequestRandomWords", mock.Anything, drawRequest).Return("1", nil)
	scheduler := &mockedScheduler{now: startTime}
	ctx := context.Background()

	svc, err := application.NewService(
		application.Config{
			EntryFee:         entryFee,
			Interval:         interval,
			CallbackGasLimit: gasLimit,
			Confirmations:    confirmations,
		},
		conflictingStore{inmemorystatestore.NewStateStore()}, newMockedRepoManager(),
		randomness, &mockedWallet{}, scheduler,
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	require.NoError(t, svc.Enter(ctx, playerA, entryFee))
	scheduler.advance(interval + 1)

	requestId, err := svc.PerformUpkeep(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "1", requestId)
	randomness.AssertNumberOfCalls(t, "RequestRandomWords", 1)

	info, err := svc.GetInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "CALCULATING", info.State)
	require.Equal(t, "1", info.PendingRequest.RequestId)
}

func testFulfillRandomWords(t *testing.T) {
	t.Run("fulfill_random_words", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			env := newCalculatingEnv(t)
			ctx := context.Background()
			eventsCh := env.svc.GetEventsChannel(ctx)
			drainEvents(eventsCh)

			payout := domain.Payout{
				Id:        domain.PayoutId(1, "1"),
				RoundId:   1,
				RequestId: "1",
				Recipient: playerB,
				Amount:    4 * entryFee,
			}
			env.wallet.On("Transfer", mock.Anything, payout).Return("txid", nil).Once()

			env.scheduler.advance(60)
			err := env.randomness.fulfill(providerId, "1", 777)
			require.NoError(t, err)

			info, err := env.svc.GetInfo(ctx)
			require.NoError(t, err)
			require.Equal(t, "OPEN", info.State)
			require.Equal(t, playerB, info.RecentWinner)
			require.Zero(t, info.NumOfPlayers)
			require.Zero(t, info.Balance)
			require.Nil(t, info.PendingRequest)
			require.Equal(t, uint64(2), info.RoundId)
			require.Equal(t, env.scheduler.Now(), info.LatestTimestamp)
			env.wallet.AssertExpectations(t)

			picked := env.repo.events.savedOfType(domain.EventTypeWinnerPicked)
			require.Len(t, picked, 1)
			require.Equal(t, playerB, picked[0].(domain.WinnerPicked).Winner)

			events := <-eventsCh
			require.Len(t, events, 3)
			require.Equal(t, domain.EventTypeWinnerPicked, events[1].GetType())

			round, err := env.svc.GetRound(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, playerB, round.Winner)
			require.Equal(t, 1, round.WinnerIndex)
			require.Equal(t, "777", round.RandomWord)
			require.Equal(t, "txid", round.PayoutTxid)
			require.Len(t, round.Entries, 4)

			ids, err := env.svc.ListRounds(ctx, 0, 0)
			require.NoError(t, err)
			require.Equal(t, []uint64{1}, ids)

			// Replayed fulfillment.
			err = env.randomness.fulfill(providerId, "1", 777)
			require.ErrorIs(t, err, domain.ErrUnknownRequest)
			env.wallet.AssertNumberOfCalls(t, "Transfer", 1)
		})

		t.Run("invalid", func(t *testing.T) {
			fixtures := []struct {
				name        string
				caller      string
				requestId   string
				words       []int64
				transferErr error
				expectedErr error
			}{
				{
					name:        "unknown request",
					caller:      providerId,
					requestId:   "999",
					words:       []int64{777},
					expectedErr: domain.ErrUnknownRequest,
				},
				{
					name:        "caller not trusted",
					caller:      "mallory",
					requestId:   "1",
					words:       []int64{777},
					expectedErr: domain.ErrCallerNotTrusted,
				},
				{
					name:        "missing words",
					caller:      providerId,
					requestId:   "1",
					expectedErr: domain.ErrMissingRandomWords,
				},
				{
					name:        "transfer failed",
					caller:      providerId,
					requestId:   "1",
					words:       []int64{777},
					transferErr: fmt.Errorf("insufficient funds"),
					expectedErr: domain.ErrTransferFailed,
				},
			}

			for _, f := range fixtures {
				env := newCalculatingEnv(t)
				ctx := context.Background()
				if f.transferErr != nil {
					env.wallet.On("Transfer", mock.Anything, mock.Anything).
						Return("", f.transferErr).Once()
				}

				before, err := env.store.Get(ctx)
				require.NoError(t, err)

				err = env.randomness.fulfill(f.caller, f.requestId, f.words...)
				require.ErrorIs(t, err, f.expectedErr, f.name)

				after, err := env.store.Get(ctx)
				require.NoError(t, err)
				require.Equal(t, before, after, f.name)
				require.Empty(t, env.repo.events.savedOfType(domain.EventTypeWinnerPicked), f.name)

				_, err = env.svc.GetRound(ctx, 1)
				require.ErrorIs(t, err, domain.ErrRoundNotFound, f.name)
			}
		})
	})
}

func testUpkeepJob(t *testing.T) {
	t.Run("upkeep_job", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		env.randomness.On("RequestRandomWords", mock.Anything, drawRequest).
			Return("1", nil).Once()

		// Nothing to do yet.
		env.scheduler.runJobs()
		env.randomness.AssertNotCalled(t, "RequestRandomWords", mock.Anything, mock.Anything)

		require.NoError(t, env.svc.Enter(ctx, playerA, entryFee))
		env.scheduler.advance(interval)

		// Redundant runs request a single draw.
		env.scheduler.runJobs()
		env.scheduler.runJobs()
		env.randomness.AssertNumberOfCalls(t, "RequestRandomWords", 1)

		info, err := env.svc.GetInfo(ctx)
		require.NoError(t, err)
		require.Equal(t, "CALCULATING", info.State)
	})
}

func TestGetBalance(t *testing.T) {
	env := newTestEnv(t)
	env.wallet.On("GetBalance", mock.Anything, playerA).Return(uint64(42), nil)

	balance, err := env.svc.GetBalance(context.Background(), playerA)
	require.NoError(t, err)
	require.Equal(t, uint64(42), balance)
}

func newCalculatingEnv(t *testing.T) *testEnv {
	env := newTestEnv(t)
	ctx := context.Background()
	env.randomness.On("RequestRandomWords", mock.Anything, drawRequest).
		Return("1", nil).Once()

	for _, player := range []string{playerA, playerB, playerC, playerD} {
		require.NoError(t, env.svc.Enter(ctx, player, entryFee))
	}
	env.scheduler.advance(interval + 1)

	_, err := env.svc.PerformUpkeep(ctx, nil)
	require.NoError(t, err)
	return env
}

func drainEvents(ch <-chan []domain.Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
