package domain

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

const (
	RaffleOpen RaffleState = iota
	RaffleCalculating
)

type RaffleState int

func (s RaffleState) String() string {
	switch s {
	case RaffleOpen:
		return "OPEN"
	case RaffleCalculating:
		return "CALCULATING"
	default:
		return "UNDEFINED"
	}
}

type PendingRequest struct {
	RequestId string
	RoundId   uint64
	Timestamp int64
}

// Raffle is the single authoritative state record. Every mutation goes
// through one of its methods, which raise the related events.
type Raffle struct {
	EntryFee        uint64
	Interval        int64
	State           RaffleState
	Round           Round
	Balance         uint64
	PendingRequests map[string]PendingRequest
	RecentWinner    string
	Version         uint

	changes []Event
}

func NewRaffle(entryFee uint64, interval, now int64) (*Raffle, error) {
	if entryFee == 0 {
		return nil, fmt.Errorf("entry fee must be greater than 0")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be greater than 0")
	}

	r := &Raffle{
		EntryFee:        entryFee,
		Interval:        interval,
		PendingRequests: make(map[string]PendingRequest),
	}
	r.raise(RoundStarted{
		RoundId:   1,
		EntryFee:  entryFee,
		Timestamp: now,
	})
	return r, nil
}

func (r *Raffle) On(event Event) {
	switch e := event.(type) {
	case RoundStarted:
		r.State = RaffleOpen
		r.Round = Round{
			Id:                e.RoundId,
			EntryFee:          e.EntryFee,
			StartingTimestamp: e.Timestamp,
		}
	case EntryRecorded:
		r.Round.Entries = append(r.Round.Entries, Entry{
			Player:    e.Player,
			Amount:    e.Amount,
			Timestamp: e.Timestamp,
		})
		r.Balance += e.Amount
	case DrawRequested:
		if r.PendingRequests == nil {
			r.PendingRequests = make(map[string]PendingRequest)
		}
		r.State = RaffleCalculating
		r.PendingRequests[e.RequestId] = PendingRequest{
			RequestId: e.RequestId,
			RoundId:   e.RoundId,
			Timestamp: e.Timestamp,
		}
	case RandomnessFulfilled:
		delete(r.PendingRequests, e.RequestId)
	case WinnerPicked:
		r.RecentWinner = e.Winner
		r.Round.Entries = nil
		r.Balance = 0
		r.State = RaffleOpen
	}

	r.Version++
}

// Events returns the events raised since the raffle was loaded.
func (r *Raffle) Events() []Event {
	return r.changes
}

func (r *Raffle) Enter(player string, amount uint64, now int64) ([]Event, error) {
	if r.State != RaffleOpen {
		return nil, fmt.Errorf("%w: raffle is %s", ErrRaffleNotOpen, r.State)
	}
	if len(strings.TrimSpace(player)) <= 0 {
		return nil, ErrInvalidPlayer
	}
	if amount < r.EntryFee {
		return nil, fmt.Errorf(
			"%w: got %d, expected at least %d", ErrInsufficientEntryFee, amount, r.EntryFee,
		)
	}
	if r.Balance > math.MaxUint64-amount {
		return nil, ErrBalanceOverflow
	}

	event := EntryRecorded{
		RoundId:   r.Round.Id,
		Player:    player,
		Amount:    amount,
		Timestamp: now,
	}
	r.raise(event)

	return []Event{event}, nil
}

// CheckUpkeep tells whether a draw can be requested at the given time. It
// never mutates the raffle. When no upkeep is needed the reason is returned.
func (r *Raffle) CheckUpkeep(now int64) (bool, string) {
	if r.State != RaffleOpen {
		return false, fmt.Sprintf("raffle is %s", r.State)
	}
	if elapsed := now - r.Round.StartingTimestamp; elapsed < r.Interval {
		return false, fmt.Sprintf("interval not elapsed, %ds left", r.Interval-elapsed)
	}
	if r.Round.NumOfPlayers() <= 0 {
		return false, "no players"
	}
	if r.Balance <= 0 {
		return false, "empty balance"
	}
	return true, ""
}

// RequestDraw moves the raffle to CALCULATING and records the pending
// request returned by the given issuer. The issuer is invoked only after the
// upkeep conditions have been re-checked. If it fails, the raffle is left
// untouched.
func (r *Raffle) RequestDraw(
	now int64, issue func(roundId uint64) (string, error),
) ([]Event, error) {
	if ok, reason := r.CheckUpkeep(now); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUpkeepNotNeeded, reason)
	}

	r.State = RaffleCalculating

	requestId, err := issue(r.Round.Id)
	if err != nil {
		r.State = RaffleOpen
		return nil, fmt.Errorf("failed to request randomness: %w", err)
	}
	if len(requestId) <= 0 {
		r.State = RaffleOpen
		return nil, fmt.Errorf("failed to request randomness: missing request id")
	}
	if _, ok := r.PendingRequests[requestId]; ok {
		r.State = RaffleOpen
		return nil, fmt.Errorf(
			"failed to request randomness: duplicated request id %s", requestId,
		)
	}

	event := DrawRequested{
		RoundId:   r.Round.Id,
		RequestId: requestId,
		Timestamp: now,
	}
	r.raise(event)

	return []Event{event}, nil
}

// Fulfill settles the current round with the given randomness. The pending
// request is dropped before the winner is selected, then the round is
// reset and a new one is started. The returned record carries the payout
// that must be transferred for the settlement to hold.
func (r *Raffle) Fulfill(
	requestId string, words []*big.Int, now int64,
) (*RoundRecord, []Event, error) {
	req, ok := r.PendingRequests[requestId]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestId)
	}
	if r.State != RaffleCalculating || req.RoundId != r.Round.Id {
		return nil, nil, fmt.Errorf(
			"%w: %s does not belong to round %d", ErrUnknownRequest, requestId, r.Round.Id,
		)
	}
	if len(words) <= 0 {
		return nil, nil, ErrMissingRandomWords
	}
	if len(r.Round.Entries) <= 0 {
		return nil, nil, fmt.Errorf("round %d has no players", r.Round.Id)
	}

	strWords := make([]string, 0, len(words))
	for _, w := range words {
		if w == nil || w.Sign() < 0 {
			return nil, nil, ErrMissingRandomWords
		}
		strWords = append(strWords, w.String())
	}

	round := r.Round
	entries := append([]Entry{}, round.Entries...)
	balance := r.Balance

	fulfilled := RandomnessFulfilled{
		RoundId:     round.Id,
		RequestId:   requestId,
		RandomWords: strWords,
		Timestamp:   now,
	}
	r.raise(fulfilled)

	index := SelectWinner(words[0], len(entries))
	winner := entries[index].Player

	picked := WinnerPicked{
		RoundId:     round.Id,
		RequestId:   requestId,
		Winner:      winner,
		WinnerIndex: index,
		Amount:      balance,
		Timestamp:   now,
	}
	r.raise(picked)

	started := RoundStarted{
		RoundId:   round.Id + 1,
		EntryFee:  r.EntryFee,
		Timestamp: now,
	}
	r.raise(started)

	record := &RoundRecord{
		Id:                round.Id,
		EntryFee:          round.EntryFee,
		Entries:           entries,
		Balance:           balance,
		StartingTimestamp: round.StartingTimestamp,
		EndingTimestamp:   now,
		RequestId:         requestId,
		RandomWord:        strWords[0],
		WinnerIndex:       index,
		Winner:            winner,
	}

	return record, []Event{fulfilled, picked, started}, nil
}

// Clone returns a deep copy of the raffle without its pending changes.
func (r *Raffle) Clone() *Raffle {
	clone := *r
	clone.Round.Entries = append([]Entry(nil), r.Round.Entries...)
	clone.PendingRequests = make(map[string]PendingRequest, len(r.PendingRequests))
	for id, req := range r.PendingRequests {
		clone.PendingRequests[id] = req
	}
	clone.changes = nil
	return &clone
}

func (r *Raffle) IsOpen() bool {
	return r.State == RaffleOpen
}

// PendingRequest returns the in-flight randomness request, if any.
func (r *Raffle) PendingRequest() (PendingRequest, bool) {
	for _, req := range r.PendingRequests {
		return req, true
	}
	return PendingRequest{}, false
}

func (r *Raffle) raise(event Event) {
	if r.changes == nil {
		r.changes = make([]Event, 0)
	}
	r.changes = append(r.changes, event)
	r.On(event)
}
