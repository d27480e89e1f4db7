package domain

import "fmt"

type Entry struct {
	Player    string
	Amount    uint64
	Timestamp int64
}

// Round is the current lottery cycle. Entries are append-only until the
// round is settled.
type Round struct {
	Id                uint64
	EntryFee          uint64
	StartingTimestamp int64
	Entries           []Entry
}

func (r Round) Participants() []string {
	players := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		players = append(players, e.Player)
	}
	return players
}

func (r Round) NumOfPlayers() int {
	return len(r.Entries)
}

func (r Round) TotalAmount() uint64 {
	tot := uint64(0)
	for _, e := range r.Entries {
		tot += e.Amount
	}
	return tot
}

func (r Round) Player(index int) (string, error) {
	if index < 0 || index >= len(r.Entries) {
		return "", fmt.Errorf(
			"%w: got %d, players %d", ErrPlayerIndexOutRange, index, len(r.Entries),
		)
	}
	return r.Entries[index].Player, nil
}

// RoundRecord is the settled snapshot of a round, kept as history once the
// winner has been paid.
type RoundRecord struct {
	Id                uint64
	EntryFee          uint64
	Entries           []Entry
	Balance           uint64
	StartingTimestamp int64
	EndingTimestamp   int64
	RequestId         string
	RandomWord        string
	WinnerIndex       int
	Winner            string
	PayoutTxid        string
}

func (r RoundRecord) Payout() Payout {
	return Payout{
		Id:        PayoutId(r.Id, r.RequestId),
		RoundId:   r.Id,
		RequestId: r.RequestId,
		Recipient: r.Winner,
		Amount:    r.Balance,
	}
}

// Payout is the prize transfer of a settled round. Its id is unique per
// round and request so wallets can dedupe repeated attempts.
type Payout struct {
	Id        string
	RoundId   uint64
	RequestId string
	Recipient string
	Amount    uint64
}

func PayoutId(roundId uint64, requestId string) string {
	return fmt.Sprintf("%d:%s", roundId, requestId)
}
