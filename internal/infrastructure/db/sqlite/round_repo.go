package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ark-network/raffle/internal/core/domain"
)

const (
	upsertRound = `
INSERT INTO round (
    id, entry_fee, balance, starting_timestamp, ending_timestamp,
    request_id, random_word, winner_index, winner, payout_txid
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    entry_fee = EXCLUDED.entry_fee,
    balance = EXCLUDED.balance,
    starting_timestamp = EXCLUDED.starting_timestamp,
    ending_timestamp = EXCLUDED.ending_timestamp,
    request_id = EXCLUDED.request_id,
    random_word = EXCLUDED.random_word,
    winner_index = EXCLUDED.winner_index,
    winner = EXCLUDED.winner,
    payout_txid = EXCLUDED.payout_txid`
	deleteEntries = `DELETE FROM entry WHERE round_id = ?`
	insertEntry   = `
INSERT INTO entry (round_id, position, player, amount, timestamp)
VALUES (?, ?, ?, ?, ?)`
	selectRound = `
SELECT id, entry_fee, balance, starting_timestamp, ending_timestamp,
    request_id, random_word, winner_index, winner, payout_txid
FROM round WHERE id = ?`
	selectEntries = `
SELECT player, amount, timestamp FROM entry
WHERE round_id = ? ORDER BY position`
	selectRoundIdsInRange = `
SELECT id FROM round
WHERE (? = 0 OR starting_timestamp > ?) AND (? = 0 OR starting_timestamp < ?)
ORDER BY id`
)

type roundRepository struct {
	db *sql.DB
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected db at 0")
	}

	return &roundRepository{db}, nil
}

func (r *roundRepository) Close() {
	_ = r.db.Close()
}

func (r *roundRepository) AddOrUpdateRound(
	ctx context.Context, round domain.RoundRecord,
) error {
	txBody := func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx, upsertRound,
			int64(round.Id), int64(round.EntryFee), int64(round.Balance),
			round.StartingTimestamp, round.EndingTimestamp,
			round.RequestId, round.RandomWord, round.WinnerIndex,
			round.Winner, round.PayoutTxid,
		); err != nil {
			return fmt.Errorf("failed to upsert round: %w", err)
		}

		if _, err := tx.ExecContext(ctx, deleteEntries, int64(round.Id)); err != nil {
			return fmt.Errorf("failed to reset entries: %w", err)
		}
		for i, entry := range round.Entries {
			if _, err := tx.ExecContext(
				ctx, insertEntry,
				int64(round.Id), i, entry.Player, int64(entry.Amount), entry.Timestamp,
			); err != nil {
				return fmt.Errorf("failed to insert entry: %w", err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *roundRepository) GetRoundWithId(
	ctx context.Context, id uint64,
) (*domain.RoundRecord, error) {
	var (
		round                      domain.RoundRecord
		roundId, entryFee, balance int64
	)
	if err := r.db.QueryRowContext(ctx, selectRound, int64(id)).Scan(
		&roundId, &entryFee, &balance,
		&round.StartingTimestamp, &round.EndingTimestamp,
		&round.RequestId, &round.RandomWord, &round.WinnerIndex,
		&round.Winner, &round.PayoutTxid,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", domain.ErrRoundNotFound, id)
		}
		return nil, err
	}
	round.Id = uint64(roundId)
	round.EntryFee = uint64(entryFee)
	round.Balance = uint64(balance)

	rows, err := r.db.QueryContext(ctx, selectEntries, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry  domain.Entry
			amount int64
		)
		if err := rows.Scan(&entry.Player, &amount, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Amount = uint64(amount)
		round.Entries = append(round.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &round, nil
}

func (r *roundRepository) GetRoundsIds(
	ctx context.Context, startedAfter, startedBefore int64,
) ([]uint64, error) {
	rows, err := r.db.QueryContext(
		ctx, selectRoundIdsInRange,
		startedAfter, startedAfter, startedBefore, startedBefore,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}
