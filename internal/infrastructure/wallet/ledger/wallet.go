package ledgerwallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/ark-network/raffle/internal/core/domain"
	"github.com/ark-network/raffle/internal/core/ports"
	badgerdb "github.com/ark-network/raffle/internal/infrastructure/db/badger"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

const walletStoreDir = "wallet"

type account struct {
	Id      string
	Balance uint64
}

type transfer struct {
	PayoutId  string
	Txid      string
	Recipient string
	Amount    uint64
	Timestamp int64
}

type wallet struct {
	store *badgerhold.Store
}

// NewWallet returns a wallet that keeps the balances of the paid accounts
// in a local ledger.
func NewWallet(config ...interface{}) (ports.WalletService, error) {
	baseDir, logger, err := badgerdb.ParseConfig(config...)
	if err != nil {
		return nil, err
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, walletStoreDir)
	}
	store, err := badgerdb.CreateDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet store: %s", err)
	}

	return &wallet{store}, nil
}

func (w *wallet) Transfer(ctx context.Context, payout domain.Payout) (string, error) {
	if len(payout.Id) <= 0 {
		return "", fmt.Errorf("missing payout id")
	}
	if len(payout.Recipient) <= 0 {
		return "", fmt.Errorf("missing recipient")
	}
	if payout.Amount <= 0 {
		return "", fmt.Errorf("invalid amount 0")
	}

	var txid string
	err := w.store.Badger().Update(func(tx *badger.Txn) error {
		var prev transfer
		if err := w.store.TxGet(tx, payout.Id, &prev); err == nil {
			if prev.Recipient != payout.Recipient || prev.Amount != payout.Amount {
				return fmt.Errorf("payout %s already sent with different terms", payout.Id)
			}
			txid = prev.Txid
			return nil
		} else if !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}

		acc := account{Id: payout.Recipient}
		if err := w.store.TxGet(tx, payout.Recipient, &acc); err != nil &&
			!errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
		if acc.Balance > math.MaxUint64-payout.Amount {
			return fmt.Errorf("balance overflow for account %s", payout.Recipient)
		}
		acc.Balance += payout.Amount

		txid = uuid.New().String()
		if err := w.store.TxUpsert(tx, acc.Id, acc); err != nil {
			return err
		}
		return w.store.TxInsert(tx, payout.Id, transfer{
			PayoutId:  payout.Id,
			Txid:      txid,
			Recipient: payout.Recipient,
			Amount:    payout.Amount,
			Timestamp: time.Now().Unix(),
		})
	})
	if err != nil {
		return "", err
	}

	log.Debugf("transferred %d to %s (payout %s)", payout.Amount, payout.Recipient, payout.Id)
	return txid, nil
}

func (w *wallet) GetBalance(_ context.Context, accountId string) (uint64, error) {
	var acc account
	if err := w.store.Get(accountId, &acc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acc.Balance, nil
}

func (w *wallet) Close() {
	// nolint
	w.store.Close()
}
