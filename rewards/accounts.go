package rewards

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// AccountBook is a Payer crediting rewards to accounts kept in a store of
// its own. It stands in for an external payment rail.
type AccountBook struct {
	db *db.DB
}

func OpenAccountBook(path string) (*AccountBook, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &AccountBook{db: database}, nil
}

func (b *AccountBook) Close() error {
	return b.db.Close()
}

func accountKey(addr types.Address) []byte {
	return db.Key("accounts", addr.Hex())
}

func (b *AccountBook) Pay(ctx context.Context, to types.Address, amount *uint256.Int) error {
	_, err := b.db.Update(ctx, time.Now(), func(tx *db.Tx) error {
		var balance uint256.Int
		if _, err := db.Lookup(tx, accountKey(to), &balance); err != nil {
			return err
		}
		if _, overflow := balance.AddOverflow(&balance, amount); overflow {
			return ErrPoolOverflow.With(amount)
		}
		return tx.Put(accountKey(to), balance)
	})
	return err
}

func (b *AccountBook) Balance(ctx context.Context, addr types.Address) (*uint256.Int, error) {
	balance := new(uint256.Int)
	err := b.db.View(ctx, func(r db.Reader) error {
		_, err := db.Lookup(r, accountKey(addr), balance)
		return err
	})
	return balance, err
}
