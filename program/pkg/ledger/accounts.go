package ledger

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// Accounts loads each address at most once per transaction, so an address
// playing several roles in one operation is a single in-memory copy.
// Commit writes every loaded account back.
type Accounts struct {
	tx      Tx
	loaded  map[solana.PublicKey]*Account
	order   []solana.PublicKey
	created map[solana.PublicKey]bool
}

func NewAccounts(tx Tx) *Accounts {
	return &Accounts{
		tx:      tx,
		loaded:  make(map[solana.PublicKey]*Account),
		created: make(map[solana.PublicKey]bool),
	}
}

// Get returns the account at addr or ErrAccountNotFound.
func (a *Accounts) Get(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	acc, err := a.GetOrEmpty(ctx, addr)
	if err != nil {
		return nil, err
	}
	if acc.IsEmpty() && !a.created[addr] {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// GetOrEmpty returns the account at addr, or an empty system account.
func (a *Accounts) GetOrEmpty(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	if acc, ok := a.loaded[addr]; ok {
		return acc, nil
	}
	acc, err := a.tx.Get(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		acc = NewSystemAccount(addr)
	} else if err != nil {
		return nil, err
	}
	a.loaded[addr] = acc
	a.order = append(a.order, addr)
	return acc, nil
}

// MarkCreated makes Commit write addr with Tx.Create instead of Tx.Put.
func (a *Accounts) MarkCreated(addr solana.PublicKey) {
	a.created[addr] = true
}

func (a *Accounts) Commit(ctx context.Context) error {
	for _, addr := range a.order {
		acc := a.loaded[addr]
		if a.created[addr] {
			if err := a.tx.Create(ctx, acc); err != nil {
				return err
			}
			continue
		}
		if err := a.tx.Put(ctx, acc); err != nil {
			return err
		}
	}
	return nil
}
