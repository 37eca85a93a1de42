package ledger

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

type Reader interface {
	// Get returns a copy of the account at addr, or ErrAccountNotFound.
	Get(ctx context.Context, addr solana.PublicKey) (*Account, error)
	// ListByOwner returns every account owned by owner, ordered by address.
	ListByOwner(ctx context.Context, owner solana.PublicKey) ([]*Account, error)
}

type Tx interface {
	Reader
	// Create stores a new account and fails with ErrAccountAlreadyExists if
	// an initialized account already lives at the address. A bare system
	// account holding only lamports is replaced.
	Create(ctx context.Context, acc *Account) error
	// Put upserts an account. Empty accounts are purged.
	Put(ctx context.Context, acc *Account) error
	Delete(ctx context.Context, addr solana.PublicKey) error
}

// Store executes operations against a consistent snapshot. Update commits
// every write made through the Tx when fn returns nil and none otherwise.
type Store interface {
	View(ctx context.Context, fn func(Reader) error) error
	Update(ctx context.Context, fn func(Tx) error) error
}

// GetOrEmpty returns the account at addr, or an empty system account when
// nothing is stored there.
func GetOrEmpty(ctx context.Context, r Reader, addr solana.PublicKey) (*Account, error) {
	acc, err := r.Get(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return NewSystemAccount(addr), nil
	}
	return acc, err
}

// PutAll writes each account in order.
func PutAll(ctx context.Context, tx Tx, accs ...*Account) error {
	for _, acc := range accs {
		if err := tx.Put(ctx, acc); err != nil {
			return err
		}
	}
	return nil
}
