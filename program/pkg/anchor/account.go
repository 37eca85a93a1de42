package anchor

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

// Load decodes the record stored in acc after checking that it is
// initialized and owned by programID.
func Load(acc *ledger.Account, programID solana.PublicKey, disc bin.TypeID, body bin.BinaryUnmarshaler) error {
	if !acc.IsInitialized() {
		return fmt.Errorf("%w: %s", ErrAccountNotInitialized, acc.Address)
	}
	if acc.Owner != programID {
		return fmt.Errorf("%w: %s owned by %s", ErrAccountOwnedByWrongProgram, acc.Address, acc.Owner)
	}
	return Unmarshal(acc.Data, disc, body)
}

// Save re-encodes body into the existing allocation of acc.
func Save(acc *ledger.Account, disc bin.TypeID, body bin.BinaryMarshaler) error {
	data, err := Marshal(disc, len(acc.Data), body)
	if err != nil {
		return err
	}
	acc.Data = data
	return nil
}

// CheckAddress verifies that addr is the program address derived from seeds.
func CheckAddress(addr solana.PublicKey, seeds [][]byte, programID solana.PublicKey) (uint8, error) {
	want, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return 0, err
	}
	if want != addr {
		return 0, fmt.Errorf("%w: expected %s, got %s", ErrConstraintSeeds, want, addr)
	}
	return bump, nil
}

// Update runs fn against a per-operation account cache and commits the
// cache when fn succeeds, all within one store update.
func Update(ctx context.Context, store ledger.Store, fn func(*ledger.Accounts) error) error {
	return store.Update(ctx, func(tx ledger.Tx) error {
		accs := ledger.NewAccounts(tx)
		if err := fn(accs); err != nil {
			return err
		}
		return accs.Commit(ctx)
	})
}

// Create allocates a new record owned by programID at addr. The payer
// funds its rent-exempt reserve.
func Create(ctx context.Context, accs *ledger.Accounts, rent ledger.Rent, programID, payerAddr, addr solana.PublicKey, disc bin.TypeID, size int, body bin.BinaryMarshaler) error {
	payer, err := accs.Get(ctx, payerAddr)
	if err != nil {
		return fmt.Errorf("payer %s: %w", payerAddr, err)
	}
	acc, err := accs.GetOrEmpty(ctx, addr)
	if err != nil {
		return err
	}
	data, err := Marshal(disc, size, body)
	if err != nil {
		return err
	}
	if err := ledger.Allocate(rent, payer, acc, programID, data); err != nil {
		return err
	}
	accs.MarkCreated(addr)
	return nil
}
