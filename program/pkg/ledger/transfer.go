package ledger

import (
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

// Transfer moves amount lamports from src to dst. The debit is checked,
// the source must stay at or above its rent-exempt minimum (a data-less
// source may instead be drained to exactly zero), and the credit is
// checked. On error neither account is modified. Callers persist both.
func Transfer(rent Rent, src, dst *Account, amount uint64) error {
	if src.Address == dst.Address {
		return ErrSameAccount
	}
	post, borrow := bits.Sub64(src.Lamports, amount, 0)
	if borrow != 0 {
		return fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientFunds, src.Lamports, amount)
	}
	if !(post == 0 && len(src.Data) == 0) && post < rent.MinimumBalance(len(src.Data)) {
		return fmt.Errorf("%w: %s would hold %d", ErrRentExemptViolation, src.Address, post)
	}
	credited, err := checkedAdd(dst.Lamports, amount)
	if err != nil {
		return err
	}
	src.Lamports, dst.Lamports = post, credited
	return nil
}

// Credit adds amount to dst without a matching debit. It is used when the
// lamports were already removed from their source.
func Credit(dst *Account, amount uint64) error {
	credited, err := checkedAdd(dst.Lamports, amount)
	if err != nil {
		return err
	}
	dst.Lamports = credited
	return nil
}

// CloseAccount moves every lamport of src into dst and resets src to an
// empty system account. It returns the amount moved.
func CloseAccount(src, dst *Account) (uint64, error) {
	if src.Address == dst.Address {
		return 0, ErrSameAccount
	}
	moved := src.Lamports
	credited, err := checkedAdd(dst.Lamports, moved)
	if err != nil {
		return 0, err
	}
	dst.Lamports = credited
	*src = *NewSystemAccount(src.Address)
	return moved, nil
}

// Allocate turns acc into a rent-exempt account owned by owner and holding
// data. Any shortfall of the reserve is paid by payer.
func Allocate(rent Rent, payer, acc *Account, owner solana.PublicKey, data []byte) error {
	if acc.IsInitialized() {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, acc.Address)
	}
	if need := rent.MinimumBalance(len(data)); acc.Lamports < need {
		if err := Transfer(rent, payer, acc, need-acc.Lamports); err != nil {
			return err
		}
	}
	acc.Owner = owner
	acc.Data = data
	return nil
}

// ExcessLamports returns the balance held above the rent-exempt reserve.
func ExcessLamports(rent Rent, acc *Account) uint64 {
	reserve := rent.MinimumBalance(len(acc.Data))
	if acc.Lamports <= reserve {
		return 0
	}
	return acc.Lamports - reserve
}

// IsViable reports whether the account is either empty or rent exempt.
func IsViable(rent Rent, acc *Account) bool {
	return acc.Lamports == 0 || acc.Lamports >= rent.MinimumBalance(len(acc.Data))
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum, nil
}
