package tippayment

import (
	"fmt"
	"math/bits"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

// Split is the outcome of draining the shards once.
type Split struct {
	Total           uint64
	BlockBuilderFee uint64
	TipReceiverFee  uint64
	// The Redirected flags are set when a fee was credited to tip payment
	// account 0 because its recipient could not accept it.
	BlockBuilderRedirected bool
	TipReceiverRedirected  bool
}

// SplitFees divides total into floor(total*pct/100) for the block builder
// and the remainder for the tip receiver. The two shares always sum to
// total.
func SplitFees(total, pct uint64) (builderFee, receiverFee uint64, err error) {
	if pct > MaxBlockBuilderCommissionPct {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidFee, pct)
	}
	// pct <= 100 keeps the high word below the divisor.
	hi, lo := bits.Mul64(total, pct)
	builderFee, _ = bits.Div64(hi, lo, 100)
	return builderFee, total - builderFee, nil
}

// drain removes the excess over the rent-exempt reserve from every shard
// and returns the sum.
func drain(rent ledger.Rent, shards []*ledger.Account) (uint64, error) {
	var total uint64
	for _, acc := range shards {
		excess := ledger.ExcessLamports(rent, acc)
		sum, carry := bits.Add64(total, excess, 0)
		if carry != 0 {
			return 0, ErrArithmeticError
		}
		acc.Lamports -= excess
		total = sum
	}
	return total, nil
}

// deliver credits amount to recipient, or to fallback when the recipient is
// executable, reserved, or would not be rent exempt after the credit. It
// reports whether the fallback was used.
func deliver(rent ledger.Rent, recipient, fallback *ledger.Account, amount uint64) (bool, error) {
	if amount == 0 {
		return false, nil
	}
	target, redirected := recipient, false
	if !canReceive(rent, recipient, amount) {
		target, redirected = fallback, true
	}
	if err := ledger.Credit(target, amount); err != nil {
		return false, fmt.Errorf("%w: %w", ErrArithmeticError, err)
	}
	return redirected, nil
}

func canReceive(rent ledger.Rent, acc *ledger.Account, amount uint64) bool {
	if acc.Executable || ledger.IsReservedAccount(acc.Address) {
		return false
	}
	post, carry := bits.Add64(acc.Lamports, amount, 0)
	if carry != 0 {
		return false
	}
	return post >= rent.MinimumBalance(len(acc.Data))
}
