package ledger

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func wallet(lamports uint64) *Account {
	acc := NewSystemAccount(solana.NewWallet().PublicKey())
	acc.Lamports = lamports
	return acc
}

func dataAccount(lamports uint64, size int) *Account {
	return &Account{
		Address:  solana.NewWallet().PublicKey(),
		Owner:    solana.NewWallet().PublicKey(),
		Lamports: lamports,
		Data:     make([]byte, size),
	}
}

func TestTipDist_Ledger_MinimumBalance(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint64(890_880), DefaultRent.MinimumBalance(0))
	require.Equal(t, uint64((128+168)*3480*2), DefaultRent.MinimumBalance(168))
}

func TestTipDist_Ledger_Transfer(t *testing.T) {
	t.Parallel()

	rent := DefaultRent

	t.Run("moves exact amount", func(t *testing.T) {
		t.Parallel()
		src, dst := wallet(5_000_000), wallet(0)
		require.NoError(t, Transfer(rent, src, dst, 1_000_000))
		require.Equal(t, uint64(4_000_000), src.Lamports)
		require.Equal(t, uint64(1_000_000), dst.Lamports)
	})

	t.Run("insufficient funds leaves both untouched", func(t *testing.T) {
		t.Parallel()
		src, dst := wallet(10), wallet(7)
		err := Transfer(rent, src, dst, 11)
		require.ErrorIs(t, err, ErrInsufficientFunds)
		require.Equal(t, uint64(10), src.Lamports)
		require.Equal(t, uint64(7), dst.Lamports)
	})

	t.Run("data-less source may drain to zero", func(t *testing.T) {
		t.Parallel()
		src, dst := wallet(2_000_000), wallet(0)
		require.NoError(t, Transfer(rent, src, dst, 2_000_000))
		require.Zero(t, src.Lamports)
	})

	t.Run("data-less source cannot be left below reserve", func(t *testing.T) {
		t.Parallel()
		src, dst := wallet(2_000_000), wallet(0)
		err := Transfer(rent, src, dst, 2_000_000-1)
		require.ErrorIs(t, err, ErrRentExemptViolation)
		require.Equal(t, uint64(2_000_000), src.Lamports)
		require.Zero(t, dst.Lamports)
	})

	t.Run("data account keeps its reserve", func(t *testing.T) {
		t.Parallel()
		reserve := rent.MinimumBalance(100)
		src, dst := dataAccount(reserve+500, 100), wallet(0)
		require.NoError(t, Transfer(rent, src, dst, 500))
		require.Equal(t, reserve, src.Lamports)

		err := Transfer(rent, src, dst, 1)
		require.ErrorIs(t, err, ErrRentExemptViolation)

		src.Lamports = reserve
		err = Transfer(rent, src, dst, reserve)
		require.ErrorIs(t, err, ErrRentExemptViolation)
	})

	t.Run("credit overflow", func(t *testing.T) {
		t.Parallel()
		src, dst := wallet(5_000_000), wallet(math.MaxUint64)
		err := Transfer(rent, src, dst, 1_000_000)
		require.ErrorIs(t, err, ErrArithmeticOverflow)
		require.Equal(t, uint64(5_000_000), src.Lamports)
		require.Equal(t, uint64(math.MaxUint64), dst.Lamports)
	})

	t.Run("self transfer", func(t *testing.T) {
		t.Parallel()
		src := wallet(5_000_000)
		require.ErrorIs(t, Transfer(rent, src, src.Clone(), 1), ErrSameAccount)
	})
}

func TestTipDist_Ledger_ReserveInvariant(t *testing.T) {
	t.Parallel()

	rent := DefaultRent
	reserve := rent.MinimumBalance(64)
	for _, amount := range []uint64{0, 1, 999, 1000, 1001, reserve, reserve + 1000, math.MaxUint64} {
		src, dst := dataAccount(reserve+1000, 64), wallet(0)
		_ = Transfer(rent, src, dst, amount)
		require.True(t, src.Lamports == 0 || src.Lamports >= reserve, "amount %d left %d", amount, src.Lamports)
		require.Equal(t, reserve+1000, src.Lamports+dst.Lamports)
	}
}

func TestTipDist_Ledger_CloseAccount(t *testing.T) {
	t.Parallel()

	src, dst := dataAccount(3_000_000, 40), wallet(1)
	owner := src.Owner
	moved, err := CloseAccount(src, dst)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000_000), moved)
	require.Equal(t, uint64(3_000_001), dst.Lamports)
	require.True(t, src.IsEmpty())
	require.Equal(t, solana.SystemProgramID, src.Owner)
	require.NotEqual(t, owner, src.Owner)

	full := wallet(math.MaxUint64)
	src = dataAccount(1, 0)
	_, err = CloseAccount(src, full)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
	require.Equal(t, uint64(1), src.Lamports)
}

func TestTipDist_Ledger_Allocate(t *testing.T) {
	t.Parallel()

	rent := DefaultRent
	owner := solana.NewWallet().PublicKey()

	t.Run("payer funds the reserve", func(t *testing.T) {
		t.Parallel()
		payer, acc := wallet(10_000_000), wallet(0)
		require.NoError(t, Allocate(rent, payer, acc, owner, make([]byte, 32)))
		require.Equal(t, rent.MinimumBalance(32), acc.Lamports)
		require.Equal(t, 10_000_000-rent.MinimumBalance(32), payer.Lamports)
		require.Equal(t, owner, acc.Owner)
		require.True(t, acc.IsInitialized())
	})

	t.Run("prefunded address only tops up", func(t *testing.T) {
		t.Parallel()
		payer, acc := wallet(10_000_000), wallet(100)
		require.NoError(t, Allocate(rent, payer, acc, owner, make([]byte, 32)))
		require.Equal(t, rent.MinimumBalance(32), acc.Lamports)
		require.Equal(t, 10_000_000-rent.MinimumBalance(32)+100, payer.Lamports)
	})

	t.Run("initialized account rejected", func(t *testing.T) {
		t.Parallel()
		payer, acc := wallet(10_000_000), dataAccount(5_000_000, 8)
		require.ErrorIs(t, Allocate(rent, payer, acc, owner, nil), ErrAccountAlreadyExists)
	})
}

func TestTipDist_Ledger_ExcessAndViability(t *testing.T) {
	t.Parallel()

	rent := DefaultRent
	reserve := rent.MinimumBalance(0)

	acc := wallet(reserve + 42)
	require.Equal(t, uint64(42), ExcessLamports(rent, acc))
	require.True(t, IsViable(rent, acc))

	acc.Lamports = reserve - 1
	require.Zero(t, ExcessLamports(rent, acc))
	require.False(t, IsViable(rent, acc))

	acc.Lamports = 0
	require.True(t, IsViable(rent, acc))
}

func TestTipDist_Ledger_IsReservedAccount(t *testing.T) {
	t.Parallel()

	require.True(t, IsReservedAccount(solana.SystemProgramID))
	require.True(t, IsReservedAccount(solana.SysVarClockPubkey))
	require.True(t, IsReservedAccount(solana.VoteProgramID))
	require.False(t, IsReservedAccount(solana.NewWallet().PublicKey()))
}
