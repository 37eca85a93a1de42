package tippayment

import (
	"context"
	"math"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	tdtesting "github.com/malbeclabs/tipdist/utils/pkg/testing"
)

const sol = 1_000_000_000

type testEnv struct {
	t     *testing.T
	ctx   context.Context
	store *ledger.MemoryStore
	proc  *Processor
	rent  ledger.Rent
	payer solana.PublicKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	payer := ledger.NewSystemAccount(solana.NewWallet().PublicKey())
	payer.Lamports = 100 * sol
	store := ledger.NewMemoryStore(payer)
	proc, err := NewProcessor(ProcessorConfig{Logger: tdtesting.NewLogger(), Store: store})
	require.NoError(t, err)
	e := &testEnv{t: t, ctx: t.Context(), store: store, proc: proc, rent: ledger.DefaultRent, payer: payer.Address}
	require.NoError(t, proc.Initialize(e.ctx, &Initialize{Payer: e.payer}))
	return e
}

func (e *testEnv) balance(addr solana.PublicKey) uint64 {
	e.t.Helper()
	var lamports uint64
	require.NoError(e.t, e.store.View(e.ctx, func(r ledger.Reader) error {
		acc, err := ledger.GetOrEmpty(e.ctx, r, addr)
		if err != nil {
			return err
		}
		lamports = acc.Lamports
		return nil
	}))
	return lamports
}

func (e *testEnv) put(acc *ledger.Account) {
	e.t.Helper()
	require.NoError(e.t, e.store.Update(e.ctx, func(tx ledger.Tx) error {
		return tx.Put(e.ctx, acc)
	}))
}

func (e *testEnv) shard(i int) solana.PublicKey {
	e.t.Helper()
	addr, _, err := TipPaymentAccountAddress(e.proc.ProgramID(), i)
	require.NoError(e.t, err)
	return addr
}

func (e *testEnv) tip(shard uint8, amount uint64) {
	e.t.Helper()
	require.NoError(e.t, e.proc.Tip(e.ctx, &Tip{Payer: e.payer, Shard: shard, Amount: amount}))
}

// setRecipients installs receiver and builder, draining anything pending to
// the previous recipients.
func (e *testEnv) setRecipients(receiver, builder solana.PublicKey, pct uint64) {
	e.t.Helper()
	cfg, err := e.proc.GetConfig(e.ctx)
	require.NoError(e.t, err)
	_, err = e.proc.ChangeTipReceiver(e.ctx, &ChangeTipReceiver{
		OldTipReceiver: cfg.TipReceiver,
		NewTipReceiver: receiver,
		BlockBuilder:   cfg.BlockBuilder,
		Signer:         e.payer,
	})
	require.NoError(e.t, err)
	_, err = e.proc.ChangeBlockBuilder(e.ctx, &ChangeBlockBuilder{
		TipReceiver:               receiver,
		OldBlockBuilder:           cfg.BlockBuilder,
		NewBlockBuilder:           builder,
		BlockBuilderCommissionPct: pct,
		Signer:                    e.payer,
	})
	require.NoError(e.t, err)
}

func TestTipDist_TipPayment_Initialize(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	cfg, err := e.proc.GetConfig(e.ctx)
	require.NoError(t, err)
	require.Equal(t, e.payer, cfg.TipReceiver)
	require.Equal(t, e.payer, cfg.BlockBuilder)
	require.Zero(t, cfg.BlockBuilderCommissionPct)

	_, bumps, err := TipPaymentAccountAddresses(e.proc.ProgramID())
	require.NoError(t, err)
	require.Equal(t, bumps, cfg.Bumps.TipPaymentAccounts)

	for i := range NumTipPaymentAccounts {
		require.Equal(t, e.rent.MinimumBalance(TipPaymentAccountSize), e.balance(e.shard(i)))
	}
	pending, err := e.proc.PendingTips(e.ctx)
	require.NoError(t, err)
	require.Zero(t, pending)

	err = e.proc.Initialize(e.ctx, &Initialize{Payer: e.payer})
	require.ErrorIs(t, err, ledger.ErrAccountAlreadyExists)
}

func TestTipDist_TipPayment_HalfSplitOfOddTotal(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	receiver := solana.NewWallet().PublicKey()
	builder := solana.NewWallet().PublicKey()
	e.setRecipients(receiver, builder, 50)

	e.tip(0, 400_000_000)
	e.tip(3, 600_000_000)
	e.tip(7, 1)

	split, err := e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: receiver, BlockBuilder: builder, Signer: e.payer})
	require.NoError(t, err)
	require.Equal(t, Split{Total: 1_000_000_001, BlockBuilderFee: 500_000_000, TipReceiverFee: 500_000_001}, split)
	require.Equal(t, uint64(500_000_000), e.balance(builder))
	require.Equal(t, uint64(500_000_001), e.balance(receiver))
	for i := range NumTipPaymentAccounts {
		require.Equal(t, e.rent.MinimumBalance(TipPaymentAccountSize), e.balance(e.shard(i)))
	}
}

func TestTipDist_TipPayment_SplitFeesExact(t *testing.T) {
	t.Parallel()
	totals := []uint64{0, 1, 99, 100, 101, 1_000_000_001, math.MaxUint64 / 100, math.MaxUint64 - 1, math.MaxUint64}
	for pct := uint64(0); pct <= MaxBlockBuilderCommissionPct; pct++ {
		for _, total := range totals {
			builder, receiver, err := SplitFees(total, pct)
			require.NoError(t, err)
			require.Equal(t, total, builder+receiver)

			want := new(big.Int).Mul(new(big.Int).SetUint64(total), new(big.Int).SetUint64(pct))
			want.Quo(want, big.NewInt(100))
			require.Equal(t, want.Uint64(), builder, "total %d pct %d", total, pct)
		}
	}

	_, _, err := SplitFees(1, 101)
	require.ErrorIs(t, err, ErrInvalidFee)
}

func TestTipDist_TipPayment_RecipientChecks(t *testing.T) {
	t.Parallel()

	t.Run("claim with wrong tip receiver", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		e.tip(1, sol)
		_, err := e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: solana.NewWallet().PublicKey(), BlockBuilder: e.payer})
		require.ErrorIs(t, err, ErrInvalidTipReceiver)
		pending, err := e.proc.PendingTips(e.ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(sol), pending)
	})

	t.Run("claim with wrong block builder", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		_, err := e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: e.payer, BlockBuilder: solana.NewWallet().PublicKey()})
		require.ErrorIs(t, err, ErrInvalidBlockBuilder)
	})

	t.Run("change tip receiver with wrong old receiver", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		_, err := e.proc.ChangeTipReceiver(e.ctx, &ChangeTipReceiver{
			OldTipReceiver: solana.NewWallet().PublicKey(),
			NewTipReceiver: solana.NewWallet().PublicKey(),
			BlockBuilder:   e.payer,
		})
		require.ErrorIs(t, err, ErrInvalidTipReceiver)
	})

	t.Run("commission above 100 percent", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		e.tip(2, sol)
		_, err := e.proc.ChangeBlockBuilder(e.ctx, &ChangeBlockBuilder{
			TipReceiver:               e.payer,
			OldBlockBuilder:           e.payer,
			NewBlockBuilder:           solana.NewWallet().PublicKey(),
			BlockBuilderCommissionPct: 101,
		})
		require.ErrorIs(t, err, ErrInvalidFee)

		cfg, err := e.proc.GetConfig(e.ctx)
		require.NoError(t, err)
		require.Equal(t, e.payer, cfg.BlockBuilder)
		pending, err := e.proc.PendingTips(e.ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(sol), pending)
	})

	t.Run("tip into unknown shard", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		err := e.proc.Tip(e.ctx, &Tip{Payer: e.payer, Shard: NumTipPaymentAccounts, Amount: 1})
		require.ErrorIs(t, err, ErrInvalidShard)
	})
}

func TestTipDist_TipPayment_ChangesSettleUnderPreviousConfig(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	receiver := solana.NewWallet().PublicKey()
	builder := solana.NewWallet().PublicKey()
	e.setRecipients(receiver, builder, 10)

	e.tip(4, 10*sol)
	newBuilder := solana.NewWallet().PublicKey()
	split, err := e.proc.ChangeBlockBuilder(e.ctx, &ChangeBlockBuilder{
		TipReceiver:               receiver,
		OldBlockBuilder:           builder,
		NewBlockBuilder:           newBuilder,
		BlockBuilderCommissionPct: 90,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(sol), split.BlockBuilderFee)
	require.Equal(t, uint64(sol), e.balance(builder))
	require.Equal(t, uint64(9*sol), e.balance(receiver))

	e.tip(5, 10*sol)
	newReceiver := solana.NewWallet().PublicKey()
	split, err = e.proc.ChangeTipReceiver(e.ctx, &ChangeTipReceiver{
		OldTipReceiver: receiver,
		NewTipReceiver: newReceiver,
		BlockBuilder:   newBuilder,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(9*sol), split.BlockBuilderFee)
	require.Equal(t, uint64(9*sol), e.balance(newBuilder))
	require.Equal(t, uint64(10*sol), e.balance(receiver))
	require.Zero(t, e.balance(newReceiver))

	cfg, err := e.proc.GetConfig(e.ctx)
	require.NoError(t, err)
	require.Equal(t, newReceiver, cfg.TipReceiver)
	require.Equal(t, newBuilder, cfg.BlockBuilder)
	require.Equal(t, uint64(90), cfg.BlockBuilderCommissionPct)
}

func TestTipDist_TipPayment_RedirectsToFirstShard(t *testing.T) {
	t.Parallel()

	t.Run("executable receiver", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		program := &ledger.Account{
			Address:    solana.NewWallet().PublicKey(),
			Owner:      solana.BPFLoaderUpgradeableProgramID,
			Lamports:   e.rent.MinimumBalance(36),
			Executable: true,
			Data:       make([]byte, 36),
		}
		e.put(program)
		builder := solana.NewWallet().PublicKey()
		e.setRecipients(program.Address, builder, 0)

		e.tip(6, sol)
		split, err := e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: program.Address, BlockBuilder: builder})
		require.NoError(t, err)
		require.True(t, split.TipReceiverRedirected)
		require.Equal(t, e.rent.MinimumBalance(36), e.balance(program.Address))
		require.Equal(t, e.rent.MinimumBalance(TipPaymentAccountSize)+sol, e.balance(e.shard(0)))

		pending, err := e.proc.PendingTips(e.ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(sol), pending)
	})

	t.Run("reserved receiver", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		builder := solana.NewWallet().PublicKey()
		e.setRecipients(solana.SysVarClockPubkey, builder, 0)
		e.tip(0, sol)
		split, err := e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: solana.SysVarClockPubkey, BlockBuilder: builder})
		require.NoError(t, err)
		require.True(t, split.TipReceiverRedirected)
		require.Zero(t, e.balance(solana.SysVarClockPubkey))
	})

	t.Run("fee too small for a fresh account", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t)
		receiver := solana.NewWallet().PublicKey()
		builder := solana.NewWallet().PublicKey()
		e.setRecipients(receiver, builder, 50)

		e.tip(1, 2*sol+1000)
		split, err := e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: receiver, BlockBuilder: builder})
		require.NoError(t, err)
		require.False(t, split.BlockBuilderRedirected)
		require.False(t, split.TipReceiverRedirected)

		e.tip(1, 1000)
		split, err = e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: receiver, BlockBuilder: builder})
		require.NoError(t, err)
		require.False(t, split.BlockBuilderRedirected)
		require.False(t, split.TipReceiverRedirected)
		require.Equal(t, uint64(sol+1000), e.balance(builder))

		fresh := solana.NewWallet().PublicKey()
		e.setRecipients(fresh, builder, 50)
		e.tip(2, 1000)
		split, err = e.proc.ClaimTips(e.ctx, &ClaimTips{TipReceiver: fresh, BlockBuilder: builder})
		require.NoError(t, err)
		require.True(t, split.TipReceiverRedirected)
		require.Zero(t, e.balance(fresh))
	})
}

func TestTipDist_TipPayment_Conservation(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	rng := rand.New(rand.NewPCG(7, 11))

	receiver := solana.NewWallet().PublicKey()
	builder := solana.NewWallet().PublicKey()
	e.setRecipients(receiver, builder, 0)

	tracked := []solana.PublicKey{e.payer, receiver, builder}
	for i := range NumTipPaymentAccounts {
		tracked = append(tracked, e.shard(i))
	}
	sum := func() uint64 {
		var s uint64
		for _, addr := range tracked {
			s += e.balance(addr)
		}
		return s
	}
	before := sum()

	for range 20 {
		for range rng.IntN(5) {
			e.tip(uint8(rng.IntN(NumTipPaymentAccounts)), rng.Uint64N(sol))
		}
		pct := rng.Uint64N(MaxBlockBuilderCommissionPct + 1)
		_, err := e.proc.ChangeBlockBuilder(e.ctx, &ChangeBlockBuilder{
			TipReceiver:               receiver,
			OldBlockBuilder:           builder,
			NewBlockBuilder:           builder,
			BlockBuilderCommissionPct: pct,
		})
		require.NoError(t, err)
		require.Equal(t, before, sum())
	}
}

func TestTipDist_TipPayment_ExecuteRaw(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	data, err := EncodeInstruction(&Tip{Payer: e.payer, Shard: 5, Amount: 42})
	require.NoError(t, err)
	require.NoError(t, e.proc.ExecuteRaw(e.ctx, data))
	require.Equal(t, e.rent.MinimumBalance(TipPaymentAccountSize)+42, e.balance(e.shard(5)))

	err = e.proc.ExecuteRaw(e.ctx, []byte{1, 2, 3})
	require.ErrorIs(t, err, anchor.ErrInstructionFallbackNotFound)

	_, err = DecodeConfig(data)
	require.ErrorIs(t, err, anchor.ErrAccountDiscriminatorMismatch)
}
