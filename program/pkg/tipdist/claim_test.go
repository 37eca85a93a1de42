package tipdist

import (
	"math/rand/v2"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

func TestTipDist_Program_ClaimTwoLeafScenario(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, 3)
	a := testLeaf{solana.NewWallet().PublicKey(), 1_000_000}
	b := testLeaf{solana.NewWallet().PublicKey(), 2_000_000}
	tt := buildTree(t, a, b)

	tda := e.createTDA(10)
	e.fund(tda, tt.total)
	e.upload(11, tda, tt)
	reserve := e.rent.MinimumBalance(TipDistributionAccountSize)

	status, err := e.claim(11, tda, a, tt.proof(t, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), e.balance(a.claimant))
	require.True(t, status.IsClaimed)
	require.Equal(t, a.claimant, status.Claimant)
	require.Equal(t, e.payer, status.ClaimStatusPayer)
	require.Equal(t, uint64(1_000_000), status.Amount)
	require.Equal(t, uint64(13), status.ExpiresAt)
	require.Equal(t, e.clock(11).Slot, status.SlotClaimedAt)

	statusAddr, _, err := ClaimStatusAddress(e.proc.ProgramID(), a.claimant, tda)
	require.NoError(t, err)
	stored, err := e.proc.GetClaimStatus(e.ctx, statusAddr)
	require.NoError(t, err)
	require.Equal(t, *status, stored.Status)
	require.Equal(t, e.rent.MinimumBalance(ClaimStatusSize), stored.Lamports)

	payerBefore, tdaBefore := e.balance(e.payer), e.balance(tda)
	_, err = e.claim(11, tda, a, tt.proof(t, 0))
	require.ErrorIs(t, err, ErrFundsAlreadyClaimed)
	require.Equal(t, uint64(1_000_000), e.balance(a.claimant))
	require.Equal(t, payerBefore, e.balance(e.payer))
	require.Equal(t, tdaBefore, e.balance(tda))

	_, err = e.claim(11, tda, b, tt.proof(t, 0))
	require.ErrorIs(t, err, ErrInvalidProof)
	require.Zero(t, e.balance(b.claimant))

	_, err = e.claim(12, tda, b, tt.proof(t, 1))
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000), e.balance(b.claimant))
	require.Equal(t, reserve, e.balance(tda))

	entry, err := e.proc.GetTipDistributionAccount(e.ctx, tda)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000_000), entry.Account.MerkleRoot.TotalFundsClaimed)
	require.Equal(t, uint64(2), entry.Account.MerkleRoot.NumNodesClaimed)
}

func TestTipDist_Program_ClaimRejections(t *testing.T) {
	t.Parallel()

	a := testLeaf{solana.NewWallet().PublicKey(), 1_000_000}
	b := testLeaf{solana.NewWallet().PublicKey(), 2_000_000}

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, tt.total)
		e.upload(11, tda, tt)

		_, err := e.claim(14, tda, a, tt.proof(t, 0))
		require.ErrorIs(t, err, ErrExpiredTipDistributionAccount)
		_, err = e.claim(13, tda, a, tt.proof(t, 0))
		require.NoError(t, err)
	})

	t.Run("root not uploaded", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, tt.total)

		_, err := e.claim(11, tda, a, tt.proof(t, 0))
		require.ErrorIs(t, err, ErrRootNotUploaded)
	})

	t.Run("tampered amount", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, tt.total)
		e.upload(11, tda, tt)

		greedy := testLeaf{a.claimant, a.amount + 1}
		_, err := e.claim(11, tda, greedy, tt.proof(t, 0))
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("root maxima bound claims", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, tt.total)
		require.NoError(t, e.proc.UploadMerkleRoot(e.ctx, e.clock(11), &UploadMerkleRoot{
			TipDistributionAccount: tda,
			Authority:              e.authority,
			Root:                   tt.tree.Root(),
			MaxTotalClaim:          2_500_000,
			MaxNumNodes:            2,
		}))
		_, err := e.claim(11, tda, b, tt.proof(t, 1))
		require.NoError(t, err)
		_, err = e.claim(11, tda, a, tt.proof(t, 0))
		require.ErrorIs(t, err, ErrExceedsMaxClaim)
		require.Zero(t, e.balance(a.claimant))
	})

	t.Run("root node count bounds claims", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, tt.total)
		require.NoError(t, e.proc.UploadMerkleRoot(e.ctx, e.clock(11), &UploadMerkleRoot{
			TipDistributionAccount: tda,
			Authority:              e.authority,
			Root:                   tt.tree.Root(),
			MaxTotalClaim:          tt.total,
			MaxNumNodes:            1,
		}))
		_, err := e.claim(11, tda, a, tt.proof(t, 0))
		require.NoError(t, err)
		_, err = e.claim(11, tda, b, tt.proof(t, 1))
		require.ErrorIs(t, err, ErrExceedsMaxNumNodes)
	})

	t.Run("underfunded account keeps its reserve", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, 1_500_000)
		e.upload(11, tda, tt)

		_, err := e.claim(11, tda, b, tt.proof(t, 1))
		require.ErrorIs(t, err, ErrArithmeticError)
		require.ErrorIs(t, err, ledger.ErrRentExemptViolation)
		require.Equal(t, e.rent.MinimumBalance(TipDistributionAccountSize)+1_500_000, e.balance(tda))
	})

	t.Run("not live", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, tt.total)
		e.upload(11, tda, tt)

		c, err := e.proc.GetConfig(e.ctx)
		require.NoError(t, err)
		live := uint64(12)
		c.GoLiveEpoch = &live
		require.NoError(t, e.proc.UpdateConfig(e.ctx, e.clock(11), &UpdateConfig{Authority: e.authority, NewConfig: *c}))

		_, err = e.claim(11, tda, a, tt.proof(t, 0))
		require.ErrorIs(t, err, ErrNotLive)
		_, err = e.claim(12, tda, a, tt.proof(t, 0))
		require.NoError(t, err)
	})

	t.Run("payer without funds", func(t *testing.T) {
		t.Parallel()
		e := newTestEnv(t, 3)
		tt := buildTree(t, a, b)
		tda := e.createTDA(10)
		e.fund(tda, tt.total)
		e.upload(11, tda, tt)

		_, err := e.proc.Claim(e.ctx, e.clock(11), &Claim{
			TipDistributionAccount: tda,
			Claimant:               a.claimant,
			Payer:                  solana.NewWallet().PublicKey(),
			Amount:                 a.amount,
			Proof:                  tt.proof(t, 0),
		})
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)
		require.Zero(t, e.balance(a.claimant))
	})
}

func TestTipDist_Program_ClaimantPaysOwnReceipt(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, 3)
	claimant := solana.NewWallet().PublicKey()
	amount := uint64(5 * sol)
	tt := buildTree(t, testLeaf{claimant, amount})
	tda := e.createTDA(10)
	e.fund(tda, amount)
	e.upload(11, tda, tt)

	_, err := e.proc.Claim(e.ctx, e.clock(11), &Claim{
		TipDistributionAccount: tda,
		Claimant:               claimant,
		Payer:                  claimant,
		Amount:                 amount,
		Proof:                  tt.proof(t, 0),
	})
	require.NoError(t, err)
	require.Equal(t, amount-e.rent.MinimumBalance(ClaimStatusSize), e.balance(claimant))
}

func TestTipDist_Program_ClaimConservation(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t, 3)
	rng := rand.New(rand.NewPCG(1, 2))

	leaves := make([]testLeaf, 23)
	for i := range leaves {
		leaves[i] = testLeaf{solana.NewWallet().PublicKey(), 1 + rng.Uint64N(10*sol)}
	}
	tt := buildTree(t, leaves...)
	tda := e.createTDA(10)
	e.fund(tda, tt.total)
	e.upload(11, tda, tt)
	reserve := e.rent.MinimumBalance(TipDistributionAccountSize)

	var claimed uint64
	for round := 0; round < 2; round++ {
		for _, i := range rng.Perm(len(leaves)) {
			_, err := e.claim(11, tda, leaves[i], tt.proof(t, i))
			if round == 0 {
				require.NoError(t, err)
				claimed += leaves[i].amount
			} else {
				require.ErrorIs(t, err, ErrFundsAlreadyClaimed)
			}

			entry, err := e.proc.GetTipDistributionAccount(e.ctx, tda)
			require.NoError(t, err)
			root := entry.Account.MerkleRoot
			require.LessOrEqual(t, root.TotalFundsClaimed, root.MaxTotalClaim)
			require.LessOrEqual(t, root.NumNodesClaimed, root.MaxNumNodes)
			require.Equal(t, claimed, root.TotalFundsClaimed)
			require.GreaterOrEqual(t, entry.Lamports, reserve)
		}
	}
	require.Equal(t, reserve, e.balance(tda))

	statuses, err := e.proc.ListClaimStatuses(e.ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(leaves))
}
