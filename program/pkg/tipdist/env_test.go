package tipdist

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	"github.com/malbeclabs/tipdist/program/pkg/merkle"
	tdtesting "github.com/malbeclabs/tipdist/utils/pkg/testing"
)

const (
	voteStateSize = 3762
	sol           = 1_000_000_000
)

type testEnv struct {
	t     *testing.T
	ctx   context.Context
	store *ledger.MemoryStore
	proc  *Processor
	rent  ledger.Rent

	authority solana.PublicKey
	sink      solana.PublicKey
	payer     solana.PublicKey
	node      solana.PublicKey
	vote      solana.PublicKey
}

func newVoteAccount(rent ledger.Rent, node solana.PublicKey) *ledger.Account {
	data := make([]byte, voteStateSize)
	binary.LittleEndian.PutUint32(data[:4], 2)
	copy(data[4:36], node[:])
	return &ledger.Account{
		Address:  solana.NewWallet().PublicKey(),
		Owner:    solana.VoteProgramID,
		Lamports: rent.MinimumBalance(voteStateSize),
		Data:     data,
	}
}

// newTestEnv returns a processor over a memory store with an initialized
// Config, a funded payer, and one validator vote account.
func newTestEnv(t *testing.T, numEpochsValid uint64) *testEnv {
	t.Helper()

	rent := ledger.DefaultRent
	payer := ledger.NewSystemAccount(solana.NewWallet().PublicKey())
	payer.Lamports = 100 * sol
	node := solana.NewWallet().PublicKey()
	vote := newVoteAccount(rent, node)

	store := ledger.NewMemoryStore(payer, vote)
	proc, err := NewProcessor(ProcessorConfig{
		Logger: tdtesting.NewLogger(),
		Store:  store,
	})
	require.NoError(t, err)

	e := &testEnv{
		t:         t,
		ctx:       t.Context(),
		store:     store,
		proc:      proc,
		rent:      rent,
		authority: solana.NewWallet().PublicKey(),
		sink:      solana.NewWallet().PublicKey(),
		payer:     payer.Address,
		node:      node,
		vote:      vote.Address,
	}
	require.NoError(t, proc.Initialize(e.ctx, ledger.Clock{}, &Initialize{
		Authority:                 e.authority,
		ExpiredFundsAccount:       e.sink,
		NumEpochsValid:            numEpochsValid,
		MaxValidatorCommissionBps: 1000,
		Payer:                     e.payer,
	}))
	return e
}

func (e *testEnv) clock(epoch uint64) ledger.Clock {
	return ledger.Clock{Slot: epoch * 432_000, Epoch: epoch}
}

func (e *testEnv) createTDA(epoch uint64) solana.PublicKey {
	e.t.Helper()
	addr, err := e.proc.InitializeTipDistributionAccount(e.ctx, e.clock(epoch), &InitializeTipDistributionAccount{
		Signer:                    e.node,
		ValidatorVoteAccount:      e.vote,
		MerkleRootUploadAuthority: e.authority,
		ValidatorCommissionBps:    800,
		Payer:                     e.payer,
	})
	require.NoError(e.t, err)
	return addr
}

// fund credits tips to addr as block producers would.
func (e *testEnv) fund(addr solana.PublicKey, lamports uint64) {
	e.t.Helper()
	require.NoError(e.t, e.store.Update(e.ctx, func(tx ledger.Tx) error {
		acc, err := ledger.GetOrEmpty(e.ctx, tx, addr)
		if err != nil {
			return err
		}
		acc.Lamports += lamports
		return tx.Put(e.ctx, acc)
	}))
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

func (e *testEnv) exists(addr solana.PublicKey) bool {
	e.t.Helper()
	var found bool
	require.NoError(e.t, e.store.View(e.ctx, func(r ledger.Reader) error {
		_, err := r.Get(e.ctx, addr)
		found = err == nil
		return nil
	}))
	return found
}

type testLeaf struct {
	claimant solana.PublicKey
	amount   uint64
}

type testTree struct {
	tree   *merkle.Tree
	leaves []testLeaf
	total  uint64
}

func buildTree(t *testing.T, leaves ...testLeaf) *testTree {
	t.Helper()
	data := make([][]byte, len(leaves))
	var total uint64
	for i, l := range leaves {
		data[i] = merkle.ClaimLeaf(l.claimant, l.amount)
		total += l.amount
	}
	tree, err := merkle.New(data)
	require.NoError(t, err)
	return &testTree{tree: tree, leaves: leaves, total: total}
}

func (tt *testTree) proof(t *testing.T, i int) []solana.Hash {
	t.Helper()
	p, err := tt.tree.Proof(i)
	require.NoError(t, err)
	return p
}

func (e *testEnv) upload(epoch uint64, tda solana.PublicKey, tt *testTree) {
	e.t.Helper()
	require.NoError(e.t, e.proc.UploadMerkleRoot(e.ctx, e.clock(epoch), &UploadMerkleRoot{
		TipDistributionAccount: tda,
		Authority:              e.authority,
		Root:                   tt.tree.Root(),
		MaxTotalClaim:          tt.total,
		MaxNumNodes:            uint64(len(tt.leaves)),
	}))
}

func (e *testEnv) claim(epoch uint64, tda solana.PublicKey, l testLeaf, proof []solana.Hash) (*ClaimStatus, error) {
	return e.proc.Claim(e.ctx, e.clock(epoch), &Claim{
		TipDistributionAccount: tda,
		Claimant:               l.claimant,
		Payer:                  e.payer,
		Amount:                 l.amount,
		Proof:                  proof,
	})
}
