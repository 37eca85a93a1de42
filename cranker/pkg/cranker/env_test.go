package cranker

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
	"github.com/malbeclabs/tipdist/tools/pkg/treegen"
	"github.com/malbeclabs/tipdist/utils/pkg/retry"
	tdtesting "github.com/malbeclabs/tipdist/utils/pkg/testing"
)

const sol uint64 = 1_000_000_000

const (
	numEpochsValid = 3
	createdAt      = 10
)

type mockRPC struct {
	epoch atomic.Uint64
	err   atomic.Pointer[error]
}

func (m *mockRPC) GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetEpochInfoResult, error) {
	if err := m.err.Load(); err != nil {
		return nil, *err
	}
	epoch := m.epoch.Load()
	return &solanarpc.GetEpochInfoResult{
		AbsoluteSlot: epoch * 432_000,
		Epoch:        epoch,
		SlotIndex:    0,
		SlotsInEpoch: 432_000,
	}, nil
}

type testEnv struct {
	t     *testing.T
	ctx   context.Context
	store *ledger.MemoryStore
	proc  *tipdist.Processor
	rpc   *mockRPC
	clock *clockwork.FakeClock

	authority solana.PublicKey
	sink      solana.PublicKey
	payer     solana.PublicKey
	node      solana.PublicKey
	vote      solana.PublicKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rent := ledger.DefaultRent
	payer := ledger.NewSystemAccount(solana.NewWallet().PublicKey())
	payer.Lamports = 100 * sol

	node := solana.NewWallet().PublicKey()
	data := make([]byte, 3762)
	binary.LittleEndian.PutUint32(data[:4], 2)
	copy(data[4:36], node[:])
	vote := &ledger.Account{
		Address:  solana.NewWallet().PublicKey(),
		Owner:    solana.VoteProgramID,
		Lamports: rent.MinimumBalance(len(data)),
		Data:     data,
	}

	store := ledger.NewMemoryStore(payer, vote)
	proc, err := tipdist.NewProcessor(tipdist.ProcessorConfig{
		Logger: tdtesting.NewLogger(),
		Store:  store,
	})
	require.NoError(t, err)

	e := &testEnv{
		t:         t,
		ctx:       t.Context(),
		store:     store,
		proc:      proc,
		rpc:       &mockRPC{},
		clock:     clockwork.NewFakeClock(),
		authority: solana.NewWallet().PublicKey(),
		sink:      solana.NewWallet().PublicKey(),
		payer:     payer.Address,
		node:      node,
		vote:      vote.Address,
	}
	e.rpc.epoch.Store(createdAt)
	require.NoError(t, proc.Initialize(e.ctx, ledger.Clock{}, &tipdist.Initialize{
		Authority:                 e.authority,
		ExpiredFundsAccount:       e.sink,
		NumEpochsValid:            numEpochsValid,
		MaxValidatorCommissionBps: 1000,
		Payer:                     e.payer,
	}))
	return e
}

func (e *testEnv) ledgerClock(epoch uint64) ledger.Clock {
	return ledger.Clock{Slot: epoch * 432_000, Epoch: epoch}
}

func (e *testEnv) setEpoch(epoch uint64) {
	e.rpc.epoch.Store(epoch)
}

func (e *testEnv) newCranker() *Cranker {
	e.t.Helper()
	c, err := New(Config{
		Logger:    tdtesting.NewLogger(),
		Clock:     e.clock,
		RPC:       e.rpc,
		Program:   e.proc,
		RateLimit: rate.Inf,
		Retry:     retry.Config{MaxAttempts: 1},
	})
	require.NoError(e.t, err)
	return c
}

func (e *testEnv) newClaimer() *Claimer {
	e.t.Helper()
	c, err := NewClaimer(ClaimerConfig{
		Logger:    tdtesting.NewLogger(),
		Clock:     e.clock,
		RPC:       e.rpc,
		Program:   e.proc,
		Payer:     e.payer,
		RateLimit: rate.Inf,
		Retry:     retry.Config{MaxAttempts: 1},
	})
	require.NoError(e.t, err)
	return c
}

// distribute creates a distribution account at createdAt holding tips,
// generates its tree over the given stakes and publishes the root one
// epoch later.
func (e *testEnv) distribute(tips uint64, stakes ...uint64) (solana.PublicKey, *treegen.GeneratedMerkleTreeCollection) {
	e.t.Helper()

	tda, err := e.proc.InitializeTipDistributionAccount(e.ctx, e.ledgerClock(createdAt), &tipdist.InitializeTipDistributionAccount{
		Signer:                    e.node,
		ValidatorVoteAccount:      e.vote,
		MerkleRootUploadAuthority: e.authority,
		ValidatorCommissionBps:    800,
		Payer:                     e.payer,
	})
	require.NoError(e.t, err)
	e.fund(tda, tips)

	meta := treegen.StakeMeta{
		ValidatorVoteAccount: e.vote,
		ValidatorNodePubkey:  e.node,
		TipDistributionMeta: &treegen.TipDistributionMeta{
			MerkleRootUploadAuthority: e.authority,
			TipDistributionPubkey:     tda,
			TotalTips:                 tips,
			ValidatorFeeBps:           800,
		},
	}
	for _, s := range stakes {
		meta.Delegations = append(meta.Delegations, treegen.Delegation{
			StakeAccountPubkey: solana.NewWallet().PublicKey(),
			StakerPubkey:       solana.NewWallet().PublicKey(),
			WithdrawerPubkey:   solana.NewWallet().PublicKey(),
			LamportsDelegated:  s,
		})
		meta.TotalDelegated += s
	}

	g, err := treegen.NewGenerator(treegen.GeneratorConfig{Logger: tdtesting.NewLogger()})
	require.NoError(e.t, err)
	coll, err := g.Generate(e.ctx, &treegen.StakeMetaCollection{
		Epoch:                    createdAt,
		Slot:                     createdAt * 432_000,
		TipDistributionProgramID: e.proc.ProgramID(),
		StakeMetas:               []treegen.StakeMeta{meta},
	})
	require.NoError(e.t, err)
	require.Len(e.t, coll.GeneratedMerkleTrees, 1)

	tree := coll.GeneratedMerkleTrees[0]
	require.NoError(e.t, e.proc.UploadMerkleRoot(e.ctx, e.ledgerClock(createdAt+1), &tipdist.UploadMerkleRoot{
		TipDistributionAccount: tda,
		Authority:              e.authority,
		Root:                   tree.MerkleRoot,
		MaxTotalClaim:          tree.MaxTotalClaim,
		MaxNumNodes:            tree.MaxNumNodes,
	}))
	return tda, coll
}

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
