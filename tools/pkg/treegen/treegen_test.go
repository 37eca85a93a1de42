package treegen

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/tipdist/program/pkg/merkle"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
	"github.com/malbeclabs/tipdist/utils/pkg/retry"
	tdtesting "github.com/malbeclabs/tipdist/utils/pkg/testing"
)

const sol = 1_000_000_000

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func delegation(lamports uint64) Delegation {
	return Delegation{
		StakeAccountPubkey: newKey(),
		StakerPubkey:       newKey(),
		WithdrawerPubkey:   newKey(),
		LamportsDelegated:  lamports,
	}
}

func stakeMeta(totalTips uint64, feeBps uint16, delegations ...Delegation) StakeMeta {
	var total uint64
	for _, d := range delegations {
		total += d.LamportsDelegated
	}
	return StakeMeta{
		ValidatorVoteAccount: newKey(),
		ValidatorNodePubkey:  newKey(),
		TipDistributionMeta: &TipDistributionMeta{
			MerkleRootUploadAuthority: newKey(),
			TipDistributionPubkey:     newKey(),
			TotalTips:                 totalTips,
			ValidatorFeeBps:           feeBps,
		},
		Delegations:    delegations,
		TotalDelegated: total,
	}
}

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(GeneratorConfig{Logger: tdtesting.NewLogger(), Concurrency: 2})
	require.NoError(t, err)
	return g
}

func TestTipDist_TreeGen_Generate(t *testing.T) {
	t.Parallel()

	small, large := delegation(100*sol), delegation(300*sol)
	withTips := stakeMeta(10*sol, 800, small, large)
	noTips := stakeMeta(0, 800, delegation(sol))
	noAccount := stakeMeta(sol, 0, delegation(sol))
	noAccount.TipDistributionMeta = nil

	in := &StakeMetaCollection{
		Epoch:      42,
		Slot:       42 * 432_000,
		BankHash:   "bank",
		StakeMetas: []StakeMeta{noTips, withTips, noAccount},
	}
	out, err := newGenerator(t).Generate(t.Context(), in)
	require.NoError(t, err)
	require.Equal(t, tipdist.DefaultProgramID, out.TipDistributionProgramID)
	require.Equal(t, uint64(42), out.Epoch)
	require.Len(t, out.GeneratedMerkleTrees, 1)

	tree := out.GeneratedMerkleTrees[0]
	require.Equal(t, withTips.TipDistributionMeta.TipDistributionPubkey, tree.TipDistributionAccount)
	require.Len(t, tree.TreeNodes, 3)
	require.Equal(t, uint64(3), tree.MaxNumNodes)

	require.Equal(t, withTips.ValidatorVoteAccount, tree.TreeNodes[0].Claimant)
	require.Equal(t, uint64(800_000_000), tree.TreeNodes[0].Amount)
	require.Equal(t, small.StakeAccountPubkey, tree.TreeNodes[1].Claimant)
	require.Equal(t, uint64(2_300_000_000), tree.TreeNodes[1].Amount)
	require.Equal(t, large.StakeAccountPubkey, tree.TreeNodes[2].Claimant)
	require.Equal(t, large.WithdrawerPubkey, tree.TreeNodes[2].WithdrawerPubkey)
	require.Equal(t, uint64(6_900_000_000), tree.TreeNodes[2].Amount)
	require.Equal(t, uint64(10*sol), tree.MaxTotalClaim)

	addr, bump, err := tipdist.ClaimStatusAddress(tipdist.DefaultProgramID, small.StakeAccountPubkey, tree.TipDistributionAccount)
	require.NoError(t, err)
	require.Equal(t, addr, tree.TreeNodes[1].ClaimStatusPubkey)
	require.Equal(t, bump, tree.TreeNodes[1].ClaimStatusBump)

	proof, err := decodeProof(tree.TreeNodes[2].Proof)
	require.NoError(t, err)
	require.True(t, merkle.Verify(merkle.ClaimLeaf(large.StakeAccountPubkey, 6_900_000_000), proof, tree.MerkleRoot))

	require.NoError(t, Verify(out))
}

func TestTipDist_TreeGen_RoundingLeavesDust(t *testing.T) {
	t.Parallel()
	in := &StakeMetaCollection{StakeMetas: []StakeMeta{
		stakeMeta(10, 0, delegation(1), delegation(1), delegation(1)),
	}}
	out, err := newGenerator(t).Generate(t.Context(), in)
	require.NoError(t, err)
	require.Len(t, out.GeneratedMerkleTrees, 1)

	tree := out.GeneratedMerkleTrees[0]
	require.Len(t, tree.TreeNodes, 3)
	for _, n := range tree.TreeNodes {
		require.Equal(t, uint64(3), n.Amount)
	}
	require.Equal(t, uint64(9), tree.MaxTotalClaim)
}

func TestTipDist_TreeGen_MergesRepeatedClaimants(t *testing.T) {
	t.Parallel()
	d := delegation(sol)
	meta := stakeMeta(1000, 0, d, d)
	meta.TotalDelegated = 2 * sol
	out, err := newGenerator(t).Generate(t.Context(), &StakeMetaCollection{StakeMetas: []StakeMeta{meta}})
	require.NoError(t, err)
	tree := out.GeneratedMerkleTrees[0]
	require.Len(t, tree.TreeNodes, 1)
	require.Equal(t, uint64(1000), tree.TreeNodes[0].Amount)
	require.NoError(t, Verify(out))
}

func TestTipDist_TreeGen_RejectsBadInput(t *testing.T) {
	t.Parallel()

	t.Run("validator fee above 100 percent", func(t *testing.T) {
		t.Parallel()
		in := &StakeMetaCollection{StakeMetas: []StakeMeta{stakeMeta(sol, 10_001, delegation(sol))}}
		_, err := newGenerator(t).Generate(t.Context(), in)
		require.ErrorIs(t, err, ErrInvalidValidatorFee)
	})

	t.Run("delegations exceed total", func(t *testing.T) {
		t.Parallel()
		meta := stakeMeta(sol, 0, delegation(2), delegation(2))
		meta.TotalDelegated = 1
		_, err := newGenerator(t).Generate(t.Context(), &StakeMetaCollection{StakeMetas: []StakeMeta{meta}})
		require.ErrorIs(t, err, ErrInconsistentStake)
	})
}

func TestTipDist_TreeGen_VerifyDetectsTampering(t *testing.T) {
	t.Parallel()
	in := &StakeMetaCollection{StakeMetas: []StakeMeta{
		stakeMeta(5*sol, 500, delegation(sol), delegation(2*sol), delegation(3*sol)),
	}}
	generate := func() *GeneratedMerkleTreeCollection {
		out, err := newGenerator(t).Generate(t.Context(), in)
		require.NoError(t, err)
		return out
	}

	out := generate()
	out.GeneratedMerkleTrees[0].TreeNodes[1].Amount++
	require.ErrorIs(t, Verify(out), ErrTotalsMismatch)

	out = generate()
	out.GeneratedMerkleTrees[0].TreeNodes[1].Amount++
	out.GeneratedMerkleTrees[0].MaxTotalClaim++
	require.ErrorIs(t, Verify(out), ErrRootMismatch)

	out = generate()
	nodes := out.GeneratedMerkleTrees[0].TreeNodes
	nodes[0].Proof, nodes[1].Proof = nodes[1].Proof, nodes[0].Proof
	require.ErrorIs(t, Verify(out), ErrProofInvalid)

	out = generate()
	out.GeneratedMerkleTrees[0].TreeNodes[2].ClaimStatusPubkey = newKey()
	require.ErrorIs(t, Verify(out), ErrClaimStatusInvalid)
}

func TestTipDist_TreeGen_FileIO(t *testing.T) {
	t.Parallel()
	in := &StakeMetaCollection{Epoch: 7, StakeMetas: []StakeMeta{stakeMeta(sol, 1000, delegation(sol))}}
	out, err := newGenerator(t).Generate(t.Context(), in)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "trees.json")
	require.NoError(t, WriteGeneratedMerkleTreeCollection(path, out))
	got, err := ReadGeneratedMerkleTreeCollection(path)
	require.NoError(t, err)
	require.Equal(t, out, got)
	require.NoError(t, Verify(got))

	_, err = ReadStakeMetaCollection(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

type fakeS3 struct {
	mu       sync.Mutex
	failures int
	objects  map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset by peer")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func TestTipDist_TreeGen_S3Upload(t *testing.T) {
	t.Parallel()
	client := &fakeS3{failures: 1, objects: map[string][]byte{}}
	u, err := NewS3Uploader(S3UploaderConfig{
		Logger: tdtesting.NewLogger(),
		Client: client,
		Bucket: "trees",
		Prefix: "mainnet",
		Retry:  retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	require.NoError(t, err)

	out, err := newGenerator(t).Generate(t.Context(), &StakeMetaCollection{Epoch: 9, StakeMetas: []StakeMeta{stakeMeta(sol, 0, delegation(sol))}})
	require.NoError(t, err)

	key, err := u.Upload(t.Context(), out)
	require.NoError(t, err)
	require.Equal(t, "mainnet/9/merkle-trees.json", key)
	require.Contains(t, client.objects, "trees/mainnet/9/merkle-trees.json")
	require.Contains(t, string(client.objects["trees/mainnet/9/merkle-trees.json"]), out.GeneratedMerkleTrees[0].MerkleRoot.String())

	_, err = NewS3Uploader(S3UploaderConfig{Logger: tdtesting.NewLogger(), Client: client})
	require.Error(t, err)
}
