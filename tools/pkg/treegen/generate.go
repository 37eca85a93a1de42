package treegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/tipdist/program/pkg/merkle"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
)

const maxValidatorFeeBps = 10_000

var (
	ErrInvalidValidatorFee = errors.New("validator fee exceeds 10000 bps")
	ErrInconsistentStake   = errors.New("delegations exceed the validator's total delegated stake")
	ErrOverflow            = errors.New("amount overflows u64")
)

type GeneratorConfig struct {
	Logger *slog.Logger
	// Concurrency bounds how many validators' trees are built at once.
	Concurrency int
}

func (cfg *GeneratorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	return nil
}

type Generator struct {
	log *slog.Logger
	cfg GeneratorConfig
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{log: cfg.Logger, cfg: cfg}, nil
}

// Generate builds one tree per validator with a distribution account
// holding tips. The validator's commission goes to its vote account and
// the rest is split pro rata over its delegations, rounding down.
func (g *Generator) Generate(ctx context.Context, in *StakeMetaCollection) (*GeneratedMerkleTreeCollection, error) {
	programID := in.TipDistributionProgramID
	if programID.IsZero() {
		programID = tipdist.DefaultProgramID
	}

	trees := make([]*GeneratedMerkleTree, len(in.StakeMetas))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)
	for i := range in.StakeMetas {
		meta := &in.StakeMetas[i]
		if meta.TipDistributionMeta == nil || meta.TipDistributionMeta.TotalTips == 0 {
			continue
		}
		eg.Go(func() error {
			tree, err := buildTree(ctx, programID, meta)
			if err != nil {
				return fmt.Errorf("validator %s: %w", meta.ValidatorVoteAccount, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := &GeneratedMerkleTreeCollection{
		Epoch:                    in.Epoch,
		Slot:                     in.Slot,
		BankHash:                 in.BankHash,
		TipDistributionProgramID: programID,
	}
	for _, tree := range trees {
		if tree != nil {
			out.GeneratedMerkleTrees = append(out.GeneratedMerkleTrees, *tree)
		}
	}
	g.log.Info("treegen: generated merkle trees", "epoch", in.Epoch, "validators", len(in.StakeMetas), "trees", len(out.GeneratedMerkleTrees))
	return out, nil
}

func buildTree(ctx context.Context, programID solana.PublicKey, meta *StakeMeta) (*GeneratedMerkleTree, error) {
	nodes, err := allocate(meta)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	tda := meta.TipDistributionMeta.TipDistributionPubkey
	leaves := make([][]byte, len(nodes))
	var total uint64
	for i := range nodes {
		n := &nodes[i]
		if n.ClaimStatusPubkey, n.ClaimStatusBump, err = tipdist.ClaimStatusAddress(programID, n.Claimant, tda); err != nil {
			return nil, err
		}
		leaves[i] = merkle.ClaimLeaf(n.Claimant, n.Amount)
		total += n.Amount
	}

	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, err
	}
	proofs, err := tree.Proofs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range nodes {
		nodes[i].Proof = encodeProof(proofs[i])
	}

	return &GeneratedMerkleTree{
		TipDistributionAccount:    tda,
		MerkleRootUploadAuthority: meta.TipDistributionMeta.MerkleRootUploadAuthority,
		ValidatorVoteAccount:      meta.ValidatorVoteAccount,
		MerkleRoot:                tree.Root(),
		TreeNodes:                 nodes,
		MaxTotalClaim:             total,
		MaxNumNodes:               uint64(len(nodes)),
	}, nil
}

// allocate computes the claimable amounts of a validator's tips. Nodes
// with a zero amount are dropped and repeated claimants are merged.
func allocate(meta *StakeMeta) ([]TreeNode, error) {
	tdm := meta.TipDistributionMeta
	if tdm.ValidatorFeeBps > maxValidatorFeeBps {
		return nil, fmt.Errorf("%w: %d", ErrInvalidValidatorFee, tdm.ValidatorFeeBps)
	}
	validatorAmount, err := mulDiv(tdm.TotalTips, uint64(tdm.ValidatorFeeBps), maxValidatorFeeBps)
	if err != nil {
		return nil, err
	}
	remaining := tdm.TotalTips - validatorAmount

	var (
		nodes   []TreeNode
		index   = make(map[solana.PublicKey]int)
		granted uint64
	)
	add := func(n TreeNode) error {
		if n.Amount == 0 {
			return nil
		}
		granted += n.Amount
		if granted > tdm.TotalTips || granted < n.Amount {
			return ErrInconsistentStake
		}
		if i, ok := index[n.Claimant]; ok {
			nodes[i].Amount += n.Amount
			return nil
		}
		index[n.Claimant] = len(nodes)
		nodes = append(nodes, n)
		return nil
	}

	if err := add(TreeNode{
		Claimant:         meta.ValidatorVoteAccount,
		StakerPubkey:     meta.ValidatorNodePubkey,
		WithdrawerPubkey: meta.ValidatorNodePubkey,
		Amount:           validatorAmount,
	}); err != nil {
		return nil, err
	}
	if meta.TotalDelegated == 0 {
		return nodes, nil
	}
	for _, d := range meta.Delegations {
		amount, err := mulDiv(remaining, d.LamportsDelegated, meta.TotalDelegated)
		if err != nil {
			return nil, err
		}
		if err := add(TreeNode{
			Claimant:         d.StakeAccountPubkey,
			StakerPubkey:     d.StakerPubkey,
			WithdrawerPubkey: d.WithdrawerPubkey,
			Amount:           amount,
		}); err != nil {
			return nil, fmt.Errorf("stake account %s: %w", d.StakeAccountPubkey, err)
		}
	}
	return nodes, nil
}

// mulDiv returns floor(a*b/d) computed without intermediate overflow.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, errors.New("division by zero")
	}
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

func encodeProof(proof []solana.Hash) []string {
	out := make([]string, len(proof))
	for i, h := range proof {
		out[i] = base58.Encode(h[:])
	}
	return out
}

func decodeProof(proof []string) ([]solana.Hash, error) {
	out := make([]solana.Hash, len(proof))
	for i, s := range proof {
		b, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("proof entry %d: %w", i, err)
		}
		if len(b) != solana.PublicKeyLength {
			return nil, fmt.Errorf("proof entry %d: got %d bytes", i, len(b))
		}
		out[i] = solana.Hash(solana.PublicKeyFromBytes(b))
	}
	return out, nil
}
