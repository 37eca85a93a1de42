package treegen

import (
	"errors"
	"fmt"

	"github.com/malbeclabs/tipdist/program/pkg/merkle"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
)

var (
	ErrRootMismatch       = errors.New("merkle root does not match tree nodes")
	ErrProofInvalid       = errors.New("proof does not verify")
	ErrClaimStatusInvalid = errors.New("claim status address does not match claimant")
	ErrTotalsMismatch     = errors.New("max_total_claim or max_num_nodes does not match tree nodes")
)

// Verify re-derives every root, proof, and claim status address of the
// collection.
func Verify(coll *GeneratedMerkleTreeCollection) error {
	for i := range coll.GeneratedMerkleTrees {
		tree := &coll.GeneratedMerkleTrees[i]
		if err := verifyTree(coll, tree); err != nil {
			return fmt.Errorf("tip distribution account %s: %w", tree.TipDistributionAccount, err)
		}
	}
	return nil
}

func verifyTree(coll *GeneratedMerkleTreeCollection, tree *GeneratedMerkleTree) error {
	leaves := make([][]byte, len(tree.TreeNodes))
	var total uint64
	for i, n := range tree.TreeNodes {
		leaves[i] = merkle.ClaimLeaf(n.Claimant, n.Amount)
		sum := total + n.Amount
		if sum < total {
			return fmt.Errorf("%w: total overflows", ErrTotalsMismatch)
		}
		total = sum
	}
	if total != tree.MaxTotalClaim || uint64(len(tree.TreeNodes)) != tree.MaxNumNodes {
		return fmt.Errorf("%w: nodes total %d over %d nodes", ErrTotalsMismatch, total, len(tree.TreeNodes))
	}

	mt, err := merkle.New(leaves)
	if err != nil {
		return err
	}
	if mt.Root() != tree.MerkleRoot {
		return fmt.Errorf("%w: computed %s, stored %s", ErrRootMismatch, mt.Root(), tree.MerkleRoot)
	}

	for i, n := range tree.TreeNodes {
		proof, err := n.ProofHashes()
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if !merkle.Verify(leaves[i], proof, tree.MerkleRoot) {
			return fmt.Errorf("%w: node %d claimant %s", ErrProofInvalid, i, n.Claimant)
		}
		addr, bump, err := tipdist.ClaimStatusAddress(coll.TipDistributionProgramID, n.Claimant, tree.TipDistributionAccount)
		if err != nil {
			return err
		}
		if addr != n.ClaimStatusPubkey || bump != n.ClaimStatusBump {
			return fmt.Errorf("%w: node %d claimant %s", ErrClaimStatusInvalid, i, n.Claimant)
		}
	}
	return nil
}
