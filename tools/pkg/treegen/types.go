// Package treegen turns an epoch's stake snapshot into the Merkle trees
// that tip distribution accounts publish, and checks trees produced
// elsewhere.
package treegen

import (
	"github.com/gagliardetto/solana-go"
)

// StakeMetaCollection is the stake snapshot of one epoch.
type StakeMetaCollection struct {
	Epoch                    uint64           `json:"epoch"`
	Slot                     uint64           `json:"slot"`
	BankHash                 string           `json:"bank_hash"`
	TipDistributionProgramID solana.PublicKey `json:"tip_distribution_program_id"`
	StakeMetas               []StakeMeta      `json:"stake_metas"`
}

type StakeMeta struct {
	ValidatorVoteAccount solana.PublicKey     `json:"validator_vote_account"`
	ValidatorNodePubkey  solana.PublicKey     `json:"validator_node_pubkey"`
	TipDistributionMeta  *TipDistributionMeta `json:"maybe_tip_distribution_meta"`
	Delegations          []Delegation         `json:"delegations"`
	TotalDelegated       uint64               `json:"total_delegated"`
	Commission           uint8                `json:"commission"`
}

// TipDistributionMeta describes the validator's distribution account for
// the epoch. TotalTips excludes the account's rent-exempt reserve.
type TipDistributionMeta struct {
	MerkleRootUploadAuthority solana.PublicKey `json:"merkle_root_upload_authority"`
	TipDistributionPubkey     solana.PublicKey `json:"tip_distribution_pubkey"`
	TotalTips                 uint64           `json:"total_tips"`
	ValidatorFeeBps           uint16           `json:"validator_fee_bps"`
}

type Delegation struct {
	StakeAccountPubkey solana.PublicKey `json:"stake_account_pubkey"`
	StakerPubkey       solana.PublicKey `json:"staker_pubkey"`
	WithdrawerPubkey   solana.PublicKey `json:"withdrawer_pubkey"`
	LamportsDelegated  uint64           `json:"lamports_delegated"`
}

type GeneratedMerkleTreeCollection struct {
	Epoch                    uint64                `json:"epoch"`
	Slot                     uint64                `json:"slot"`
	BankHash                 string                `json:"bank_hash"`
	TipDistributionProgramID solana.PublicKey      `json:"tip_distribution_program_id"`
	GeneratedMerkleTrees     []GeneratedMerkleTree `json:"generated_merkle_trees"`
}

// GeneratedMerkleTree is everything needed to publish one distribution
// account's root and let its beneficiaries claim.
type GeneratedMerkleTree struct {
	TipDistributionAccount    solana.PublicKey `json:"tip_distribution_account"`
	MerkleRootUploadAuthority solana.PublicKey `json:"merkle_root_upload_authority"`
	ValidatorVoteAccount      solana.PublicKey `json:"validator_vote_account"`
	MerkleRoot                solana.Hash      `json:"merkle_root"`
	TreeNodes                 []TreeNode       `json:"tree_nodes"`
	MaxTotalClaim             uint64           `json:"max_total_claim"`
	MaxNumNodes               uint64           `json:"max_num_nodes"`
}

// TreeNode is one leaf with its proof. Proof entries are base58 digests
// ordered from the leaf's sibling up to the root's children.
type TreeNode struct {
	Claimant          solana.PublicKey `json:"claimant"`
	ClaimStatusPubkey solana.PublicKey `json:"claim_status_pubkey"`
	ClaimStatusBump   uint8            `json:"claim_status_bump"`
	StakerPubkey      solana.PublicKey `json:"staker_pubkey"`
	WithdrawerPubkey  solana.PublicKey `json:"withdrawer_pubkey"`
	Amount            uint64           `json:"amount"`
	Proof             []string         `json:"proof"`
}

// ProofHashes decodes the node's proof.
func (n *TreeNode) ProofHashes() ([]solana.Hash, error) {
	return decodeProof(n.Proof)
}
