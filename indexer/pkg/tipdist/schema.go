package idxtipdist

import (
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
)

const (
	tipDistributionAccountsTable = "dim_tip_distribution_accounts"
	claimStatusesTable           = "fact_claim_statuses"
)

// TipDistributionAccount is one row of the distribution account dimension.
type TipDistributionAccount struct {
	Address                   string
	ValidatorVoteAccount      string
	MerkleRootUploadAuthority string
	EpochCreatedAt            uint64
	ExpiresAt                 uint64
	ValidatorCommissionBps    uint16
	Lamports                  uint64
	MerkleRoot                *string
	MaxTotalClaim             uint64
	MaxNumNodes               uint64
	TotalFundsClaimed         uint64
	NumNodesClaimed           uint64
}

type ClaimStatus struct {
	Address          string
	Claimant         string
	ClaimStatusPayer string
	SlotClaimedAt    uint64
	Amount           uint64
	ExpiresAt        uint64
}

func convertTipDistributionAccount(e tipdist.TipDistributionAccountEntry) TipDistributionAccount {
	row := TipDistributionAccount{
		Address:                   e.Address.String(),
		ValidatorVoteAccount:      e.Account.ValidatorVoteAccount.String(),
		MerkleRootUploadAuthority: e.Account.MerkleRootUploadAuthority.String(),
		EpochCreatedAt:            e.Account.EpochCreatedAt,
		ExpiresAt:                 e.Account.ExpiresAt,
		ValidatorCommissionBps:    e.Account.ValidatorCommissionBps,
		Lamports:                  e.Lamports,
	}
	if r := e.Account.MerkleRoot; r != nil {
		root := r.Root.String()
		row.MerkleRoot = &root
		row.MaxTotalClaim = r.MaxTotalClaim
		row.MaxNumNodes = r.MaxNumNodes
		row.TotalFundsClaimed = r.TotalFundsClaimed
		row.NumNodesClaimed = r.NumNodesClaimed
	}
	return row
}

func convertClaimStatus(e tipdist.ClaimStatusEntry) ClaimStatus {
	return ClaimStatus{
		Address:          e.Address.String(),
		Claimant:         e.Status.Claimant.String(),
		ClaimStatusPayer: e.Status.ClaimStatusPayer.String(),
		SlotClaimedAt:    e.Status.SlotClaimedAt,
		Amount:           e.Status.Amount,
		ExpiresAt:        e.Status.ExpiresAt,
	}
}
