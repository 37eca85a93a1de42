package tipdist

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	"github.com/malbeclabs/tipdist/program/pkg/merkle"
)

// Claim pays a committed amount to its claimant and records the receipt.
// The receipt address is unique per (claimant, account), so its creation
// is what makes a second claim fail.
func (p *Processor) Claim(ctx context.Context, clock ledger.Clock, ix *Claim) (*ClaimStatus, error) {
	statusAddr, bump, err := ClaimStatusAddress(p.cfg.ProgramID, ix.Claimant, ix.TipDistributionAccount)
	if err != nil {
		return nil, err
	}

	var status *ClaimStatus
	err = p.update(ctx, func(accs *ledger.Accounts) error {
		tdaAcc, tda, err := p.loadTipDistributionAccount(ctx, accs, ix.TipDistributionAccount)
		if err != nil {
			return err
		}
		_, c, err := p.loadConfig(ctx, accs)
		if err != nil {
			return err
		}
		if clock.Epoch > tda.ExpiresAt {
			return fmt.Errorf("%w: epoch %d, expired at %d", ErrExpiredTipDistributionAccount, clock.Epoch, tda.ExpiresAt)
		}
		if !c.IsLive(clock.Epoch) {
			return fmt.Errorf("%w: epoch %d", ErrNotLive, clock.Epoch)
		}

		statusAcc, err := accs.GetOrEmpty(ctx, statusAddr)
		if err != nil {
			return err
		}
		if statusAcc.IsInitialized() {
			return fmt.Errorf("%w: %s", ErrFundsAlreadyClaimed, statusAddr)
		}

		root := tda.MerkleRoot
		if root == nil {
			return ErrRootNotUploaded
		}
		if !merkle.Verify(merkle.ClaimLeaf(ix.Claimant, ix.Amount), ix.Proof, root.Root) {
			return ErrInvalidProof
		}

		claimant, err := accs.GetOrEmpty(ctx, ix.Claimant)
		if err != nil {
			return err
		}
		if err := ledger.Transfer(p.cfg.Rent, tdaAcc, claimant, ix.Amount); err != nil {
			return wrapTransfer(err)
		}

		total, carry := bits.Add64(root.TotalFundsClaimed, ix.Amount, 0)
		if carry != 0 {
			return ErrArithmeticError
		}
		if total > root.MaxTotalClaim {
			return fmt.Errorf("%w: %d > %d", ErrExceedsMaxClaim, total, root.MaxTotalClaim)
		}
		nodes, carry := bits.Add64(root.NumNodesClaimed, 1, 0)
		if carry != 0 {
			return ErrArithmeticError
		}
		if nodes > root.MaxNumNodes {
			return fmt.Errorf("%w: %d > %d", ErrExceedsMaxNumNodes, nodes, root.MaxNumNodes)
		}
		root.TotalFundsClaimed = total
		root.NumNodesClaimed = nodes
		if err := anchor.Save(tdaAcc, TipDistributionAccountDiscriminator, tda); err != nil {
			return err
		}

		status = &ClaimStatus{
			IsClaimed:        true,
			Claimant:         ix.Claimant,
			ClaimStatusPayer: ix.Payer,
			SlotClaimedAt:    clock.Slot,
			Amount:           ix.Amount,
			ExpiresAt:        tda.ExpiresAt,
			Bump:             bump,
		}
		return p.create(ctx, accs, ix.Payer, statusAddr, ClaimStatusDiscriminator, ClaimStatusSize, status)
	})
	if errors.Is(err, ledger.ErrAccountAlreadyExists) {
		return nil, fmt.Errorf("%w: %s", ErrFundsAlreadyClaimed, statusAddr)
	}
	if err != nil {
		return nil, err
	}

	p.log.Debug("tipdist: claimed", "tip_distribution_account", ix.TipDistributionAccount, "claimant", ix.Claimant, "amount", ix.Amount, "slot", clock.Slot)
	return status, nil
}
