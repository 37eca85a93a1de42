package tipdist

import (
	"context"
	"errors"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

// InitializeTipDistributionAccount creates the account of a validator for
// the current epoch and returns its address.
func (p *Processor) InitializeTipDistributionAccount(ctx context.Context, clock ledger.Clock, ix *InitializeTipDistributionAccount) (solana.PublicKey, error) {
	addr, bump, err := TipDistributionAccountAddress(p.cfg.ProgramID, ix.ValidatorVoteAccount, clock.Epoch)
	if err != nil {
		return solana.PublicKey{}, err
	}

	err = p.update(ctx, func(accs *ledger.Accounts) error {
		_, c, err := p.loadConfig(ctx, accs)
		if err != nil {
			return err
		}
		if ix.ValidatorCommissionBps > c.MaxValidatorCommissionBps {
			return fmt.Errorf("%w: %d > %d", ErrMaxValidatorCommissionFeeBpsExceeded, ix.ValidatorCommissionBps, c.MaxValidatorCommissionBps)
		}

		vote, err := accs.Get(ctx, ix.ValidatorVoteAccount)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidVoteAccountData, ix.ValidatorVoteAccount, err)
		}
		node, err := NodePubkey(vote)
		if err != nil {
			return err
		}
		if ix.Signer != node {
			return fmt.Errorf("%w: signer is not the node identity of %s", ErrUnauthorized, ix.ValidatorVoteAccount)
		}

		expiresAt, carry := bits.Add64(clock.Epoch, c.NumEpochsValid, 0)
		if carry != 0 {
			return ErrArithmeticError
		}
		tda := &TipDistributionAccount{
			ValidatorVoteAccount:      ix.ValidatorVoteAccount,
			MerkleRootUploadAuthority: ix.MerkleRootUploadAuthority,
			EpochCreatedAt:            clock.Epoch,
			ValidatorCommissionBps:    ix.ValidatorCommissionBps,
			ExpiresAt:                 expiresAt,
			Bump:                      bump,
		}
		if err := tda.Validate(); err != nil {
			return err
		}
		return p.create(ctx, accs, ix.Payer, addr, TipDistributionAccountDiscriminator, TipDistributionAccountSize, tda)
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	p.log.Debug("tipdist: initialized tip distribution account", "address", addr, "vote_account", ix.ValidatorVoteAccount, "epoch", clock.Epoch)
	return addr, nil
}

// UploadMerkleRoot publishes or replaces the root of a distribution account.
// A root can be replaced only while nothing has been claimed against it.
func (p *Processor) UploadMerkleRoot(ctx context.Context, clock ledger.Clock, ix *UploadMerkleRoot) error {
	return p.update(ctx, func(accs *ledger.Accounts) error {
		acc, tda, err := p.loadTipDistributionAccount(ctx, accs, ix.TipDistributionAccount)
		if err != nil {
			return err
		}
		switch {
		case ix.Authority != tda.MerkleRootUploadAuthority:
			return fmt.Errorf("%w: upload authority is %s", ErrUnauthorized, tda.MerkleRootUploadAuthority)
		case clock.Epoch <= tda.EpochCreatedAt:
			return fmt.Errorf("%w: epoch %d, created at %d", ErrPrematureMerkleRootUpload, clock.Epoch, tda.EpochCreatedAt)
		case clock.Epoch > tda.ExpiresAt:
			return fmt.Errorf("%w: epoch %d, expired at %d", ErrExpiredTipDistributionAccount, clock.Epoch, tda.ExpiresAt)
		case tda.MerkleRoot != nil && tda.MerkleRoot.NumNodesClaimed > 0:
			return fmt.Errorf("%w: %d nodes claimed", ErrRootAlreadyClaimedFrom, tda.MerkleRoot.NumNodesClaimed)
		}

		tda.MerkleRoot = &MerkleRoot{
			Root:          ix.Root,
			MaxTotalClaim: ix.MaxTotalClaim,
			MaxNumNodes:   ix.MaxNumNodes,
		}
		if err := anchor.Save(acc, TipDistributionAccountDiscriminator, tda); err != nil {
			return err
		}
		p.log.Debug("tipdist: uploaded merkle root", "address", ix.TipDistributionAccount, "root", ix.Root, "max_total_claim", ix.MaxTotalClaim, "max_num_nodes", ix.MaxNumNodes)
		return nil
	})
}

func (p *Processor) loadUploadConfig(ctx context.Context, accs *ledger.Accounts) (*ledger.Account, *MerkleRootUploadConfig, error) {
	addr, _, err := MerkleRootUploadConfigAddress(p.cfg.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	var uc MerkleRootUploadConfig
	acc, err := p.load(ctx, accs, addr, MerkleRootUploadConfigDiscriminator, &uc)
	if err != nil {
		return nil, nil, fmt.Errorf("merkle root upload config: %w", err)
	}
	return acc, &uc, nil
}

func (p *Processor) requireConfigAuthority(ctx context.Context, accs *ledger.Accounts, authority solana.PublicKey) error {
	_, c, err := p.loadConfig(ctx, accs)
	if err != nil {
		return err
	}
	if authority != c.Authority {
		return fmt.Errorf("%w: config authority is %s", ErrUnauthorized, c.Authority)
	}
	return nil
}

func (p *Processor) InitializeMerkleRootUploadConfig(ctx context.Context, _ ledger.Clock, ix *InitializeMerkleRootUploadConfig) error {
	addr, bump, err := MerkleRootUploadConfigAddress(p.cfg.ProgramID)
	if err != nil {
		return err
	}
	if ix.OverrideAuthority.IsZero() || ix.OriginalUploadAuthority.IsZero() {
		return fmt.Errorf("%w: override and original authorities must be set", ErrInvalidParameters)
	}
	return p.update(ctx, func(accs *ledger.Accounts) error {
		if err := p.requireConfigAuthority(ctx, accs, ix.Authority); err != nil {
			return err
		}
		uc := &MerkleRootUploadConfig{
			OverrideAuthority:       ix.OverrideAuthority,
			OriginalUploadAuthority: ix.OriginalUploadAuthority,
			Bump:                    bump,
		}
		return p.create(ctx, accs, ix.Payer, addr, MerkleRootUploadConfigDiscriminator, MerkleRootUploadConfigSize, uc)
	})
}

func (p *Processor) UpdateMerkleRootUploadConfig(ctx context.Context, _ ledger.Clock, ix *UpdateMerkleRootUploadConfig) error {
	if ix.OverrideAuthority.IsZero() || ix.OriginalUploadAuthority.IsZero() {
		return fmt.Errorf("%w: override and original authorities must be set", ErrInvalidParameters)
	}
	return p.update(ctx, func(accs *ledger.Accounts) error {
		if err := p.requireConfigAuthority(ctx, accs, ix.Authority); err != nil {
			return err
		}
		acc, uc, err := p.loadUploadConfig(ctx, accs)
		if err != nil {
			return err
		}
		uc.OverrideAuthority = ix.OverrideAuthority
		uc.OriginalUploadAuthority = ix.OriginalUploadAuthority
		return anchor.Save(acc, MerkleRootUploadConfigDiscriminator, uc)
	})
}

// MigrateTdaMerkleRootUploadAuthority hands a rootless account still bound
// to the original upload authority over to the override authority. Anyone
// may call it.
func (p *Processor) MigrateTdaMerkleRootUploadAuthority(ctx context.Context, _ ledger.Clock, ix *MigrateTdaMerkleRootUploadAuthority) error {
	return p.update(ctx, func(accs *ledger.Accounts) error {
		_, uc, err := p.loadUploadConfig(ctx, accs)
		if err != nil {
			return err
		}
		acc, tda, err := p.loadTipDistributionAccount(ctx, accs, ix.TipDistributionAccount)
		if err != nil {
			return err
		}
		if tda.MerkleRoot != nil {
			return fmt.Errorf("%w: root already uploaded", ErrInvalidTdaForMigration)
		}
		if tda.MerkleRootUploadAuthority != uc.OriginalUploadAuthority {
			return fmt.Errorf("%w: upload authority %s is not the original", ErrInvalidTdaForMigration, tda.MerkleRootUploadAuthority)
		}
		tda.MerkleRootUploadAuthority = uc.OverrideAuthority
		return anchor.Save(acc, TipDistributionAccountDiscriminator, tda)
	})
}

// wrapTransfer reports a failed fund movement as an arithmetic error while
// keeping the ledger cause.
func wrapTransfer(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrArithmeticError) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrArithmeticError, err)
}
