package tipdist

import (
	"context"
	"fmt"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

// CloseTipDistributionAccount reclaims an expired account. Anyone may call
// it. Everything above the rent reserve goes to the configured expired
// funds account and the reserve is refunded to the validator vote account.
func (p *Processor) CloseTipDistributionAccount(ctx context.Context, clock ledger.Clock, ix *CloseTipDistributionAccount) error {
	var swept uint64
	err := p.update(ctx, func(accs *ledger.Accounts) error {
		tdaAcc, tda, err := p.loadTipDistributionAccount(ctx, accs, ix.TipDistributionAccount)
		if err != nil {
			return err
		}
		_, c, err := p.loadConfig(ctx, accs)
		if err != nil {
			return err
		}
		if clock.Epoch <= tda.ExpiresAt {
			return fmt.Errorf("%w: epoch %d, expires at %d", ErrPrematureCloseTipDistributionAccount, clock.Epoch, tda.ExpiresAt)
		}
		if ix.ExpiredFundsAccount != c.ExpiredFundsAccount {
			return fmt.Errorf("%w: expired funds account is %s", ErrUnauthorized, c.ExpiredFundsAccount)
		}
		if !c.IsLive(clock.Epoch) {
			return fmt.Errorf("%w: epoch %d", ErrNotLive, clock.Epoch)
		}

		sink, err := accs.GetOrEmpty(ctx, c.ExpiredFundsAccount)
		if err != nil {
			return err
		}
		if swept = ledger.ExcessLamports(p.cfg.Rent, tdaAcc); swept > 0 {
			if err := ledger.Transfer(p.cfg.Rent, tdaAcc, sink, swept); err != nil {
				return wrapTransfer(err)
			}
		}

		vote, err := accs.GetOrEmpty(ctx, tda.ValidatorVoteAccount)
		if err != nil {
			return err
		}
		if _, err := ledger.CloseAccount(tdaAcc, vote); err != nil {
			return wrapTransfer(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Debug("tipdist: closed tip distribution account", "address", ix.TipDistributionAccount, "swept", swept, "epoch", clock.Epoch)
	return nil
}

// CloseClaimStatus deletes an expired receipt and refunds its whole balance
// to the payer recorded at claim time. Anyone may call it.
func (p *Processor) CloseClaimStatus(ctx context.Context, clock ledger.Clock, ix *CloseClaimStatus) error {
	return p.update(ctx, func(accs *ledger.Accounts) error {
		var status ClaimStatus
		acc, err := p.load(ctx, accs, ix.ClaimStatus, ClaimStatusDiscriminator, &status)
		if err != nil {
			return fmt.Errorf("claim status: %w", err)
		}
		if clock.Epoch <= status.ExpiresAt {
			return fmt.Errorf("%w: epoch %d, expires at %d", ErrPrematureCloseClaimStatus, clock.Epoch, status.ExpiresAt)
		}
		if ix.ClaimStatusPayer != status.ClaimStatusPayer {
			return fmt.Errorf("%w: refund belongs to %s", ErrUnauthorized, status.ClaimStatusPayer)
		}

		payer, err := accs.GetOrEmpty(ctx, status.ClaimStatusPayer)
		if err != nil {
			return err
		}
		refund, err := ledger.CloseAccount(acc, payer)
		if err != nil {
			return wrapTransfer(err)
		}
		p.log.Debug("tipdist: closed claim status", "address", ix.ClaimStatus, "payer", status.ClaimStatusPayer, "refund", refund)
		return nil
	})
}
