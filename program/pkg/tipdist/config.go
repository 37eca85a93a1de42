package tipdist

import (
	"context"
	"fmt"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

// Initialize creates the Config singleton. It can succeed only once.
func (p *Processor) Initialize(ctx context.Context, _ ledger.Clock, ix *Initialize) error {
	addr, bump, err := ConfigAddress(p.cfg.ProgramID)
	if err != nil {
		return err
	}
	c := &Config{
		Authority:                 ix.Authority,
		ExpiredFundsAccount:       ix.ExpiredFundsAccount,
		NumEpochsValid:            ix.NumEpochsValid,
		MaxValidatorCommissionBps: ix.MaxValidatorCommissionBps,
		Bump:                      bump,
	}
	if err := c.Validate(); err != nil {
		return err
	}

	err = p.update(ctx, func(accs *ledger.Accounts) error {
		return p.create(ctx, accs, ix.Payer, addr, ConfigDiscriminator, ConfigSize, c)
	})
	if err != nil {
		return err
	}
	p.log.Debug("tipdist: initialized config", "address", addr, "authority", c.Authority, "num_epochs_valid", c.NumEpochsValid)
	return nil
}

// UpdateConfig replaces every field of Config except its bump.
func (p *Processor) UpdateConfig(ctx context.Context, _ ledger.Clock, ix *UpdateConfig) error {
	return p.update(ctx, func(accs *ledger.Accounts) error {
		acc, c, err := p.loadConfig(ctx, accs)
		if err != nil {
			return err
		}
		if ix.Authority != c.Authority {
			return fmt.Errorf("%w: config authority is %s", ErrUnauthorized, c.Authority)
		}

		next := ix.NewConfig
		next.Bump = c.Bump
		if err := next.Validate(); err != nil {
			return err
		}
		return anchor.Save(acc, ConfigDiscriminator, &next)
	})
}
