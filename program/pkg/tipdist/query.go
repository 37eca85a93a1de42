package tipdist

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

type TipDistributionAccountEntry struct {
	Address  solana.PublicKey
	Lamports uint64
	Account  TipDistributionAccount
}

type ClaimStatusEntry struct {
	Address  solana.PublicKey
	Lamports uint64
	Status   ClaimStatus
}

// GetConfig reads the Config singleton.
func (p *Processor) GetConfig(ctx context.Context) (*Config, error) {
	addr, _, err := ConfigAddress(p.cfg.ProgramID)
	if err != nil {
		return nil, err
	}
	var c Config
	err = p.cfg.Store.View(ctx, func(r ledger.Reader) error {
		acc, err := r.Get(ctx, addr)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		return anchor.Load(acc, p.cfg.ProgramID, ConfigDiscriminator, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Processor) GetTipDistributionAccount(ctx context.Context, addr solana.PublicKey) (*TipDistributionAccountEntry, error) {
	entry := &TipDistributionAccountEntry{Address: addr}
	err := p.cfg.Store.View(ctx, func(r ledger.Reader) error {
		acc, err := r.Get(ctx, addr)
		if err != nil {
			return fmt.Errorf("tip distribution account %s: %w", addr, err)
		}
		entry.Lamports = acc.Lamports
		return anchor.Load(acc, p.cfg.ProgramID, TipDistributionAccountDiscriminator, &entry.Account)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (p *Processor) GetClaimStatus(ctx context.Context, addr solana.PublicKey) (*ClaimStatusEntry, error) {
	entry := &ClaimStatusEntry{Address: addr}
	err := p.cfg.Store.View(ctx, func(r ledger.Reader) error {
		acc, err := r.Get(ctx, addr)
		if err != nil {
			return fmt.Errorf("claim status %s: %w", addr, err)
		}
		entry.Lamports = acc.Lamports
		return anchor.Load(acc, p.cfg.ProgramID, ClaimStatusDiscriminator, &entry.Status)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListTipDistributionAccounts returns every distribution account, ordered
// by address.
func (p *Processor) ListTipDistributionAccounts(ctx context.Context) ([]TipDistributionAccountEntry, error) {
	var out []TipDistributionAccountEntry
	err := p.listProgramAccounts(ctx, func(acc *ledger.Account) error {
		if !anchor.HasDiscriminator(acc.Data, TipDistributionAccountDiscriminator) {
			return nil
		}
		tda, err := DecodeTipDistributionAccount(acc.Data)
		if err != nil {
			return fmt.Errorf("tip distribution account %s: %w", acc.Address, err)
		}
		out = append(out, TipDistributionAccountEntry{Address: acc.Address, Lamports: acc.Lamports, Account: *tda})
		return nil
	})
	return out, err
}

// ListClaimStatuses returns every claim receipt, ordered by address.
func (p *Processor) ListClaimStatuses(ctx context.Context) ([]ClaimStatusEntry, error) {
	var out []ClaimStatusEntry
	err := p.listProgramAccounts(ctx, func(acc *ledger.Account) error {
		if !anchor.HasDiscriminator(acc.Data, ClaimStatusDiscriminator) {
			return nil
		}
		status, err := DecodeClaimStatus(acc.Data)
		if err != nil {
			return fmt.Errorf("claim status %s: %w", acc.Address, err)
		}
		out = append(out, ClaimStatusEntry{Address: acc.Address, Lamports: acc.Lamports, Status: *status})
		return nil
	})
	return out, err
}

func (p *Processor) listProgramAccounts(ctx context.Context, fn func(*ledger.Account) error) error {
	return p.cfg.Store.View(ctx, func(r ledger.Reader) error {
		accs, err := r.ListByOwner(ctx, p.cfg.ProgramID)
		if err != nil {
			return err
		}
		for _, acc := range accs {
			if err := fn(acc); err != nil {
				return err
			}
		}
		return nil
	})
}
