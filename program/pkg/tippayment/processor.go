// Package tippayment implements the pooled tip vault: producers pay tips
// into a fixed set of shard accounts, and a drain sweeps every shard at
// once and splits the total between the block builder and the tip
// receiver.
package tippayment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

type ProcessorConfig struct {
	Logger    *slog.Logger
	Store     ledger.Store
	ProgramID solana.PublicKey
	Rent      ledger.Rent
}

func (cfg *ProcessorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.Rent == (ledger.Rent{}) {
		cfg.Rent = ledger.DefaultRent
	}
	return nil
}

type Processor struct {
	log *slog.Logger
	cfg ProcessorConfig
}

func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Processor{log: cfg.Logger, cfg: cfg}, nil
}

func (p *Processor) ProgramID() solana.PublicKey {
	return p.cfg.ProgramID
}

func (p *Processor) Execute(ctx context.Context, ix Instruction) error {
	var err error
	switch ix := ix.(type) {
	case *Initialize:
		err = p.Initialize(ctx, ix)
	case *ClaimTips:
		_, err = p.ClaimTips(ctx, ix)
	case *ChangeTipReceiver:
		_, err = p.ChangeTipReceiver(ctx, ix)
	case *ChangeBlockBuilder:
		_, err = p.ChangeBlockBuilder(ctx, ix)
	case *Tip:
		err = p.Tip(ctx, ix)
	default:
		return anchor.ErrInstructionFallbackNotFound
	}
	return err
}

func (p *Processor) ExecuteRaw(ctx context.Context, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		return err
	}
	return p.Execute(ctx, ix)
}

// Initialize creates the Config and all tip payment accounts.
func (p *Processor) Initialize(ctx context.Context, ix *Initialize) error {
	configAddr, configBump, err := ConfigAddress(p.cfg.ProgramID)
	if err != nil {
		return err
	}
	shardAddrs, shardBumps, err := TipPaymentAccountAddresses(p.cfg.ProgramID)
	if err != nil {
		return err
	}
	cfg := &Config{
		TipReceiver:  ix.Payer,
		BlockBuilder: ix.Payer,
		Bumps:        InitBumps{Config: configBump, TipPaymentAccounts: shardBumps},
	}
	err = anchor.Update(ctx, p.cfg.Store, func(accs *ledger.Accounts) error {
		if err := anchor.Create(ctx, accs, p.cfg.Rent, p.cfg.ProgramID, ix.Payer, configAddr, ConfigDiscriminator, ConfigSize, cfg); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		for i, addr := range shardAddrs {
			if err := anchor.Create(ctx, accs, p.cfg.Rent, p.cfg.ProgramID, ix.Payer, addr, TipPaymentAccountDiscriminator, TipPaymentAccountSize, TipPaymentAccount{}); err != nil {
				return fmt.Errorf("tip payment account %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.log.Info("tippayment: initialized", "config", configAddr, "payer", ix.Payer)
	return nil
}

// Tip pays Amount from the payer into one shard.
func (p *Processor) Tip(ctx context.Context, ix *Tip) error {
	if int(ix.Shard) >= NumTipPaymentAccounts {
		return fmt.Errorf("%w: %d", ErrInvalidShard, ix.Shard)
	}
	addr, _, err := TipPaymentAccountAddress(p.cfg.ProgramID, int(ix.Shard))
	if err != nil {
		return err
	}
	return anchor.Update(ctx, p.cfg.Store, func(accs *ledger.Accounts) error {
		shard, err := p.load(ctx, accs, addr, TipPaymentAccountDiscriminator, &TipPaymentAccount{})
		if err != nil {
			return err
		}
		payer, err := accs.Get(ctx, ix.Payer)
		if err != nil {
			return fmt.Errorf("payer %s: %w", ix.Payer, err)
		}
		return ledger.Transfer(p.cfg.Rent, payer, shard, ix.Amount)
	})
}

// ClaimTips drains every shard and pays the configured recipients.
func (p *Processor) ClaimTips(ctx context.Context, ix *ClaimTips) (Split, error) {
	var split Split
	err := anchor.Update(ctx, p.cfg.Store, func(accs *ledger.Accounts) error {
		_, cfg, err := p.loadConfig(ctx, accs)
		if err != nil {
			return err
		}
		if err := checkRecipients(cfg, ix.TipReceiver, ix.BlockBuilder); err != nil {
			return err
		}
		split, err = p.drainAndSplit(ctx, accs, cfg)
		return err
	})
	if err != nil {
		return Split{}, err
	}
	p.logSplit("tippayment: claimed tips", split)
	return split, nil
}

// ChangeTipReceiver settles pending tips under the current Config before
// replacing the receiver.
func (p *Processor) ChangeTipReceiver(ctx context.Context, ix *ChangeTipReceiver) (Split, error) {
	var split Split
	err := anchor.Update(ctx, p.cfg.Store, func(accs *ledger.Accounts) error {
		acc, cfg, err := p.loadConfig(ctx, accs)
		if err != nil {
			return err
		}
		if err := checkRecipients(cfg, ix.OldTipReceiver, ix.BlockBuilder); err != nil {
			return err
		}
		if split, err = p.drainAndSplit(ctx, accs, cfg); err != nil {
			return err
		}
		cfg.TipReceiver = ix.NewTipReceiver
		return anchor.Save(acc, ConfigDiscriminator, cfg)
	})
	if err != nil {
		return Split{}, err
	}
	p.logSplit("tippayment: changed tip receiver", split, "tip_receiver", ix.NewTipReceiver)
	return split, nil
}

// ChangeBlockBuilder settles pending tips under the current Config before
// replacing the block builder and its commission.
func (p *Processor) ChangeBlockBuilder(ctx context.Context, ix *ChangeBlockBuilder) (Split, error) {
	var split Split
	err := anchor.Update(ctx, p.cfg.Store, func(accs *ledger.Accounts) error {
		acc, cfg, err := p.loadConfig(ctx, accs)
		if err != nil {
			return err
		}
		if err := checkRecipients(cfg, ix.TipReceiver, ix.OldBlockBuilder); err != nil {
			return err
		}
		if ix.BlockBuilderCommissionPct > MaxBlockBuilderCommissionPct {
			return fmt.Errorf("%w: %d", ErrInvalidFee, ix.BlockBuilderCommissionPct)
		}
		if split, err = p.drainAndSplit(ctx, accs, cfg); err != nil {
			return err
		}
		cfg.BlockBuilder = ix.NewBlockBuilder
		cfg.BlockBuilderCommissionPct = ix.BlockBuilderCommissionPct
		return anchor.Save(acc, ConfigDiscriminator, cfg)
	})
	if err != nil {
		return Split{}, err
	}
	p.logSplit("tippayment: changed block builder", split,
		"block_builder", ix.NewBlockBuilder, "commission_pct", ix.BlockBuilderCommissionPct)
	return split, nil
}

// PendingTips returns the total that the next drain would sweep.
func (p *Processor) PendingTips(ctx context.Context) (uint64, error) {
	addrs, _, err := TipPaymentAccountAddresses(p.cfg.ProgramID)
	if err != nil {
		return 0, err
	}
	var total uint64
	err = p.cfg.Store.View(ctx, func(r ledger.Reader) error {
		shards := make([]*ledger.Account, 0, len(addrs))
		for _, addr := range addrs {
			acc, err := r.Get(ctx, addr)
			if err != nil {
				return fmt.Errorf("tip payment account %s: %w", addr, err)
			}
			shards = append(shards, acc)
		}
		total, err = drain(p.cfg.Rent, shards)
		return err
	})
	return total, err
}

func (p *Processor) GetConfig(ctx context.Context) (*Config, error) {
	addr, _, err := ConfigAddress(p.cfg.ProgramID)
	if err != nil {
		return nil, err
	}
	var cfg Config
	err = p.cfg.Store.View(ctx, func(r ledger.Reader) error {
		acc, err := r.Get(ctx, addr)
		if err != nil {
			return err
		}
		return anchor.Load(acc, p.cfg.ProgramID, ConfigDiscriminator, &cfg)
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Processor) drainAndSplit(ctx context.Context, accs *ledger.Accounts, cfg *Config) (Split, error) {
	addrs, _, err := TipPaymentAccountAddresses(p.cfg.ProgramID)
	if err != nil {
		return Split{}, err
	}
	shards := make([]*ledger.Account, 0, len(addrs))
	for _, addr := range addrs {
		acc, err := p.load(ctx, accs, addr, TipPaymentAccountDiscriminator, &TipPaymentAccount{})
		if err != nil {
			return Split{}, err
		}
		shards = append(shards, acc)
	}

	var split Split
	if split.Total, err = drain(p.cfg.Rent, shards); err != nil {
		return Split{}, err
	}
	split.BlockBuilderFee, split.TipReceiverFee, err = SplitFees(split.Total, cfg.BlockBuilderCommissionPct)
	if err != nil {
		return Split{}, err
	}

	builder, err := accs.GetOrEmpty(ctx, cfg.BlockBuilder)
	if err != nil {
		return Split{}, err
	}
	receiver, err := accs.GetOrEmpty(ctx, cfg.TipReceiver)
	if err != nil {
		return Split{}, err
	}
	fallback := shards[0]
	if split.BlockBuilderRedirected, err = deliver(p.cfg.Rent, builder, fallback, split.BlockBuilderFee); err != nil {
		return Split{}, err
	}
	if split.TipReceiverRedirected, err = deliver(p.cfg.Rent, receiver, fallback, split.TipReceiverFee); err != nil {
		return Split{}, err
	}
	return split, nil
}

func (p *Processor) load(ctx context.Context, accs *ledger.Accounts, addr solana.PublicKey, disc bin.TypeID, body bin.BinaryUnmarshaler) (*ledger.Account, error) {
	acc, err := accs.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	if err := anchor.Load(acc, p.cfg.ProgramID, disc, body); err != nil {
		return nil, err
	}
	return acc, nil
}

func (p *Processor) loadConfig(ctx context.Context, accs *ledger.Accounts) (*ledger.Account, *Config, error) {
	addr, _, err := ConfigAddress(p.cfg.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	var cfg Config
	acc, err := p.load(ctx, accs, addr, ConfigDiscriminator, &cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return acc, &cfg, nil
}

func (p *Processor) logSplit(msg string, split Split, attrs ...any) {
	p.log.Info(msg, append([]any{
		"total", split.Total,
		"block_builder_fee", split.BlockBuilderFee,
		"tip_receiver_fee", split.TipReceiverFee,
	}, attrs...)...)
	if split.BlockBuilderRedirected || split.TipReceiverRedirected {
		p.log.Warn("tippayment: fee redirected to tip payment account 0",
			"block_builder", split.BlockBuilderRedirected, "tip_receiver", split.TipReceiverRedirected)
	}
}

func checkRecipients(cfg *Config, receiver, builder solana.PublicKey) error {
	if receiver != cfg.TipReceiver {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidTipReceiver, receiver, cfg.TipReceiver)
	}
	if builder != cfg.BlockBuilder {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidBlockBuilder, builder, cfg.BlockBuilder)
	}
	return nil
}
