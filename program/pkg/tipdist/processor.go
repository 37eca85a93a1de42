// Package tipdist implements the tip distribution program: per-validator,
// per-epoch accounts holding tips that beneficiaries claim with Merkle
// proofs, claim receipts that prevent double payment, and the epoch-based
// reclamation of everything left behind.
package tipdist

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

// Processor executes instructions against a ledger store. Every instruction
// runs in a single store update: all checks happen before any write is
// committed and a failed instruction leaves no trace.
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

func (p *Processor) Rent() ledger.Rent {
	return p.cfg.Rent
}

// Execute dispatches a decoded instruction.
func (p *Processor) Execute(ctx context.Context, clock ledger.Clock, ix Instruction) error {
	var err error
	switch ix := ix.(type) {
	case *Initialize:
		err = p.Initialize(ctx, clock, ix)
	case *UpdateConfig:
		err = p.UpdateConfig(ctx, clock, ix)
	case *InitializeTipDistributionAccount:
		_, err = p.InitializeTipDistributionAccount(ctx, clock, ix)
	case *UploadMerkleRoot:
		err = p.UploadMerkleRoot(ctx, clock, ix)
	case *Claim:
		_, err = p.Claim(ctx, clock, ix)
	case *CloseClaimStatus:
		err = p.CloseClaimStatus(ctx, clock, ix)
	case *CloseTipDistributionAccount:
		err = p.CloseTipDistributionAccount(ctx, clock, ix)
	case *InitializeMerkleRootUploadConfig:
		err = p.InitializeMerkleRootUploadConfig(ctx, clock, ix)
	case *UpdateMerkleRootUploadConfig:
		err = p.UpdateMerkleRootUploadConfig(ctx, clock, ix)
	case *MigrateTdaMerkleRootUploadAuthority:
		err = p.MigrateTdaMerkleRootUploadAuthority(ctx, clock, ix)
	default:
		err = anchor.ErrInstructionFallbackNotFound
	}
	return err
}

// ExecuteRaw decodes and executes wire-encoded instruction data.
func (p *Processor) ExecuteRaw(ctx context.Context, clock ledger.Clock, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		return err
	}
	return p.Execute(ctx, clock, ix)
}

func (p *Processor) update(ctx context.Context, fn func(*ledger.Accounts) error) error {
	return anchor.Update(ctx, p.cfg.Store, fn)
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
	var c Config
	acc, err := p.load(ctx, accs, addr, ConfigDiscriminator, &c)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return acc, &c, nil
}

func (p *Processor) loadTipDistributionAccount(ctx context.Context, accs *ledger.Accounts, addr solana.PublicKey) (*ledger.Account, *TipDistributionAccount, error) {
	var tda TipDistributionAccount
	acc, err := p.load(ctx, accs, addr, TipDistributionAccountDiscriminator, &tda)
	if err != nil {
		return nil, nil, fmt.Errorf("tip distribution account: %w", err)
	}
	return acc, &tda, nil
}

func (p *Processor) create(ctx context.Context, accs *ledger.Accounts, payer, addr solana.PublicKey, disc bin.TypeID, size int, body bin.BinaryMarshaler) error {
	return anchor.Create(ctx, accs, p.cfg.Rent, p.cfg.ProgramID, payer, addr, disc, size, body)
}
