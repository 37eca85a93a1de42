package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
	"github.com/malbeclabs/tipdist/program/pkg/tippayment"
	"github.com/malbeclabs/tipdist/tools/pkg/treegen"
)

type EpochRPC interface {
	GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetEpochInfoResult, error)
}

// ChainClock reads the finalized chain position.
func ChainClock(ctx context.Context, rpc EpochRPC) (ledger.Clock, error) {
	info, err := rpc.GetEpochInfo(ctx, solanarpc.CommitmentFinalized)
	if err != nil {
		return ledger.Clock{}, fmt.Errorf("failed to get epoch info: %w", err)
	}
	return ledger.Clock{Slot: info.AbsoluteSlot, Epoch: info.Epoch}, nil
}

type InitConfigConfig struct {
	Authority                 solana.PublicKey
	ExpiredFundsAccount       solana.PublicKey
	Payer                     solana.PublicKey
	NumEpochsValid            uint64
	MaxValidatorCommissionBps uint16
	GoLiveEpoch               *uint64
}

// InitConfig creates the distribution program Config, then sets the go-live
// epoch when one is given.
func InitConfig(ctx context.Context, log *slog.Logger, proc *tipdist.Processor, clock ledger.Clock, cfg InitConfigConfig) error {
	if err := proc.Initialize(ctx, clock, &tipdist.Initialize{
		Authority:                 cfg.Authority,
		ExpiredFundsAccount:       cfg.ExpiredFundsAccount,
		NumEpochsValid:            cfg.NumEpochsValid,
		MaxValidatorCommissionBps: cfg.MaxValidatorCommissionBps,
		Payer:                     cfg.Payer,
	}); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	if cfg.GoLiveEpoch != nil {
		c, err := proc.GetConfig(ctx)
		if err != nil {
			return err
		}
		c.GoLiveEpoch = cfg.GoLiveEpoch
		if err := proc.UpdateConfig(ctx, clock, &tipdist.UpdateConfig{Authority: cfg.Authority, NewConfig: *c}); err != nil {
			return fmt.Errorf("failed to set go-live epoch: %w", err)
		}
	}

	log.Info("admin: initialized tip distribution config",
		"program_id", proc.ProgramID(),
		"authority", cfg.Authority,
		"expired_funds_account", cfg.ExpiredFundsAccount,
		"num_epochs_valid", cfg.NumEpochsValid,
		"max_validator_commission_bps", cfg.MaxValidatorCommissionBps,
	)
	return nil
}

type PublishResult struct {
	Published int
	Skipped   int
	Failed    int
}

// PublishRoots uploads the root of every tree in a generated collection
// whose upload authority is authority. Trees owned by other authorities are
// skipped; a root that already has claims against it is left alone.
func PublishRoots(ctx context.Context, log *slog.Logger, proc *tipdist.Processor, clock ledger.Clock, path string, authority solana.PublicKey) (*PublishResult, error) {
	coll, err := treegen.ReadGeneratedMerkleTreeCollection(path)
	if err != nil {
		return nil, err
	}
	if err := treegen.Verify(coll); err != nil {
		return nil, fmt.Errorf("refusing to publish %s: %w", path, err)
	}

	res := &PublishResult{}
	for _, tree := range coll.GeneratedMerkleTrees {
		if tree.MerkleRootUploadAuthority != authority {
			res.Skipped++
			continue
		}
		err := proc.UploadMerkleRoot(ctx, clock, &tipdist.UploadMerkleRoot{
			TipDistributionAccount: tree.TipDistributionAccount,
			Authority:              authority,
			Root:                   tree.MerkleRoot,
			MaxTotalClaim:          tree.MaxTotalClaim,
			MaxNumNodes:            tree.MaxNumNodes,
		})
		switch {
		case err == nil:
			res.Published++
			log.Info("admin: published merkle root", "tip_distribution_account", tree.TipDistributionAccount, "root", tree.MerkleRoot)
		case errors.Is(err, tipdist.ErrRootAlreadyClaimedFrom):
			res.Skipped++
			log.Warn("admin: root already claimed from, leaving it", "tip_distribution_account", tree.TipDistributionAccount)
		default:
			res.Failed++
			log.Error("admin: failed to publish merkle root", "tip_distribution_account", tree.TipDistributionAccount, "error", err)
		}
	}

	log.Info("admin: publish completed", "epoch", coll.Epoch, "published", res.Published, "skipped", res.Skipped, "failed", res.Failed)
	if res.Failed > 0 {
		return res, fmt.Errorf("%d of %d roots failed to publish", res.Failed, len(coll.GeneratedMerkleTrees))
	}
	return res, nil
}

// VaultInit creates the tip payment Config and its tip accounts.
func VaultInit(ctx context.Context, log *slog.Logger, proc *tippayment.Processor, payer solana.PublicKey) error {
	if err := proc.Initialize(ctx, &tippayment.Initialize{Payer: payer}); err != nil {
		return fmt.Errorf("failed to initialize tip payment vault: %w", err)
	}
	addrs, _, err := tippayment.TipPaymentAccountAddresses(proc.ProgramID())
	if err != nil {
		return err
	}
	log.Info("admin: initialized tip payment vault", "program_id", proc.ProgramID(), "tip_accounts", addrs)
	return nil
}
