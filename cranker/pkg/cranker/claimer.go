package cranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/tipdist/cranker/pkg/metrics"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
	"github.com/malbeclabs/tipdist/tools/pkg/treegen"
	"github.com/malbeclabs/tipdist/utils/pkg/retry"
)

type ClaimerConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	RPC        EpochRPC
	Program    Program
	Commitment solanarpc.CommitmentType

	// Payer funds the claim receipts and gets their reserve back when the
	// receipts are closed after expiry.
	Payer solana.PublicKey

	RateLimit rate.Limit
	Burst     int
	Retry     retry.Config
}

func (cfg *ClaimerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Program == nil {
		return errors.New("program is required")
	}
	if cfg.Payer.IsZero() {
		return errors.New("payer is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentFinalized
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type ClaimResult struct {
	RunID          string
	Claimed        int
	AlreadyClaimed int
	Failed         int
	Lamports       uint64
}

// Claimer submits claims for every node of a generated tree collection.
// Receipts make claims idempotent, so a collection can be replayed after a
// partial run.
type Claimer struct {
	log     *slog.Logger
	cfg     ClaimerConfig
	cranker *Cranker
	limiter *rate.Limiter
}

func NewClaimer(cfg ClaimerConfig) (*Claimer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cranker, err := New(Config{
		Logger:     cfg.Logger,
		Clock:      cfg.Clock,
		RPC:        cfg.RPC,
		Program:    cfg.Program,
		Commitment: cfg.Commitment,
	})
	if err != nil {
		return nil, err
	}
	return &Claimer{
		log:     cfg.Logger,
		cfg:     cfg,
		cranker: cranker,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
	}, nil
}

func (c *Claimer) ClaimAll(ctx context.Context, coll *treegen.GeneratedMerkleTreeCollection) (*ClaimResult, error) {
	res := &ClaimResult{RunID: uuid.NewString()}
	log := c.log.With("run_id", res.RunID, "epoch", coll.Epoch)

	clock, err := c.cranker.ChainClock(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	for _, tree := range coll.GeneratedMerkleTrees {
		for i := range tree.TreeNodes {
			node := &tree.TreeNodes[i]
			proof, err := node.ProofHashes()
			if err != nil {
				return nil, fmt.Errorf("tree %s node %d: %w", tree.TipDistributionAccount, i, err)
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return res, err
			}
			err = retry.Do(ctx, c.cfg.Retry, func() error {
				_, err := c.cfg.Program.Claim(ctx, clock, &tipdist.Claim{
					TipDistributionAccount: tree.TipDistributionAccount,
					Claimant:               node.Claimant,
					Payer:                  c.cfg.Payer,
					Amount:                 node.Amount,
					Proof:                  proof,
				})
				return err
			})
			switch {
			case err == nil:
				res.Claimed++
				res.Lamports += node.Amount
				metrics.ClaimsTotal.WithLabelValues("success").Inc()
				metrics.ClaimedLamportsTotal.Add(float64(node.Amount))
			case errors.Is(err, tipdist.ErrFundsAlreadyClaimed):
				res.AlreadyClaimed++
				metrics.ClaimsTotal.WithLabelValues("already_claimed").Inc()
			case errors.Is(err, context.Canceled):
				return res, err
			default:
				res.Failed++
				metrics.ClaimsTotal.WithLabelValues("error").Inc()
				log.Warn("claimer: claim failed", "tip_distribution_account", tree.TipDistributionAccount, "claimant", node.Claimant, "amount", node.Amount, "error", err)
			}
		}
	}

	log.Info("claimer: claims completed",
		"claimed", res.Claimed,
		"already_claimed", res.AlreadyClaimed,
		"failed", res.Failed,
		"lamports", res.Lamports,
		"duration", time.Since(start).String(),
	)
	return res, nil
}
