// Package cranker runs the permissionless upkeep of the tip distribution
// program: closing expired distribution accounts and claim receipts, and
// submitting claims on behalf of claimants from a generated tree collection.
package cranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/tipdist/cranker/pkg/metrics"
	"github.com/malbeclabs/tipdist/program/pkg/ledger"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
	"github.com/malbeclabs/tipdist/utils/pkg/retry"
)

// EpochRPC is the part of the Solana RPC client the cranker reads the chain
// position from.
type EpochRPC interface {
	GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetEpochInfoResult, error)
}

// Program is the subset of *tipdist.Processor the cranker drives.
type Program interface {
	Rent() ledger.Rent
	GetConfig(ctx context.Context) (*tipdist.Config, error)
	ListTipDistributionAccounts(ctx context.Context) ([]tipdist.TipDistributionAccountEntry, error)
	ListClaimStatuses(ctx context.Context) ([]tipdist.ClaimStatusEntry, error)
	CloseTipDistributionAccount(ctx context.Context, clock ledger.Clock, ix *tipdist.CloseTipDistributionAccount) error
	CloseClaimStatus(ctx context.Context, clock ledger.Clock, ix *tipdist.CloseClaimStatus) error
	Claim(ctx context.Context, clock ledger.Clock, ix *tipdist.Claim) (*tipdist.ClaimStatus, error)
}

type Config struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	RPC        EpochRPC
	Program    Program
	Interval   time.Duration
	Commitment solanarpc.CommitmentType

	// RateLimit bounds instruction submissions per second; Burst is the
	// bucket size.
	RateLimit rate.Limit
	Burst     int
	Retry     retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Program == nil {
		return errors.New("program is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
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

// Result summarizes one crank run.
type Result struct {
	RunID                         string
	Epoch                         uint64
	ClosedTipDistributionAccounts int
	ClosedClaimStatuses           int
	Skipped                       int
	Failed                        int
	Reclaimed                     uint64
}

type Cranker struct {
	log     *slog.Logger
	cfg     Config
	limiter *rate.Limiter
	crankMu sync.Mutex

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Cranker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cranker{
		log:     cfg.Logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.Burst),
		readyCh: make(chan struct{}),
	}, nil
}

// Ready reports whether at least one crank run has completed.
func (c *Cranker) Ready() bool {
	select {
	case <-c.readyCh:
		return true
	default:
		return false
	}
}

func (c *Cranker) WaitReady(ctx context.Context) error {
	select {
	case <-c.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for cranker: %w", ctx.Err())
	}
}

func (c *Cranker) Start(ctx context.Context) {
	go func() {
		c.log.Info("cranker: starting crank loop", "interval", c.cfg.Interval)

		c.safeCrank(ctx)

		ticker := c.cfg.Clock.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				c.safeCrank(ctx)
			}
		}
	}()
}

func (c *Cranker) safeCrank(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("cranker: crank panicked", "panic", r)
			metrics.CrankRunsTotal.WithLabelValues("panic").Inc()
		}
	}()

	if _, err := c.Crank(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.log.Error("cranker: crank failed", "error", err)
	}
}

// ChainClock reads the current chain position from the RPC endpoint.
func (c *Cranker) ChainClock(ctx context.Context) (ledger.Clock, error) {
	info, err := c.cfg.RPC.GetEpochInfo(ctx, c.cfg.Commitment)
	if err != nil {
		return ledger.Clock{}, fmt.Errorf("failed to get epoch info: %w", err)
	}
	return ledger.Clock{
		Slot:          info.AbsoluteSlot,
		Epoch:         info.Epoch,
		UnixTimestamp: c.cfg.Clock.Now().Unix(),
	}, nil
}

// Crank closes every distribution account and claim receipt whose expiry
// epoch has passed. A failure on one account is logged and counted; the
// run carries on with the rest.
func (c *Cranker) Crank(ctx context.Context) (*Result, error) {
	c.crankMu.Lock()
	defer c.crankMu.Unlock()

	res := &Result{RunID: uuid.NewString()}
	log := c.log.With("run_id", res.RunID)

	start := time.Now()
	defer func() {
		metrics.CrankRunDuration.Observe(time.Since(start).Seconds())
	}()

	clock, err := c.ChainClock(ctx)
	if err != nil {
		metrics.CrankRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	res.Epoch = clock.Epoch
	metrics.CurrentEpoch.Set(float64(clock.Epoch))

	config, err := c.cfg.Program.GetConfig(ctx)
	if err != nil {
		metrics.CrankRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	if !config.IsLive(clock.Epoch) {
		log.Info("cranker: program not live, skipping", "epoch", clock.Epoch, "go_live_epoch", *config.GoLiveEpoch)
		c.markReady()
		metrics.CrankRunsTotal.WithLabelValues("skipped").Inc()
		return res, nil
	}

	tdas, err := c.cfg.Program.ListTipDistributionAccounts(ctx)
	if err != nil {
		metrics.CrankRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list tip distribution accounts: %w", err)
	}
	for _, e := range tdas {
		if clock.Epoch <= e.Account.ExpiresAt {
			continue
		}
		swept := excess(c.cfg.Program.Rent(), e.Lamports, tipdist.TipDistributionAccountSize)
		err := c.submit(ctx, func() error {
			return c.cfg.Program.CloseTipDistributionAccount(ctx, clock, &tipdist.CloseTipDistributionAccount{
				TipDistributionAccount: e.Address,
				ExpiredFundsAccount:    config.ExpiredFundsAccount,
			})
		})
		if c.record(log, res, "tip_distribution_account", e.Address.String(), err) {
			res.ClosedTipDistributionAccounts++
			res.Reclaimed += swept
			metrics.LamportsReclaimedTotal.Add(float64(swept))
		}
	}

	statuses, err := c.cfg.Program.ListClaimStatuses(ctx)
	if err != nil {
		metrics.CrankRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list claim statuses: %w", err)
	}
	for _, e := range statuses {
		if clock.Epoch <= e.Status.ExpiresAt {
			continue
		}
		err := c.submit(ctx, func() error {
			return c.cfg.Program.CloseClaimStatus(ctx, clock, &tipdist.CloseClaimStatus{
				ClaimStatus:      e.Address,
				ClaimStatusPayer: e.Status.ClaimStatusPayer,
			})
		})
		if c.record(log, res, "claim_status", e.Address.String(), err) {
			res.ClosedClaimStatuses++
		}
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	log.Info("cranker: crank completed",
		"epoch", res.Epoch,
		"closed_tip_distribution_accounts", res.ClosedTipDistributionAccounts,
		"closed_claim_statuses", res.ClosedClaimStatuses,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"reclaimed", res.Reclaimed,
	)
	c.markReady()
	if res.Failed > 0 {
		metrics.CrankRunsTotal.WithLabelValues("partial").Inc()
	} else {
		metrics.CrankRunsTotal.WithLabelValues("success").Inc()
	}
	return res, nil
}

// submit waits for the rate limiter and runs fn with retries on transient
// store errors.
func (c *Cranker) submit(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return retry.Do(ctx, c.cfg.Retry, fn)
}

// record accounts for the outcome of one close and reports whether it
// succeeded. An account that is already gone was closed by another cranker.
func (c *Cranker) record(log *slog.Logger, res *Result, kind, addr string, err error) bool {
	switch {
	case err == nil:
		log.Info("cranker: closed expired account", "type", kind, "address", addr, "epoch", res.Epoch)
		metrics.AccountsClosedTotal.WithLabelValues(kind, "success").Inc()
		return true
	case errors.Is(err, ledger.ErrAccountNotFound):
		log.Debug("cranker: account already closed", "type", kind, "address", addr)
		res.Skipped++
		metrics.AccountsClosedTotal.WithLabelValues(kind, "skipped").Inc()
	default:
		log.Warn("cranker: failed to close expired account", "type", kind, "address", addr, "error", err)
		res.Failed++
		metrics.AccountsClosedTotal.WithLabelValues(kind, "error").Inc()
	}
	return false
}

func excess(rent ledger.Rent, lamports uint64, dataLen int) uint64 {
	if reserve := rent.MinimumBalance(dataLen); lamports > reserve {
		return lamports - reserve
	}
	return 0
}

func (c *Cranker) markReady() {
	c.readyOnce.Do(func() {
		close(c.readyCh)
		c.log.Info("cranker: cranker is now ready")
	})
}
