package idxtipdist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/tipdist/indexer/pkg/clickhouse"
	"github.com/malbeclabs/tipdist/indexer/pkg/metrics"
	"github.com/malbeclabs/tipdist/program/pkg/tipdist"
)

// Source lists the ledger records the view mirrors. *tipdist.Processor
// satisfies it.
type Source interface {
	ListTipDistributionAccounts(ctx context.Context) ([]tipdist.TipDistributionAccountEntry, error)
	ListClaimStatuses(ctx context.Context) ([]tipdist.ClaimStatusEntry, error)
}

type ViewConfig struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	Source          Source
	ClickHouse      clickhouse.Client
	RefreshInterval time.Duration
}

func (cfg *ViewConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Source == nil {
		return errors.New("source is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	if cfg.RefreshInterval <= 0 {
		return errors.New("refresh interval must be greater than 0")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type View struct {
	log       *slog.Logger
	cfg       ViewConfig
	store     *Store
	refreshMu sync.Mutex

	seenClaims map[string]struct{}
	readyOnce  sync.Once
	readyCh    chan struct{}
}

func NewView(cfg ViewConfig) (*View, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := NewStore(StoreConfig{Logger: cfg.Logger, ClickHouse: cfg.ClickHouse})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return &View{
		log:        cfg.Logger,
		cfg:        cfg,
		store:      store,
		seenClaims: make(map[string]struct{}),
		readyCh:    make(chan struct{}),
	}, nil
}

func (v *View) Store() *Store {
	return v.store
}

func (v *View) Ready() bool {
	select {
	case <-v.readyCh:
		return true
	default:
		return false
	}
}

func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for tipdist view: %w", ctx.Err())
	}
}

func (v *View) Start(ctx context.Context) {
	go func() {
		v.log.Info("tipdist: starting refresh loop", "interval", v.cfg.RefreshInterval)

		v.safeRefresh(ctx)

		ticker := v.cfg.Clock.NewTicker(v.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				v.safeRefresh(ctx)
			}
		}
	}()
}

func (v *View) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("tipdist: refresh panicked", "panic", r)
			metrics.ViewRefreshTotal.WithLabelValues("tipdist", "panic").Inc()
		}
	}()

	if err := v.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		v.log.Error("tipdist: refresh failed", "error", err)
	}
}

// Refresh snapshots every distribution account and appends receipts not
// seen before.
func (v *View) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	start := time.Now()
	v.log.Debug("tipdist: refresh started")
	defer func() {
		duration := time.Since(start)
		v.log.Info("tipdist: refresh completed", "duration", duration.String())
		metrics.ViewRefreshDuration.WithLabelValues("tipdist").Observe(duration.Seconds())
	}()

	ts := v.cfg.Clock.Now().UTC()

	entries, err := v.cfg.Source.ListTipDistributionAccounts(ctx)
	if err != nil {
		metrics.ViewRefreshTotal.WithLabelValues("tipdist", "error").Inc()
		return fmt.Errorf("failed to list tip distribution accounts: %w", err)
	}
	accounts := make([]TipDistributionAccount, len(entries))
	for i, e := range entries {
		accounts[i] = convertTipDistributionAccount(e)
	}
	if err := v.store.ReplaceTipDistributionAccounts(ctx, ts, accounts); err != nil {
		metrics.ViewRefreshTotal.WithLabelValues("tipdist", "error").Inc()
		return fmt.Errorf("failed to replace tip distribution accounts: %w", err)
	}

	statuses, err := v.cfg.Source.ListClaimStatuses(ctx)
	if err != nil {
		metrics.ViewRefreshTotal.WithLabelValues("tipdist", "error").Inc()
		return fmt.Errorf("failed to list claim statuses: %w", err)
	}
	var fresh []ClaimStatus
	for _, e := range statuses {
		row := convertClaimStatus(e)
		if _, ok := v.seenClaims[row.Address]; !ok {
			fresh = append(fresh, row)
		}
	}
	if err := v.store.InsertClaimStatuses(ctx, ts, fresh); err != nil {
		metrics.ViewRefreshTotal.WithLabelValues("tipdist", "error").Inc()
		return fmt.Errorf("failed to insert claim statuses: %w", err)
	}
	for _, row := range fresh {
		v.seenClaims[row.Address] = struct{}{}
	}

	v.readyOnce.Do(func() {
		close(v.readyCh)
		v.log.Info("tipdist: view is now ready")
	})
	metrics.ViewRefreshTotal.WithLabelValues("tipdist", "success").Inc()
	return nil
}
