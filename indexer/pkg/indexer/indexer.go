package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/tipdist/indexer/pkg/clickhouse"
	idxtipdist "github.com/malbeclabs/tipdist/indexer/pkg/tipdist"
)

type Config struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	ClickHouse      clickhouse.Client
	Source          idxtipdist.Source
	RefreshInterval time.Duration

	// MigrationsEnable runs the ClickHouse migrations before the views start.
	MigrationsEnable bool
	MigrationsConfig clickhouse.ClientConfig
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	if cfg.Source == nil {
		return errors.New("source is required")
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Indexer struct {
	log *slog.Logger
	cfg Config

	tipdist *idxtipdist.View
}

func New(ctx context.Context, cfg Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.MigrationsEnable {
		if err := clickhouse.Up(ctx, cfg.Logger, cfg.MigrationsConfig); err != nil {
			return nil, fmt.Errorf("failed to run ClickHouse migrations: %w", err)
		}
	}

	view, err := idxtipdist.NewView(idxtipdist.ViewConfig{
		Logger:          cfg.Logger,
		Clock:           cfg.Clock,
		Source:          cfg.Source,
		ClickHouse:      cfg.ClickHouse,
		RefreshInterval: cfg.RefreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tipdist view: %w", err)
	}

	return &Indexer{log: cfg.Logger, cfg: cfg, tipdist: view}, nil
}

func (i *Indexer) Ready() bool {
	return i.tipdist.Ready()
}

func (i *Indexer) Start(ctx context.Context) {
	i.log.Info("indexer: starting", "refresh_interval", i.cfg.RefreshInterval)
	i.tipdist.Start(ctx)
}

// WaitReady blocks until the first refresh has landed in ClickHouse.
func (i *Indexer) WaitReady(ctx context.Context) error {
	return i.tipdist.WaitReady(ctx)
}

func (i *Indexer) TipDistribution() *idxtipdist.View {
	return i.tipdist
}
