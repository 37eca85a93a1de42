package admin

import (
	"fmt"
	"log/slog"

	"github.com/malbeclabs/tipdist/program/pkg/ledger/pgstore"
)

// PgMigrateUp runs all pending account store migrations.
func PgMigrateUp(log *slog.Logger, cfg pgstore.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	return pgstore.MigrateUp(log, cfg.ConnString())
}

// PgMigrateDown rolls back the last account store migration.
func PgMigrateDown(log *slog.Logger, cfg pgstore.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	return pgstore.MigrateDown(log, cfg.ConnString())
}

func PgMigrateStatus(log *slog.Logger, cfg pgstore.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	return pgstore.MigrateStatus(log, cfg.ConnString())
}
