package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/malbeclabs/tipdist/indexer/pkg/clickhouse"
)

type ResetDBConfig struct {
	DryRun      bool
	SkipConfirm bool
	// Confirm is read for the confirmation prompt unless SkipConfirm is set.
	Confirm io.Reader
	Out     io.Writer
}

// ResetDB drops every indexer table (dim_*, fact_*) and the goose version
// table so the next migration starts from scratch.
func ResetDB(ctx context.Context, log *slog.Logger, ch clickhouse.Client, database string, cfg ResetDBConfig) error {
	conn, err := ch.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, `
		SELECT name
		FROM system.tables
		WHERE database = ?
		  AND (name LIKE 'dim_%' OR name LIKE 'fact_%' OR name = 'goose_db_version')
		ORDER BY name
	`, database)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read tables: %w", err)
	}

	if len(tables) == 0 {
		fmt.Fprintln(cfg.Out, "No tables found matching patterns")
		return nil
	}

	fmt.Fprintf(cfg.Out, "WARNING: This will DROP %d table(s) from database '%s':\n\n", len(tables), database)
	for _, table := range tables {
		fmt.Fprintf(cfg.Out, "  - %s\n", table)
	}

	if cfg.DryRun {
		fmt.Fprintln(cfg.Out, "\n[DRY RUN] Would drop the above tables")
		return nil
	}

	if !cfg.SkipConfirm {
		fmt.Fprintf(cfg.Out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\nType 'yes' to confirm: ")
		response, err := bufio.NewReader(cfg.Confirm).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintln(cfg.Out, "\nConfirmation failed. Operation cancelled.")
			return nil
		}
	}

	for _, table := range tables {
		if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Info("admin: dropped table", "table", table)
	}
	fmt.Fprintf(cfg.Out, "\nSuccessfully dropped %d table(s)\n", len(tables))
	return nil
}
