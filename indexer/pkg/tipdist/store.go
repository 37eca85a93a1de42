// Package idxtipdist mirrors tip distribution ledger state into ClickHouse
// for analytics.
package idxtipdist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/tipdist/indexer/pkg/clickhouse"
	"github.com/malbeclabs/tipdist/indexer/pkg/metrics"
)

type StoreConfig struct {
	Logger     *slog.Logger
	ClickHouse clickhouse.Client
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, cfg: cfg}, nil
}

// ReplaceTipDistributionAccounts writes a full snapshot. Accounts that were
// live in the previous snapshot and are missing from this one are marked
// deleted.
func (s *Store) ReplaceTipDistributionAccounts(ctx context.Context, ts time.Time, rows []TipDistributionAccount) error {
	s.log.Debug("tipdist/store: replacing tip distribution accounts", "count", len(rows))

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	live, err := s.liveAddresses(ctx, conn)
	if err != nil {
		return err
	}

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+tipDistributionAccountsTable)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close()

	for _, r := range rows {
		delete(live, r.Address)
		if err := batch.Append(
			r.Address, r.ValidatorVoteAccount, r.MerkleRootUploadAuthority,
			r.EpochCreatedAt, r.ExpiresAt, r.ValidatorCommissionBps, r.Lamports,
			r.MerkleRoot, r.MaxTotalClaim, r.MaxNumNodes, r.TotalFundsClaimed, r.NumNodesClaimed,
			uint8(0), ts,
		); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	for addr := range live {
		if err := batch.Append(
			addr, "", "", uint64(0), uint64(0), uint16(0), uint64(0),
			(*string)(nil), uint64(0), uint64(0), uint64(0), uint64(0),
			uint8(1), ts,
		); err != nil {
			return fmt.Errorf("failed to append tombstone: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	metrics.RowsWrittenTotal.WithLabelValues(tipDistributionAccountsTable).Add(float64(len(rows) + len(live)))
	return nil
}

// InsertClaimStatuses appends observed receipts. Re-inserting a receipt is
// harmless; the table collapses duplicates by address.
func (s *Store) InsertClaimStatuses(ctx context.Context, ts time.Time, rows []ClaimStatus) error {
	if len(rows) == 0 {
		return nil
	}
	s.log.Debug("tipdist/store: inserting claim statuses", "count", len(rows))

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+claimStatusesTable)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close()

	for _, r := range rows {
		if err := batch.Append(r.Address, r.Claimant, r.ClaimStatusPayer, r.SlotClaimedAt, r.Amount, r.ExpiresAt, ts); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	metrics.RowsWrittenTotal.WithLabelValues(claimStatusesTable).Add(float64(len(rows)))
	return nil
}

// GetTipDistributionAccounts returns the live accounts of the latest
// snapshot, ordered by address.
func (s *Store) GetTipDistributionAccounts(ctx context.Context) ([]TipDistributionAccount, error) {
	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	start := time.Now()
	rows, err := conn.Query(ctx, `
		SELECT address, validator_vote_account, merkle_root_upload_authority,
			epoch_created_at, expires_at, validator_commission_bps, lamports,
			merkle_root, max_total_claim, max_num_nodes, total_funds_claimed, num_nodes_claimed
		FROM `+tipDistributionAccountsTable+` FINAL
		WHERE is_deleted = 0
		ORDER BY address`)
	metrics.DatabaseQueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to query tip distribution accounts: %w", err)
	}
	defer rows.Close()

	var out []TipDistributionAccount
	for rows.Next() {
		var r TipDistributionAccount
		if err := rows.Scan(
			&r.Address, &r.ValidatorVoteAccount, &r.MerkleRootUploadAuthority,
			&r.EpochCreatedAt, &r.ExpiresAt, &r.ValidatorCommissionBps, &r.Lamports,
			&r.MerkleRoot, &r.MaxTotalClaim, &r.MaxNumNodes, &r.TotalFundsClaimed, &r.NumNodesClaimed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetClaimStatuses(ctx context.Context) ([]ClaimStatus, error) {
	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	start := time.Now()
	rows, err := conn.Query(ctx, `
		SELECT address, claimant, claim_status_payer, slot_claimed_at, amount, expires_at
		FROM `+claimStatusesTable+` FINAL
		ORDER BY address`)
	metrics.DatabaseQueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to query claim statuses: %w", err)
	}
	defer rows.Close()

	var out []ClaimStatus
	for rows.Next() {
		var r ClaimStatus
		if err := rows.Scan(&r.Address, &r.Claimant, &r.ClaimStatusPayer, &r.SlotClaimedAt, &r.Amount, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) liveAddresses(ctx context.Context, conn clickhouse.Connection) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, "SELECT address FROM "+tipDistributionAccountsTable+" FINAL WHERE is_deleted = 0")
	if err != nil {
		return nil, fmt.Errorf("failed to query live addresses: %w", err)
	}
	defer rows.Close()

	live := make(map[string]struct{})
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		live[addr] = struct{}{}
	}
	return live, rows.Err()
}
