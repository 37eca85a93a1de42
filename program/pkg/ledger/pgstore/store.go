// Package pgstore is a PostgreSQL implementation of ledger.Store. Each
// Update runs in a serializable transaction and locks the rows it reads.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

const uniqueViolation = "23505"

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func New(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) View(ctx context.Context, fn func(ledger.Reader) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// Update runs fn in a serializable transaction. Serialization failures are
// returned as-is and are classified retryable by utils/pkg/retry.
func (s *Store) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, forUpdate: true})
	})
	if err != nil {
		s.log.Debug("pgstore: update rolled back", "error", err)
	}
	return err
}

type pgTx struct {
	tx        pgx.Tx
	forUpdate bool
}

func (t *pgTx) Get(ctx context.Context, addr solana.PublicKey) (*ledger.Account, error) {
	query := `SELECT address, owner, lamports::text, executable, data FROM accounts WHERE address = $1`
	if t.forUpdate {
		query += ` FOR UPDATE`
	}
	acc, err := scanAccount(t.tx.QueryRow(ctx, query, addr[:]))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", addr, err)
	}
	return acc, nil
}

func (t *pgTx) ListByOwner(ctx context.Context, owner solana.PublicKey) ([]*ledger.Account, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT address, owner, lamports::text, executable, data FROM accounts WHERE owner = $1 ORDER BY address`,
		owner[:],
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by owner: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return out, nil
}

func (t *pgTx) Create(ctx context.Context, acc *ledger.Account) error {
	// A bare system account (lamports only) may be taken over.
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (address, owner, lamports, executable, data, updated_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, now())
		ON CONFLICT (address) DO UPDATE SET
			owner = EXCLUDED.owner,
			lamports = EXCLUDED.lamports,
			executable = EXCLUDED.executable,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		WHERE accounts.owner = $6 AND length(accounts.data) = 0 AND NOT accounts.executable`,
		accountArgs(acc, solana.SystemProgramID[:])...,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ledger.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account %s: %w", acc.Address, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountAlreadyExists
	}
	return nil
}

func (t *pgTx) Put(ctx context.Context, acc *ledger.Account) error {
	if acc.IsEmpty() {
		if _, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE address = $1`, acc.Address[:]); err != nil {
			return fmt.Errorf("failed to purge account %s: %w", acc.Address, err)
		}
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (address, owner, lamports, executable, data, updated_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, now())
		ON CONFLICT (address) DO UPDATE SET
			owner = EXCLUDED.owner,
			lamports = EXCLUDED.lamports,
			executable = EXCLUDED.executable,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		accountArgs(acc)...,
	)
	if err != nil {
		return fmt.Errorf("failed to put account %s: %w", acc.Address, err)
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, addr solana.PublicKey) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE address = $1`, addr[:])
	if err != nil {
		return fmt.Errorf("failed to delete account %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func accountArgs(acc *ledger.Account, extra ...any) []any {
	data := acc.Data
	if data == nil {
		data = []byte{}
	}
	args := []any{
		acc.Address[:],
		acc.Owner[:],
		strconv.FormatUint(acc.Lamports, 10),
		acc.Executable,
		data,
	}
	return append(args, extra...)
}

func scanAccount(row pgx.Row) (*ledger.Account, error) {
	var (
		address, owner, data []byte
		lamports             string
		executable           bool
	)
	if err := row.Scan(&address, &owner, &lamports, &executable, &data); err != nil {
		return nil, err
	}
	if len(address) != solana.PublicKeyLength || len(owner) != solana.PublicKeyLength {
		return nil, fmt.Errorf("malformed account key lengths %d/%d", len(address), len(owner))
	}
	n, err := strconv.ParseUint(lamports, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid lamports %q: %w", lamports, err)
	}
	acc := &ledger.Account{
		Address:    solana.PublicKeyFromBytes(address),
		Owner:      solana.PublicKeyFromBytes(owner),
		Lamports:   n,
		Executable: executable,
	}
	if len(data) > 0 {
		acc.Data = data
	}
	return acc, nil
}
