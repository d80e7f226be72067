package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// TransferStore implements domain.TransferStore using PostgreSQL. The
// primary key on ref is the observer's durable dedup set: Record is an
// INSERT ... ON CONFLICT DO NOTHING, so a replayed transfer is detected
// atomically without a read-then-write race.
type TransferStore struct {
	pool *pgxpool.Pool
}

// NewTransferStore creates a new TransferStore backed by the given pool.
func NewTransferStore(pool *pgxpool.Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// Record inserts an observed transfer. It returns false when the ref was
// already recorded, which callers treat as "seen before, skip".
func (s *TransferStore) Record(ctx context.Context, t domain.Transfer) (bool, error) {
	const query = `
		INSERT INTO transfers (ref, amount, source, observed_at, status, wager_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ref) DO NOTHING`

	status := t.Status
	if status == "" {
		status = domain.TransferStatusObserved
	}

	tag, err := s.pool.Exec(ctx, query,
		t.Ref, t.Amount.String(), t.Source, t.ObservedAt, string(status), t.WagerID,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: record transfer %s: %w", t.Ref, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkMatched links a transfer to the wager it confirmed.
func (s *TransferStore) MarkMatched(ctx context.Context, ref, wagerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transfers SET status = 'matched', wager_id = $1 WHERE ref = $2`,
		wagerID, ref,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark transfer matched %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkUnmatched flags a transfer for manual reconciliation.
func (s *TransferStore) MarkUnmatched(ctx context.Context, ref string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transfers SET status = 'unmatched' WHERE ref = $1`, ref,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark transfer unmatched %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListUnmatched returns transfers awaiting manual reconciliation, oldest
// first.
func (s *TransferStore) ListUnmatched(ctx context.Context, opts domain.ListOpts) ([]domain.Transfer, error) {
	return s.listByStatus(ctx, domain.TransferStatusUnmatched, opts)
}

// ListObserved returns transfers still waiting on a confirm, oldest first.
func (s *TransferStore) ListObserved(ctx context.Context, opts domain.ListOpts) ([]domain.Transfer, error) {
	return s.listByStatus(ctx, domain.TransferStatusObserved, opts)
}

func (s *TransferStore) listByStatus(ctx context.Context, status domain.TransferStatus, opts domain.ListOpts) ([]domain.Transfer, error) {
	query := `SELECT ref, amount::text, source, observed_at, status, wager_id
		FROM transfers WHERE status = $1 ORDER BY observed_at ASC`
	args := []any{string(status)}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s transfers: %w", status, err)
	}
	defer rows.Close()

	transfers, err := scanTransferRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %s transfers: %w", status, err)
	}
	return transfers, nil
}

func scanTransferRows(rows pgx.Rows) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var amount, status string
		if err := rows.Scan(&t.Ref, &amount, &t.Source, &t.ObservedAt, &status, &t.WagerID); err != nil {
			return nil, err
		}
		var err error
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		t.Status = domain.TransferStatus(status)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// Compile-time interface check.
var _ domain.TransferStore = (*TransferStore)(nil)
