package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// WagerStore implements domain.WagerStore using PostgreSQL. Updates are
// versioned: every write checks the version it read and bumps it, so a
// concurrent writer loses cleanly instead of silently overwriting.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a new WagerStore backed by the given connection pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

// Create inserts a new wager.
func (s *WagerStore) Create(ctx context.Context, w domain.Wager) error {
	const query = `
		INSERT INTO wagers (
			id, user_handle, match_id, side, stake, odds, payout_wallet,
			status, loss_reason, payout, deposit_ref, payout_ref, version,
			created_at, confirmed_at, resolved_at, paid_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.UserHandle, w.MatchID, w.Side,
		w.Stake.String(), w.Odds.String(), w.PayoutWallet,
		string(w.Status), w.LossReason, w.Payout.String(),
		w.DepositRef, w.PayoutRef, w.Version,
		w.CreatedAt, w.ConfirmedAt, w.ResolvedAt, w.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create wager %s: %w", w.ID, err)
	}
	return nil
}

const wagerSelectCols = `id, user_handle, match_id, side,
	stake::text, odds::text, payout_wallet,
	status, loss_reason, payout::text, deposit_ref, payout_ref, version,
	created_at, confirmed_at, resolved_at, paid_at`

func scanWagerFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Wager, error) {
	var w domain.Wager
	var stake, odds, payout, status string

	err := scanner.Scan(
		&w.ID, &w.UserHandle, &w.MatchID, &w.Side,
		&stake, &odds, &w.PayoutWallet,
		&status, &w.LossReason, &payout, &w.DepositRef, &w.PayoutRef, &w.Version,
		&w.CreatedAt, &w.ConfirmedAt, &w.ResolvedAt, &w.PaidAt,
	)
	if err != nil {
		return domain.Wager{}, err
	}

	w.Status = domain.WagerStatus(status)
	if w.Stake, err = decimal.NewFromString(stake); err != nil {
		return domain.Wager{}, fmt.Errorf("parse stake: %w", err)
	}
	if w.Odds, err = decimal.NewFromString(odds); err != nil {
		return domain.Wager{}, fmt.Errorf("parse odds: %w", err)
	}
	if w.Payout, err = decimal.NewFromString(payout); err != nil {
		return domain.Wager{}, fmt.Errorf("parse payout: %w", err)
	}
	return w, nil
}

func scanWagerRows(rows pgx.Rows) ([]domain.Wager, error) {
	var wagers []domain.Wager
	for rows.Next() {
		w, err := scanWagerFromRow(rows)
		if err != nil {
			return nil, err
		}
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}

// GetByID retrieves a single wager.
func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.Wager, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+wagerSelectCols+` FROM wagers WHERE id = $1`, id)

	w, err := scanWagerFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Wager{}, domain.ErrNotFound
		}
		return domain.Wager{}, fmt.Errorf("postgres: get wager %s: %w", id, err)
	}
	return w, nil
}

// Update persists a mutated wager. The WHERE clause pins the version the
// caller read; zero rows affected means someone else wrote first and the
// caller must re-read and re-apply its transition.
func (s *WagerStore) Update(ctx context.Context, w domain.Wager) error {
	const query = `
		UPDATE wagers SET
			status = $1, loss_reason = $2, payout = $3,
			deposit_ref = $4, payout_ref = $5,
			confirmed_at = $6, resolved_at = $7, paid_at = $8,
			version = version + 1
		WHERE id = $9 AND version = $10`

	tag, err := s.pool.Exec(ctx, query,
		string(w.Status), w.LossReason, w.Payout.String(),
		w.DepositRef, w.PayoutRef,
		w.ConfirmedAt, w.ResolvedAt, w.PaidAt,
		w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: update wager %s: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM wagers WHERE id = $1)", w.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: update wager %s: %w", w.ID, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrVersionConflict
	}
	return nil
}

// ListByUser returns a user's wagers, newest first.
func (s *WagerStore) ListByUser(ctx context.Context, userHandle string, opts domain.ListOpts) ([]domain.Wager, error) {
	query := `SELECT ` + wagerSelectCols + ` FROM wagers
		WHERE user_handle = $1 ORDER BY created_at DESC`
	args := []any{userHandle}
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
		return nil, fmt.Errorf("postgres: list wagers by user: %w", err)
	}
	defer rows.Close()

	wagers, err := scanWagerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wagers by user: %w", err)
	}
	return wagers, nil
}

// ListByMatch returns every wager on a match, oldest first.
func (s *WagerStore) ListByMatch(ctx context.Context, matchID int64) ([]domain.Wager, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+wagerSelectCols+` FROM wagers
		 WHERE match_id = $1 ORDER BY created_at ASC`, matchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers by match: %w", err)
	}
	defer rows.Close()

	wagers, err := scanWagerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wagers by match: %w", err)
	}
	return wagers, nil
}

// ListPending returns all pending wagers ordered by creation time ascending;
// the matcher relies on this order for its deterministic tie-break.
func (s *WagerStore) ListPending(ctx context.Context) ([]domain.Wager, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+wagerSelectCols+` FROM wagers
		 WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending wagers: %w", err)
	}
	defer rows.Close()

	wagers, err := scanWagerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending wagers: %w", err)
	}
	return wagers, nil
}

// ListWonUnpaid returns won wagers with no payout reference attached,
// oldest first. This is the payout batch's re-entrant work queue.
func (s *WagerStore) ListWonUnpaid(ctx context.Context) ([]domain.Wager, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+wagerSelectCols+` FROM wagers
		 WHERE status = 'won' AND payout_ref = '' ORDER BY resolved_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list won unpaid wagers: %w", err)
	}
	defer rows.Close()

	wagers, err := scanWagerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan won unpaid wagers: %w", err)
	}
	return wagers, nil
}

// Compile-time interface check.
var _ domain.WagerStore = (*WagerStore)(nil)
