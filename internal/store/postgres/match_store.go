package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/parasfix/betsol/internal/domain"
)

// MatchStore implements domain.MatchStore using PostgreSQL.
type MatchStore struct {
	pool *pgxpool.Pool
}

// NewMatchStore creates a new MatchStore backed by the given connection pool.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

// Create inserts a new match and returns it with the assigned id.
func (s *MatchStore) Create(ctx context.Context, m domain.Match) (domain.Match, error) {
	const query = `
		INSERT INTO matches (team_a, team_b, odds_a, odds_b, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		m.TeamA, m.TeamB, m.OddsA.String(), m.OddsB.String(),
		string(m.Status), m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return domain.Match{}, fmt.Errorf("postgres: create match: %w", err)
	}
	return m, nil
}

// Odds are stored as NUMERIC and scanned through text so the decimal values
// round-trip without float conversion.
const matchSelectCols = `id, team_a, team_b, odds_a::text, odds_b::text,
	status, winner, created_at, completed_at`

func scanMatchFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Match, error) {
	var m domain.Match
	var oddsA, oddsB, status string

	err := scanner.Scan(
		&m.ID, &m.TeamA, &m.TeamB, &oddsA, &oddsB,
		&status, &m.Winner, &m.CreatedAt, &m.CompletedAt,
	)
	if err != nil {
		return domain.Match{}, err
	}

	m.Status = domain.MatchStatus(status)
	if m.OddsA, err = decimal.NewFromString(oddsA); err != nil {
		return domain.Match{}, fmt.Errorf("parse odds_a: %w", err)
	}
	if m.OddsB, err = decimal.NewFromString(oddsB); err != nil {
		return domain.Match{}, fmt.Errorf("parse odds_b: %w", err)
	}
	return m, nil
}

func scanMatchRows(rows pgx.Rows) ([]domain.Match, error) {
	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatchFromRow(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetByID retrieves a single match.
func (s *MatchStore) GetByID(ctx context.Context, id int64) (domain.Match, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+matchSelectCols+` FROM matches WHERE id = $1`, id)

	m, err := scanMatchFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Match{}, domain.ErrNotFound
		}
		return domain.Match{}, fmt.Errorf("postgres: get match %d: %w", id, err)
	}
	return m, nil
}

// ListOpen returns matches still open for wagering, newest first.
func (s *MatchStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Match, error) {
	query := `SELECT ` + matchSelectCols + ` FROM matches
		WHERE status = 'open' ORDER BY created_at DESC`
	args := []any{}
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
		return nil, fmt.Errorf("postgres: list open matches: %w", err)
	}
	defer rows.Close()

	matches, err := scanMatchRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open matches: %w", err)
	}
	return matches, nil
}

// ListCompletedBefore returns completed matches whose completion time is
// older than cutoff, oldest first. The archiver drains this list.
func (s *MatchStore) ListCompletedBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Match, error) {
	query := `SELECT ` + matchSelectCols + ` FROM matches
		WHERE status = 'completed' AND completed_at < $1
		ORDER BY completed_at ASC`
	args := []any{cutoff}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed matches: %w", err)
	}
	defer rows.Close()

	matches, err := scanMatchRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan completed matches: %w", err)
	}
	return matches, nil
}

// Resolve flips an open match to completed. The status predicate makes the
// transition conditional, so a second concurrent resolve updates zero rows
// and reports domain.ErrInvalidTransition.
func (s *MatchStore) Resolve(ctx context.Context, id int64, winner string, completedAt time.Time) error {
	const query = `
		UPDATE matches
		SET status = 'completed', winner = $1, completed_at = $2
		WHERE id = $3 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, winner, completedAt, id)
	if err != nil {
		return fmt.Errorf("postgres: resolve match %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already completed; distinguish for the caller.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM matches WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: resolve match %d: %w", id, err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// Compile-time interface check.
var _ domain.MatchStore = (*MatchStore)(nil)
