package bid

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domain "bidwatch/internal/domain/bid"
)

// dedupConstraint names the unique key that makes a repeated bid a no-op.
const dedupConstraint = "bid_dedup_key"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS bid (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	item_number INTEGER NOT NULL,
	amount TEXT NOT NULL,
	bidder_name TEXT NOT NULL,
	raw_text TEXT NOT NULL DEFAULT '',
	relative_time TEXT NOT NULL DEFAULT '',
	images TEXT[] NOT NULL DEFAULT '{}',
	is_summary BOOLEAN NOT NULL DEFAULT FALSE,
	withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT ` + dedupConstraint + ` UNIQUE (post_id, item_number, amount, bidder_name)
);
CREATE INDEX IF NOT EXISTS idx_bid_post ON bid(post_id, item_number);
`

// PostgresStore implements Store on a shared Postgres database, for
// deployments where several bidwatch processes ingest into one table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the bid table exists.
// PRE: dsn is a valid Postgres connection string
// POST: returns a store with a live pool; caller must Close it
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Insert writes a bid; a unique violation on the dedup key reports false.
// PRE: r.Bid has been validated, r.ID and r.CreatedAt are set
// POST: returns true only when a new row was written
func (s *PostgresStore) Insert(ctx context.Context, r domain.Record) (bool, error) {
	images := r.Bid.Images
	if images == nil {
		images = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bid (id, post_id, item_number, amount, bidder_name, raw_text, relative_time,
		   images, is_summary, withdrawn, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.Bid.PostID, r.Bid.ItemNumber, domain.CanonicalAmount(r.Bid.Amount), r.Bid.BidderName,
		r.Bid.RawText, r.Bid.RelativeTime, images, r.Bid.IsSummary, r.Withdrawn, r.CreatedAt)
	if err != nil {
		if isUniqueViolationOnConstraint(err, dedupConstraint) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeletePlaceholder removes placeholder-attributed rows for one (post, item, amount).
func (s *PostgresStore) DeletePlaceholder(ctx context.Context, postID string, item int, amount decimal.Decimal) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bid WHERE post_id = $1 AND item_number = $2 AND amount = $3 AND `+placeholderPredicate,
		postID, item, domain.CanonicalAmount(amount))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HasKnownBidder reports whether a non-placeholder bid exists for (post, item, amount).
func (s *PostgresStore) HasKnownBidder(ctx context.Context, postID string, item int, amount decimal.Decimal) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bid WHERE post_id = $1 AND item_number = $2 AND amount = $3 AND NOT `+placeholderPredicate+`)`,
		postID, item, domain.CanonicalAmount(amount)).Scan(&exists)
	return exists, err
}

// ListByPost returns every stored bid of a post in insertion order.
func (s *PostgresStore) ListByPost(ctx context.Context, postID string) ([]domain.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, post_id, item_number, amount, bidder_name, raw_text, relative_time,
		   images, is_summary, withdrawn, created_at
		 FROM bid WHERE post_id = $1 ORDER BY seq`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			r      domain.Record
			amount string
		)
		if err := rows.Scan(&r.ID, &r.Bid.PostID, &r.Bid.ItemNumber, &amount, &r.Bid.BidderName,
			&r.Bid.RawText, &r.Bid.RelativeTime, &r.Bid.Images, &r.Bid.IsSummary, &r.Withdrawn,
			&r.CreatedAt); err != nil {
			return nil, err
		}
		r.Bid.Amount = parseAmount(amount, r.ID)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListPosts returns the distinct post ids that have stored bids.
func (s *PostgresStore) ListPosts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT post_id FROM bid ORDER BY post_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SetWithdrawn flags or unflags a bid as withdrawn.
func (s *PostgresStore) SetWithdrawn(ctx context.Context, id string, withdrawn bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bid SET withdrawn = $1 WHERE id = $2`, withdrawn, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolationOnConstraint reports whether err is a Postgres unique
// violation (SQLSTATE 23505) on the named constraint.
func isUniqueViolationOnConstraint(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

var _ Store = (*PostgresStore)(nil)
