package bid

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bidwatch/internal/adapters/storage"
	domain "bidwatch/internal/domain/bid"
)

// timeLayout has fixed-width fractions so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new SQLiteStore.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const bidColumns = `id, post_id, item_number, amount, bidder_name, raw_text, relative_time,
		images, is_summary, withdrawn, created_at`

// Insert writes a bid unless an identical (post, item, amount, bidder) row exists.
// PRE: r.Bid has been validated, r.ID and r.CreatedAt are set
// POST: returns true only when a new row was written
func (s *SQLiteStore) Insert(ctx context.Context, r domain.Record) (bool, error) {
	images, err := encodeImages(r.Bid.Images)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bid (`+bidColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(post_id, item_number, amount, bidder_name) DO NOTHING`,
		r.ID, r.Bid.PostID, r.Bid.ItemNumber, domain.CanonicalAmount(r.Bid.Amount), r.Bid.BidderName,
		r.Bid.RawText, r.Bid.RelativeTime, images, boolToInt(r.Bid.IsSummary), boolToInt(r.Withdrawn),
		r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePlaceholder removes placeholder-attributed rows for one (post, item, amount).
// PRE: postID is non-empty
// POST: returns the number of rows removed
func (s *SQLiteStore) DeletePlaceholder(ctx context.Context, postID string, item int, amount decimal.Decimal) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bid WHERE post_id = ? AND item_number = ? AND amount = ? AND `+placeholderPredicate,
		postID, item, domain.CanonicalAmount(amount))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasKnownBidder reports whether a non-placeholder bid exists for (post, item, amount).
func (s *SQLiteStore) HasKnownBidder(ctx context.Context, postID string, item int, amount decimal.Decimal) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bid WHERE post_id = ? AND item_number = ? AND amount = ? AND NOT `+placeholderPredicate,
		postID, item, domain.CanonicalAmount(amount)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByPost returns every stored bid of a post in insertion order.
// PRE: postID is non-empty
// POST: withdrawn rows are included and flagged
func (s *SQLiteStore) ListByPost(ctx context.Context, postID string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bid WHERE post_id = ? ORDER BY created_at, rowid`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			r                   domain.Record
			amount, images, cat string
			summary, withdrawn  int
		)
		if err := rows.Scan(&r.ID, &r.Bid.PostID, &r.Bid.ItemNumber, &amount, &r.Bid.BidderName,
			&r.Bid.RawText, &r.Bid.RelativeTime, &images, &summary, &withdrawn, &cat); err != nil {
			return nil, err
		}
		r.Bid.Amount = parseAmount(amount, r.ID)
		r.Bid.Images = decodeImages(images, r.ID)
		r.Bid.IsSummary = summary != 0
		r.Withdrawn = withdrawn != 0
		r.CreatedAt = parseTime(cat, r.ID)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListPosts returns the distinct post ids that have stored bids.
func (s *SQLiteStore) ListPosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT post_id FROM bid ORDER BY post_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetWithdrawn flags or unflags a bid as withdrawn.
// PRE: id is non-empty
// POST: returns ErrNotFound when no row matched
func (s *SQLiteStore) SetWithdrawn(ctx context.Context, id string, withdrawn bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bid SET withdrawn = ? WHERE id = ?`, boolToInt(withdrawn), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeImages(images []string) (string, error) {
	if len(images) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeImages(raw, bidID string) []string {
	var images []string
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		slog.Warn("bid: failed to decode images", "bid_id", bidID, "error", err)
	}
	return images
}

func parseAmount(raw, bidID string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		slog.Warn("bid: failed to parse amount", "bid_id", bidID, "raw", raw, "error", err)
	}
	return d
}

func parseTime(raw, bidID string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		slog.Warn("bid: failed to parse time", "field", "created_at", "bid_id", bidID, "raw", raw, "error", err)
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
