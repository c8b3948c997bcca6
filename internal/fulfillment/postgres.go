package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// PostgresStore is the durable Store implementation. The schema is two
// tables: fulfillments (one row per approved payment) and upsell_unlocks
// (set of parent payment ids with an approved linked upsell).
type PostgresStore struct {
	pool *sql.DB
}

// NewPostgresStore wraps a live connection pool. The pool must already be
// open and pinged; call EnsureSchema once at startup.
func NewPostgresStore(pool *sql.DB) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the two tables if they do not exist. Idempotent, safe
// to run on every boot.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS fulfillments (
	payment_id     TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'approved',
	email          TEXT NOT NULL DEFAULT '',
	profile        TEXT NOT NULL,
	download_token TEXT NOT NULL,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS upsell_unlocks (
	parent_payment_id TEXT PRIMARY KEY,
	unlocked_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	if _, err := s.pool.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("fulfillment: ensure schema: %w", err)
	}
	return nil
}

// withTx begins a serializable transaction, runs fn, and commits on success
// or rolls back on any error (including panics). Serializable isolation is
// used because Fulfill is a read-then-insert; two concurrent transactions
// for the same payment cannot both commit an insert.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("fulfillment: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("fulfillment: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fulfillment: commit transaction: %w", err)
	}
	return nil
}

// Fulfill checks for an existing row and inserts one if absent, all inside a
// serializable transaction. When the race is lost to a concurrent fulfiller
// (unique violation or serialization failure), the committed row is re-read
// and returned — the caller cannot tell which path won, which is the point.
func (s *PostgresStore) Fulfill(ctx context.Context, p FulfillParams) (Record, error) {
	var rec Record

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, ok, err := scanRecord(tx.QueryRowContext(ctx,
			`SELECT payment_id, status, email, profile, download_token, created_at
			 FROM fulfillments WHERE payment_id = $1`, p.PaymentID))
		if err != nil {
			return err
		}
		if ok {
			rec = existing
			return nil
		}

		token, err := newDownloadToken()
		if err != nil {
			return err
		}

		payload := pqtype.NullRawMessage{RawMessage: p.RawPayload, Valid: len(p.RawPayload) > 0}
		now := time.Now().UTC()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fulfillments (payment_id, status, email, profile, download_token, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.PaymentID, StatusApproved, p.Email, p.Profile, token, payload, now); err != nil {
			return fmt.Errorf("fulfillment: insert record: %w", err)
		}

		rec = Record{
			PaymentID:     p.PaymentID,
			Status:        StatusApproved,
			Email:         p.Email,
			Profile:       p.Profile,
			DownloadToken: token,
			CreatedAt:     now,
		}
		return nil
	})

	if isWriteConflict(err) {
		existing, ok, getErr := s.Get(ctx, p.PaymentID)
		if getErr == nil && ok {
			return existing, nil
		}
		return Record{}, err
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, paymentID string) (Record, bool, error) {
	return scanRecord(s.pool.QueryRowContext(ctx,
		`SELECT payment_id, status, email, profile, download_token, created_at
		 FROM fulfillments WHERE payment_id = $1`, paymentID))
}

// MarkUpsellUnlocked is a single idempotent upsert — no transaction needed.
func (s *PostgresStore) MarkUpsellUnlocked(ctx context.Context, parentPaymentID string) error {
	_, err := s.pool.ExecContext(ctx,
		`INSERT INTO upsell_unlocks (parent_payment_id) VALUES ($1)
		 ON CONFLICT (parent_payment_id) DO NOTHING`, parentPaymentID)
	if err != nil {
		return fmt.Errorf("fulfillment: mark upsell unlocked: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsUpsellUnlocked(ctx context.Context, parentPaymentID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM upsell_unlocks WHERE parent_payment_id = $1)`,
		parentPaymentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("fulfillment: check upsell unlocked: %w", err)
	}
	return exists, nil
}

// scanRecord reads one fulfillment row; ok=false on sql.ErrNoRows.
func scanRecord(row *sql.Row) (Record, bool, error) {
	var rec Record
	err := row.Scan(&rec.PaymentID, &rec.Status, &rec.Email, &rec.Profile, &rec.DownloadToken, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("fulfillment: scan record: %w", err)
	}
	return rec, true, nil
}

// isWriteConflict matches the two ways a lost Fulfill race surfaces under
// serializable isolation: a unique violation on payment_id or a
// serialization failure.
func isWriteConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" || pqErr.Code == "40001"
}
