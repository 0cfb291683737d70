package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/payment"

	_ "modernc.org/sqlite"
)

const selectPayments = `SELECT id, tenant_id, amount, currency, method, status, created_at FROM payments`

// SQLStore persists payments in a SQLite table. The autoincrement seq column
// preserves insertion order for scans.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps db and creates the schema if needed.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate payments: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			tenant_id  TEXT NOT NULL,
			amount     REAL NOT NULL,
			currency   TEXT NOT NULL,
			method     TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS payments_created_at ON payments (created_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, p payment.Payment) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (id, tenant_id, amount, currency, method, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		p.ID, p.TenantID, p.Amount, p.Currency, p.Method, string(p.Status), p.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert payment %s: %w", ErrUnavailable, p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: insert payment %s: %w", ErrUnavailable, p.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
	}
	return nil
}

func (s *SQLStore) Range(ctx context.Context, from, to time.Time) ([]payment.Payment, error) {
	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, from.UTC().UnixNano())
	}
	if !to.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, to.UTC().UnixNano())
	}
	query := selectPayments
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: range payments: %w", ErrUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []payment.Payment
	for rows.Next() {
		var (
			p         payment.Payment
			status    string
			createdAt int64
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Amount, &p.Currency, &p.Method, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan payment: %w", ErrUnavailable, err)
		}
		p.Status = payment.Status(status)
		p.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: range payments: %w", ErrUnavailable, err)
	}
	return out, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
