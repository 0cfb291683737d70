// Package store holds the append-only payment log that every derived view
// (metrics, trends) is recomputed from.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/paypulse/internal/config"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

var (
	// ErrUnavailable marks a failure to reach the backing store. Callers may retry.
	ErrUnavailable = errors.New("event store unavailable")
	// ErrDuplicate is returned when a payment id was already appended.
	ErrDuplicate = errors.New("payment already stored")
)

// EventStore is an append-only payment log with time range scans.
// Implementations must be safe for concurrent reads during writes.
type EventStore interface {
	// Append records p. Appending an id twice fails with ErrDuplicate.
	Append(ctx context.Context, p payment.Payment) error
	// Range returns payments with from <= CreatedAt < to, in insertion order.
	// A zero from or to leaves that side of the range open.
	Range(ctx context.Context, from, to time.Time) ([]payment.Payment, error)
	Close() error
}

// Open builds the store selected by conf.
func Open(ctx context.Context, conf config.StoreConf) (EventStore, error) {
	switch conf.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		db, err := sql.Open("sqlite", conf.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", conf.DSN, err)
		}
		s, err := NewSQLStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: ping redis %s: %w", ErrUnavailable, conf.RedisAddr, err)
		}
		return NewRedisStore(client, conf.KeyPrefix), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", conf.Driver)
}

// inRange reports whether t falls in [from, to) with zero bounds open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
