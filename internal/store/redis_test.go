package store

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

var errTransient = errors.New("transient network error")

// flakyScripts fails the next n script calls. With lost set the call still
// reaches the server and only the reply is dropped.
type flakyScripts struct {
	n    atomic.Int32
	lost bool
}

func (h *flakyScripts) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *flakyScripts) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *flakyScripts) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !strings.HasPrefix(cmd.Name(), "eval") || h.n.Load() <= 0 {
			return next(ctx, cmd)
		}
		if h.lost {
			if err := next(ctx, cmd); err != nil {
				return err
			}
		}
		h.n.Add(-1)
		cmd.SetErr(errTransient)
		return errTransient
	}
}

func newTestRedis(t *testing.T, hook redis.Hook) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if hook != nil {
		client.AddHook(hook)
	}
	s := NewRedisStore(client, "paypulse-test")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func testPayment(id string) payment.Payment {
	return payment.Payment{ID: id, TenantID: "t", Amount: 10, Currency: "INR", Method: "UPI",
		Status: payment.StatusSuccess, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestRedisCodec_RoundTrip(t *testing.T) {
	p := payment.Payment{
		ID:        "p1",
		TenantID:  "tenant-b",
		Amount:    1234.56,
		Currency:  "INR",
		Method:    "NETBANKING",
		Status:    payment.StatusRefunded,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
	}
	fields := encodePayment(p)
	fields["seq"] = "7"
	got, seq, err := decodePayment(fields)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	got.CreatedAt, p.CreatedAt = time.Time{}, time.Time{}
	assert.Equal(t, p, got)
}

func TestRedisCodec_RejectsGarbage(t *testing.T) {
	_, _, err := decodePayment(map[string]string{"amount": "abc", "createdAt": "1", "seq": "1"})
	assert.Error(t, err)
}

func TestRedisStore_FailedAppendLeavesNothing(t *testing.T) {
	hook := &flakyScripts{}
	hook.n.Store(1)
	s, mr := newTestRedis(t, hook)
	ctx := context.Background()

	err := s.Append(ctx, testPayment("p1"))
	require.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, errTransient)
	assert.False(t, mr.Exists(s.paymentKey("p1")), "no partial hash after a failed append")

	require.NoError(t, s.Append(ctx, testPayment("p1")), "retry must not be reported as a duplicate")
	all, err := s.Range(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p1", all[0].ID)
}

func TestRedisStore_LostReplyRetryIsDuplicate(t *testing.T) {
	hook := &flakyScripts{lost: true}
	hook.n.Store(1)
	s, _ := newTestRedis(t, hook)
	ctx := context.Background()

	require.ErrorIs(t, s.Append(ctx, testPayment("p1")), ErrUnavailable)
	// The write landed, so the redelivered payment is a duplicate and still readable.
	assert.ErrorIs(t, s.Append(ctx, testPayment("p1")), ErrDuplicate)
	all, err := s.Range(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "p1", all[0].ID)
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := newTestRedis(t, nil)
	mr.Close()
	ctx := context.Background()
	assert.ErrorIs(t, s.Append(ctx, testPayment("p1")), ErrUnavailable)
	_, err := s.Range(ctx, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrUnavailable)
}
