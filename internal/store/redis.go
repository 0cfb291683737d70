package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

// RedisStore keeps each payment in a hash and indexes it in a sorted set
// scored by createdAt (unix milliseconds) for range scans.
//
//	<prefix>:payment:<id>    hash of payment fields plus seq
//	<prefix>:payments:time   zset id -> createdAt ms
//	<prefix>:payments:seq    insertion counter
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) paymentKey(id string) string { return s.prefix + ":payment:" + id }
func (s *RedisStore) timeKey() string            { return s.prefix + ":payments:time" }
func (s *RedisStore) seqKey() string             { return s.prefix + ":payments:seq" }

// appendScript stores a payment only if its id is unseen. The claim, the seq
// and both writes happen in one step, so a failed append leaves nothing behind.
// KEYS[1] = payment hash
// KEYS[2] = time index
// KEYS[3] = seq counter
// ARGV[1] = payment id
// ARGV[2] = createdAt score (unix ms)
// ARGV[3..] = hash field/value pairs
var appendScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
    return 0
end
local seq = redis.call("INCR", KEYS[3])
redis.call("HSET", KEYS[1], "seq", seq, unpack(ARGV, 3))
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
return 1
`)

func (s *RedisStore) Append(ctx context.Context, p payment.Payment) error {
	keys := []string{s.paymentKey(p.ID), s.timeKey(), s.seqKey()}
	fields := encodePayment(p)
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, p.ID, p.CreatedAt.UnixMilli())
	for k, v := range fields {
		args = append(args, k, v)
	}
	stored, err := appendScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("%w: store payment %s: %w", ErrUnavailable, p.ID, err)
	}
	if stored == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
	}
	return nil
}

func (s *RedisStore) Range(ctx context.Context, from, to time.Time) ([]payment.Payment, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !from.IsZero() {
		by.Min = strconv.FormatInt(from.UnixMilli(), 10)
	}
	if !to.IsZero() {
		// Inclusive at millisecond precision; the exact bound is applied below.
		by.Max = strconv.FormatInt(to.UnixMilli(), 10)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.timeKey(), by).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("%w: range payments: %w", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []payment.Payment{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.paymentKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("%w: load payments: %w", ErrUnavailable, err)
	}

	type seqPayment struct {
		seq int64
		p   payment.Payment
	}
	rows := make([]seqPayment, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // removed out of band
		}
		p, seq, err := decodePayment(fields)
		if err != nil {
			return nil, fmt.Errorf("decode payment %s: %w", ids[i], err)
		}
		if inRange(p.CreatedAt, from, to) {
			rows = append(rows, seqPayment{seq: seq, p: p})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	out := make([]payment.Payment, len(rows))
	for i, r := range rows {
		out[i] = r.p
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// encodePayment returns the hash fields of p; seq is assigned by appendScript.
func encodePayment(p payment.Payment) map[string]string {
	return map[string]string{
		"id":        p.ID,
		"tenantId":  p.TenantID,
		"amount":    strconv.FormatFloat(p.Amount, 'f', -1, 64),
		"currency":  p.Currency,
		"method":    p.Method,
		"status":    string(p.Status),
		"createdAt": strconv.FormatInt(p.CreatedAt.UnixNano(), 10),
	}
}

func decodePayment(fields map[string]string) (payment.Payment, int64, error) {
	amount, err := strconv.ParseFloat(fields["amount"], 64)
	if err != nil {
		return payment.Payment{}, 0, fmt.Errorf("parse amount: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["createdAt"], 10, 64)
	if err != nil {
		return payment.Payment{}, 0, fmt.Errorf("parse createdAt: %w", err)
	}
	seq, err := strconv.ParseInt(fields["seq"], 10, 64)
	if err != nil {
		return payment.Payment{}, 0, fmt.Errorf("parse seq: %w", err)
	}
	return payment.Payment{
		ID:        fields["id"],
		TenantID:  fields["tenantId"],
		Amount:    amount,
		Currency:  fields["currency"],
		Method:    fields["method"],
		Status:    payment.Status(fields["status"]),
		CreatedAt: time.Unix(0, createdAt).UTC(),
	}, seq, nil
}
