// utils/windows.go
package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowCounters tracks rolling activity windows (submissions per window,
// distinct IPs per day) in redis so counts hold across process instances.
// Callers treat a redis failure as "no data" and fall back to DB queries.
type WindowCounters struct {
	RDB *redis.Client
}

func NewWindowCounters(rdb *redis.Client) *WindowCounters {
	return &WindowCounters{RDB: rdb}
}

// IncrSubmissions bumps the user's submission counter for the given window
// and returns the count including this submission. bucket names the counter's
// purpose ("dup", "hourly") so two windows of equal length never share a key.
func (w *WindowCounters) IncrSubmissions(ctx context.Context, userID, bucket string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("rewards:subs:%s:%s:%d", bucket, userID, window/time.Second)
	pipe := w.RDB.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}

// TouchIP records the IP for the user's trailing-24h distinct-IP set and
// returns the set size including this IP.
func (w *WindowCounters) TouchIP(ctx context.Context, userID, ip string) (int64, error) {
	key := "rewards:ips:" + userID
	pipe := w.RDB.TxPipeline()
	pipe.SAdd(ctx, key, ip)
	pipe.Expire(ctx, key, 24*time.Hour)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis sadd: %w", err)
	}
	return card.Val(), nil
}

// ReplayGuard is a cheap pre-filter in front of the DB idempotency key:
// an already-seen (apiKey, timestamp, signature) triple within the TTL is a
// replayed delivery and can skip straight to the stored result path.
type ReplayGuard struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewReplayGuard(rdb *redis.Client) *ReplayGuard {
	return &ReplayGuard{RDB: rdb, TTL: 5 * time.Minute}
}

// FirstDelivery marks the triple and reports whether it was unseen.
// SETNX keeps the check atomic under concurrent deliveries.
func (g *ReplayGuard) FirstDelivery(ctx context.Context, apiKey, timestamp, signature string) (bool, error) {
	sum := sha256.Sum256([]byte(apiKey + ":" + timestamp + ":" + signature))
	key := "rewards:replay:" + hex.EncodeToString(sum[:])
	ok, err := g.RDB.SetNX(ctx, key, "1", g.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}
