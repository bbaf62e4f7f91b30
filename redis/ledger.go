// Package redis records which subscribers already received an issue and
// holds the per-issue dispatch lock.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The lock TTL only has to outlive the gap between two Extend calls of a live run;
// a crashed run frees the issue within that time.
const (
	defaultLockTTL      = 10 * time.Minute
	defaultRetention    = 7 * 24 * time.Hour
	keyPrefix           = "dailybrief:dispatch"
	releaseScriptSource = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	extendScriptSource = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
)

var (
	releaseScript = redis.NewScript(releaseScriptSource)
	extendScript  = redis.NewScript(extendScriptSource)
)

// Ledger implements dailybrief.DispatchLedger on top of Redis.
type Ledger struct {
	client    redis.UniversalClient
	owner     string
	lockTTL   time.Duration
	retention time.Duration
}

// NewLedger returns a ledger using client.
func NewLedger(client redis.UniversalClient) *Ledger {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return &Ledger{
		client:    client,
		owner:     hex.EncodeToString(b),
		lockTTL:   defaultLockTTL,
		retention: defaultRetention,
	}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewLedger(client), nil
}

// Close closes the underlying client.
func (l *Ledger) Close() error {
	return l.client.Close()
}

// Acquire takes the dispatch lock of an issue using SET NX with a TTL.
func (l *Ledger) Acquire(ctx context.Context, publicationDate string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(publicationDate), l.owner, l.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for %s: %w", publicationDate, err)
	}
	return ok, nil
}

// Extend resets the lock TTL if this ledger still owns the lock.
func (l *Ledger) Extend(ctx context.Context, publicationDate string) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{lockKey(publicationDate)}, l.owner, l.lockTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to extend lock for %s: %w", publicationDate, err)
	}
	return n == 1, nil
}

// Release drops the lock only if this ledger still owns it.
func (l *Ledger) Release(ctx context.Context, publicationDate string) error {
	return releaseScript.Run(ctx, l.client, []string{lockKey(publicationDate)}, l.owner).Err()
}

// Delivered reports whether email was already sent the issue.
func (l *Ledger) Delivered(ctx context.Context, publicationDate, email string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, sentKey(publicationDate), email).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", email, err)
	}
	return ok, nil
}

// MarkDelivered records a successful send.
func (l *Ledger) MarkDelivered(ctx context.Context, publicationDate, email string) error {
	key := sentKey(publicationDate)
	pipe := l.client.TxPipeline()
	pipe.SAdd(ctx, key, email)
	pipe.Expire(ctx, key, l.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record %s: %w", email, err)
	}
	return nil
}

func lockKey(publicationDate string) string {
	return fmt.Sprintf("%s:lock:%s", keyPrefix, publicationDate)
}

func sentKey(publicationDate string) string {
	return fmt.Sprintf("%s:sent:%s", keyPrefix, publicationDate)
}
