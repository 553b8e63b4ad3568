// Package redis provides a migration ledger shared through Redis, for
// deployments that run several replicas without a common PostgreSQL ledger.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces ledger entries.
const KeyPrefix = "dayboard:migration:"

const (
	claimedState  = "claimed"
	recordedState = "recorded"
)

// claimScript reserves a key unless it holds a run newer than the cutoff.
// KEYS[1] entry, ARGV[1] new value, ARGV[2] cutoff in unix ms, ARGV[3] ttl in ms.
var claimScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v then
	local ts = tonumber(string.match(v, ':(%d+)$'))
	if ts and ts > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// releaseScript deletes a key only while it holds an unrecorded claim.
var releaseScript = goredis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v and string.sub(v, 1, string.len(ARGV[1])) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Ledger implements ledger.Ledger on Redis. Entries expire after the
// cooldown, so Redis never accumulates stale runs.
type Ledger struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

var _ ledger.Ledger = (*Ledger)(nil)

// NewLedger creates a Redis-backed ledger.
func NewLedger(client goredis.UniversalClient, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		client: client,
		logger: logger.With(slog.String("component", "redis_ledger")),
	}
}

// Connect parses a redis:// URL and returns a client that answered PING.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %w", store.ErrUnavailable, err)
	}
	return client, nil
}

func entryKey(key ledger.Key) string {
	return KeyPrefix + key.String()
}

func entryValue(state string, at time.Time) string {
	return state + ":" + strconv.FormatInt(at.UnixMilli(), 10)
}

func ttl(cooldown time.Duration) time.Duration {
	if cooldown < time.Millisecond {
		return time.Millisecond
	}
	return cooldown
}

// Claim implements ledger.Ledger.
func (l *Ledger) Claim(ctx context.Context, key ledger.Key, now time.Time, cooldown time.Duration) (bool, error) {
	res, err := claimScript.Run(ctx, l.client,
		[]string{entryKey(key)},
		entryValue(claimedState, now),
		now.Add(-cooldown).UnixMilli(),
		ttl(cooldown).Milliseconds(),
	).Int()
	if err != nil {
		return false, l.mapError(ctx, "claim", err)
	}
	return res == 1, nil
}

// Record implements ledger.Ledger.
func (l *Ledger) Record(ctx context.Context, key ledger.Key, at time.Time, cooldown time.Duration) error {
	err := l.client.Set(ctx, entryKey(key), entryValue(recordedState, at), ttl(cooldown)).Err()
	return l.mapError(ctx, "record", err)
}

// Release implements ledger.Ledger.
func (l *Ledger) Release(ctx context.Context, key ledger.Key) error {
	err := releaseScript.Run(ctx, l.client, []string{entryKey(key)}, claimedState+":").Err()
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	return l.mapError(ctx, "release", err)
}

// LastRun implements ledger.Ledger. Unrecorded claims are not reported.
func (l *Ledger) LastRun(ctx context.Context, key ledger.Key) (time.Time, bool, error) {
	v, err := l.client.Get(ctx, entryKey(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, l.mapError(ctx, "last_run", err)
	}

	state, ms, ok := strings.Cut(v, ":")
	if !ok || state != recordedState {
		return time.Time{}, false, nil
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed ledger entry %q: %w", v, err)
	}
	return time.UnixMilli(n).UTC(), true, nil
}

func (l *Ledger) mapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	logger.FromContextOrDefault(ctx, l.logger).Warn("redis ledger operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}
