package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/phrazzld/dayboard/internal/ledger/ledgertest"
	"github.com/phrazzld/dayboard/internal/store"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return m, client
}

func TestRedisLedger(t *testing.T) {
	m, client := newServer(t)
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		return NewLedger(client, nil)
	}, m.FastForward)
}

func TestRedisLedger_EntriesExpireWithCooldown(t *testing.T) {
	m, client := newServer(t)
	l := NewLedger(client, nil)
	ctx := context.Background()
	key := ledger.Key{OwnerID: uuid.New()}
	now := time.Date(2025, 3, 5, 13, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(ctx, key, now, time.Hour))
	assert.True(t, m.Exists(entryKey(key)))
	assert.Equal(t, time.Hour, m.TTL(entryKey(key)))

	got, found, err := l.LastRun(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, now, got)

	m.FastForward(time.Hour + time.Second)
	_, found, err = l.LastRun(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisLedger_ReleaseKeepsRecordedRuns(t *testing.T) {
	_, client := newServer(t)
	l := NewLedger(client, nil)
	ctx := context.Background()
	key := ledger.Key{OwnerID: uuid.New()}
	now := time.Now()

	require.NoError(t, l.Record(ctx, key, now, time.Hour))
	require.NoError(t, l.Release(ctx, key))

	ok, err := l.Claim(ctx, key, now.Add(time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLedger_Unavailable(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: m.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	l := NewLedger(client, nil)
	m.Close()

	_, err = l.Claim(context.Background(), ledger.Key{OwnerID: uuid.New()}, time.Now(), time.Hour)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestConnect(t *testing.T) {
	m, _ := newServer(t)

	client, err := Connect(context.Background(), "redis://"+m.Addr())
	require.NoError(t, err)
	_ = client.Close()

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}
