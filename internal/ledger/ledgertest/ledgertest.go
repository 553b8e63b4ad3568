// Package ledgertest holds the behaviour every ledger backend must share.
package ledgertest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a Ledger implementation. newLedger must return an empty ledger.
// advance moves the backend's notion of time forward when it keeps its own
// clock for expiry (as Redis does); it may be nil.
func Run(t *testing.T, newLedger func(t *testing.T) ledger.Ledger, advance func(d time.Duration)) {
	t.Helper()
	const cooldown = 6 * time.Hour
	base := time.Date(2025, 3, 5, 13, 0, 0, 0, time.UTC)
	step := func(d time.Duration) {
		if advance != nil {
			advance(d)
		}
	}
	newKey := func() ledger.Key {
		return ledger.Key{OwnerID: uuid.New(), Date: civil.Date{Year: 2025, Month: 3, Day: 5}}
	}

	t.Run("claim then claim again is suppressed", func(t *testing.T) {
		l := newLedger(t)
		ctx := context.Background()
		key := newKey()

		ok, err := l.Claim(ctx, key, base, cooldown)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, l.Record(ctx, key, base, cooldown))

		ok, err = l.Claim(ctx, key, base.Add(time.Minute), cooldown)
		require.NoError(t, err)
		assert.False(t, ok)

		last, found, err := l.LastRun(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.WithinDuration(t, base, last, time.Second)
	})

	t.Run("claim succeeds after cooldown", func(t *testing.T) {
		l := newLedger(t)
		ctx := context.Background()
		key := newKey()

		ok, err := l.Claim(ctx, key, base, cooldown)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, l.Record(ctx, key, base, cooldown))

		later := base.Add(cooldown + time.Minute)
		step(cooldown + time.Minute)
		ok, err = l.Claim(ctx, key, later, cooldown)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release frees an unrecorded claim", func(t *testing.T) {
		l := newLedger(t)
		ctx := context.Background()
		key := newKey()

		ok, err := l.Claim(ctx, key, base, cooldown)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, l.Release(ctx, key))

		ok, err = l.Claim(ctx, key, base.Add(time.Second), cooldown)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("keys are independent", func(t *testing.T) {
		l := newLedger(t)
		ctx := context.Background()
		a, b := newKey(), newKey()

		ok, err := l.Claim(ctx, a, base, cooldown)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.Claim(ctx, b, base, cooldown)
		require.NoError(t, err)
		assert.True(t, ok)

		_, found, err := l.LastRun(ctx, ledger.Key{OwnerID: uuid.New(), Date: a.Date})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("concurrent claims admit exactly one", func(t *testing.T) {
		l := newLedger(t)
		ctx := context.Background()
		key := newKey()

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.Claim(ctx, key, base, cooldown)
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}
