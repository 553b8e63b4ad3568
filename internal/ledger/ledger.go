// Package ledger defines the migration dedup ledger: the shared record that
// suppresses redundant migration runs for an owner and date within a
// cooldown window, even across several server replicas.
package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Key identifies the run being deduplicated.
type Key struct {
	OwnerID uuid.UUID
	Date    civil.Date
}

// String renders the key in a stable form used by external backends.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.OwnerID, k.Date)
}

// Bucket returns the cooldown epoch bucket that now falls into.
// Two runs in the same bucket share a cooldown window.
func Bucket(now time.Time, cooldown time.Duration) int64 {
	if cooldown <= 0 {
		return now.Unix()
	}
	return now.UTC().Truncate(cooldown).Unix()
}

// Ledger records migration runs.
//
// Claim atomically checks whether the key ran within cooldown of now and, if
// not, reserves it so that no concurrent caller can claim it before the
// reservation expires or is released. Record confirms a finished run.
// Release drops a reservation that did not lead to a run.
type Ledger interface {
	Claim(ctx context.Context, key Key, now time.Time, cooldown time.Duration) (bool, error)
	Record(ctx context.Context, key Key, at time.Time, cooldown time.Duration) error
	Release(ctx context.Context, key Key) error
	LastRun(ctx context.Context, key Key) (time.Time, bool, error)
}
