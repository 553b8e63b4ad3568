package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

// PostgresLedger implements ledger.Ledger on the migration_runs table.
// Claims are a single conditional upsert, so replicas sharing the database
// cannot both win the same owner and date within a cooldown.
type PostgresLedger struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedger creates a ledger backed by the migration_runs table.
func NewPostgresLedger(db store.DBTX, logger *slog.Logger) *PostgresLedger {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedger{
		db:     db,
		logger: logger.With(slog.String("component", "migration_ledger")),
	}
}

var _ ledger.Ledger = (*PostgresLedger)(nil)

// Claim implements ledger.Ledger.Claim
func (l *PostgresLedger) Claim(
	ctx context.Context,
	key ledger.Key,
	now time.Time,
	cooldown time.Duration,
) (bool, error) {
	log := logger.FromContextOrDefault(ctx, l.logger)

	var claimed bool
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO migration_runs (owner_id, run_date, last_run_at, run_bucket, recorded)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (owner_id, run_date) DO UPDATE
		SET last_run_at = EXCLUDED.last_run_at,
			run_bucket = EXCLUDED.run_bucket,
			recorded = FALSE
		WHERE migration_runs.last_run_at <= $5
		RETURNING TRUE`,
		key.OwnerID,
		dateArg(key.Date),
		now.UTC(),
		ledger.Bucket(now, cooldown),
		now.Add(-cooldown).UTC(),
	).Scan(&claimed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("migration run suppressed by cooldown",
				slog.String("key", key.String()))
			return false, nil
		}
		return false, MapError(err)
	}
	return claimed, nil
}

// Record implements ledger.Ledger.Record
func (l *PostgresLedger) Record(ctx context.Context, key ledger.Key, at time.Time, cooldown time.Duration) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO migration_runs (owner_id, run_date, last_run_at, run_bucket, recorded)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (owner_id, run_date) DO UPDATE
		SET last_run_at = EXCLUDED.last_run_at,
			run_bucket = EXCLUDED.run_bucket,
			recorded = TRUE`,
		key.OwnerID,
		dateArg(key.Date),
		at.UTC(),
		ledger.Bucket(at, cooldown),
	)
	return MapError(err)
}

// Release implements ledger.Ledger.Release
func (l *PostgresLedger) Release(ctx context.Context, key ledger.Key) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM migration_runs WHERE owner_id = $1 AND run_date = $2 AND NOT recorded`,
		key.OwnerID, dateArg(key.Date))
	return MapError(err)
}

// LastRun implements ledger.Ledger.LastRun
func (l *PostgresLedger) LastRun(ctx context.Context, key ledger.Key) (time.Time, bool, error) {
	var at time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT last_run_at FROM migration_runs WHERE owner_id = $1 AND run_date = $2 AND recorded`,
		key.OwnerID, dateArg(key.Date)).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, MapError(err)
	}
	return at.UTC(), true, nil
}
