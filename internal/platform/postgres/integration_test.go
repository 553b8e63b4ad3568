//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/phrazzld/dayboard/internal/ledger/ledgertest"
	"github.com/phrazzld/dayboard/internal/store"
	"github.com/phrazzld/dayboard/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

// openTestDB connects to DAYBOARD_TEST_DATABASE_URL and applies migrations.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("DAYBOARD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DAYBOARD_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, Migrate(ctx, db, "up", nil))
	return db
}

func TestPostgresStores(t *testing.T) {
	db := openTestDB(t)
	storetest.Run(t, func(t *testing.T) (store.BoardStore, store.TaskStore, store.Transactor) {
		tx := NewTransactor(db, nil)
		return tx.Boards(), tx.Tasks(), tx
	})
}

func TestPostgresLedger(t *testing.T) {
	db := openTestDB(t)
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		return NewPostgresLedger(db, nil)
	}, nil)
}
