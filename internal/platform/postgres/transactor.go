package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/dayboard/internal/store"
)

// Transactor implements store.Transactor over a connection pool.
type Transactor struct {
	db     *sql.DB
	boards *PostgresBoardStore
	tasks  *PostgresTaskStore
}

var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates a Transactor. Stores handed to WithinTx share one transaction.
func NewTransactor(db *sql.DB, logger *slog.Logger) *Transactor {
	return &Transactor{
		db:     db,
		boards: NewPostgresBoardStore(db, logger),
		tasks:  NewPostgresTaskStore(db, logger),
	}
}

// Boards returns the pool-bound board store.
func (t *Transactor) Boards() *PostgresBoardStore { return t.boards }

// Tasks returns the pool-bound task store.
func (t *Transactor) Tasks() *PostgresTaskStore { return t.tasks }

// WithinTx implements store.Transactor.WithinTx
func (t *Transactor) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, stores store.Stores) error,
) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.Stores{
			Boards: t.boards.WithTx(tx),
			Tasks:  t.tasks.WithTx(tx),
		})
	})
}
