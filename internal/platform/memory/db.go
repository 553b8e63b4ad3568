// Package memory provides an in-process record store for boards and tasks.
//
// It backs the development profile (store.backend=memory) and serves as the
// store used by unit tests of the planner, executor and services. Reads and
// writes return copies, so callers never alias stored records.
// Transactions are serialized with one another. Stores handed to a
// transaction record an undo entry for every write, and a rollback replays
// those entries in reverse, so writes made outside the transaction survive.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

// Operation names passed to fault hooks.
const (
	OpBoardCreate      = "boards.create"
	OpBoardGet         = "boards.get"
	OpBoardEnsure      = "boards.ensure"
	OpBoardList        = "boards.list"
	OpBoardListBacklog = "boards.list_backlog"
	OpBoardOwners      = "boards.owners"
	OpBoardClose       = "boards.close"
	OpTaskCreate       = "tasks.create"
	OpTaskGet          = "tasks.get"
	OpTaskUpdate       = "tasks.update"
	OpTaskList         = "tasks.list"
	OpTaskPosition     = "tasks.position"
	OpTaskHistory      = "tasks.history"
)

// FaultFunc is consulted before every operation. A non-nil return fails the
// operation with that error. target is the entity ID involved, if any.
type FaultFunc func(op string, target uuid.UUID) error

type state struct {
	boards   map[uuid.UUID]*domain.Board
	tasks    map[uuid.UUID]*domain.Task
	order    map[uuid.UUID]int64
	history  []*domain.TaskHistoryEntry
	sequence int64
}

// DB is the in-memory record store.
type DB struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	st    state
	fault FaultFunc

	logger *slog.Logger
}

var _ store.Transactor = (*DB)(nil)

// New creates an empty store.
func New(l *slog.Logger) *DB {
	if l == nil {
		l = slog.Default()
	}
	return &DB{
		st: state{
			boards: make(map[uuid.UUID]*domain.Board),
			tasks:  make(map[uuid.UUID]*domain.Task),
			order:  make(map[uuid.UUID]int64),
		},
		logger: l.With(slog.String("component", "memory_store")),
	}
}

// SetFault installs a fault hook. Pass nil to clear it.
func (db *DB) SetFault(f FaultFunc) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fault = f
}

// Boards returns the board store.
func (db *DB) Boards() *BoardStore { return &BoardStore{db: db} }

// Tasks returns the task store.
func (db *DB) Tasks() *TaskStore { return &TaskStore{db: db} }

// undoLog collects compensating actions for the writes of one transaction.
// Entries run with db.mu held. A nil log records nothing.
type undoLog struct {
	entries []func()
}

func (u *undoLog) add(fn func()) {
	if u != nil {
		u.entries = append(u.entries, fn)
	}
}

// WithinTx implements store.Transactor.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, stores store.Stores) error) (err error) {
	log := logger.FromContextOrDefault(ctx, db.logger)

	db.txMu.Lock()
	defer db.txMu.Unlock()

	undo := &undoLog{}
	restore := func() {
		db.mu.Lock()
		defer db.mu.Unlock()
		for i := len(undo.entries) - 1; i >= 0; i-- {
			undo.entries[i]()
		}
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			log.Error("rolled back transaction after panic", slog.Any("panic", p))
			panic(p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	stores := store.Stores{
		Boards: &BoardStore{db: db, undo: undo},
		Tasks:  &TaskStore{db: db, undo: undo},
	}
	if err := fn(ctx, stores); err != nil {
		restore()
		log.Debug("rolled back transaction due to error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// check runs the fault hook and the context check for op. Callers hold db.mu.
func (db *DB) check(ctx context.Context, op string, target uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.fault != nil {
		return db.fault(op, target)
	}
	return nil
}

func (db *DB) nextSeq(id uuid.UUID) {
	db.st.sequence++
	db.st.order[id] = db.st.sequence
}

func copyBoard(b *domain.Board) *domain.Board {
	c := *b
	if b.ClosedAt != nil {
		at := *b.ClosedAt
		c.ClosedAt = &at
	}
	if b.CompanyID != nil {
		id := *b.CompanyID
		c.CompanyID = &id
	}
	return &c
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	if t.EstimatedMinutes != nil {
		v := *t.EstimatedMinutes
		c.EstimatedMinutes = &v
	}
	if t.ActualMinutes != nil {
		v := *t.ActualMinutes
		c.ActualMinutes = &v
	}
	if t.DueTime != nil {
		v := *t.DueTime
		c.DueTime = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	if t.AssignedBy != nil {
		v := *t.AssignedBy
		c.AssignedBy = &v
	}
	if t.UpdatedBy != nil {
		v := *t.UpdatedBy
		c.UpdatedBy = &v
	}
	if t.FromBoardID != nil {
		v := *t.FromBoardID
		c.FromBoardID = &v
	}
	if t.FromDate != nil {
		v := *t.FromDate
		c.FromDate = &v
	}
	if t.MigratedAt != nil {
		v := *t.MigratedAt
		c.MigratedAt = &v
	}
	if t.ToBoardID != nil {
		v := *t.ToBoardID
		c.ToBoardID = &v
	}
	if t.ToDate != nil {
		v := *t.ToDate
		c.ToDate = &v
	}
	return &c
}

// sortBoards orders by date, then creation time, then insertion order.
func (db *DB) sortBoards(boards []*domain.Board) {
	sort.SliceStable(boards, func(i, j int) bool {
		a, b := boards[i], boards[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return db.st.order[a.ID] < db.st.order[b.ID]
	})
}
