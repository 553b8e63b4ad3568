// Package storetest holds the behaviour every board and task store must share.
// Backends run it from their own tests with a factory for fresh stores.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns stores that share one backing database, plus its transactor.
type Factory func(t *testing.T) (store.BoardStore, store.TaskStore, store.Transactor)

// Run exercises a store implementation. Tests only assert on records they
// create themselves, so the backing database may be shared.
func Run(t *testing.T, newStores Factory) {
	t.Helper()
	today := civil.Date{Year: 2025, Month: time.March, Day: 5}
	now := time.Date(2025, 3, 5, 13, 0, 0, 0, time.UTC)

	mustBoard := func(t *testing.T, boards store.BoardStore, owner uuid.UUID, date civil.Date, created time.Time) *domain.Board {
		t.Helper()
		b, err := domain.NewBoard(owner, date, created)
		require.NoError(t, err)
		require.NoError(t, boards.Create(context.Background(), b))
		return b
	}
	mustTask := func(t *testing.T, tasks store.TaskStore, board *domain.Board, title string, status domain.TaskStatus, pos int) *domain.Task {
		t.Helper()
		task, err := domain.NewTask(board.ID, board.OwnerID, title, now)
		require.NoError(t, err)
		task.Status = status
		task.Position = pos
		require.NoError(t, tasks.Create(context.Background(), task))
		return task
	}

	t.Run("board create and get", func(t *testing.T) {
		boards, _, _ := newStores(t)
		ctx := context.Background()
		company := uuid.New()
		b, err := domain.NewBoard(uuid.New(), today, now)
		require.NoError(t, err)
		b.CompanyID = &company
		b.Description = "daily"
		require.NoError(t, boards.Create(ctx, b))

		got, err := boards.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.OwnerID, got.OwnerID)
		assert.Equal(t, today, got.Date)
		assert.Equal(t, b.Title, got.Title)
		assert.Equal(t, domain.BoardStatusActive, got.Status)
		require.NotNil(t, got.CompanyID)
		assert.Equal(t, company, *got.CompanyID)
		assert.Equal(t, "daily", got.Description)

		_, err = boards.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)

		invalid := &domain.Board{ID: uuid.New()}
		assert.ErrorIs(t, boards.Create(ctx, invalid), domain.ErrValidation)
	})

	t.Run("canonical board is the most recently created", func(t *testing.T) {
		boards, _, _ := newStores(t)
		owner := uuid.New()
		mustBoard(t, boards, owner, today, now.Add(-time.Hour))
		newest := mustBoard(t, boards, owner, today, now)

		got, err := boards.GetCanonical(context.Background(), owner, today)
		require.NoError(t, err)
		assert.Equal(t, newest.ID, got.ID)

		_, err = boards.GetCanonical(context.Background(), owner, today.AddDays(1))
		assert.ErrorIs(t, err, store.ErrBoardNotFound)
	})

	t.Run("ensure for date is idempotent and race free", func(t *testing.T) {
		boards, _, _ := newStores(t)
		owner := uuid.New()

		const callers = 8
		ids := make([]uuid.UUID, callers)
		created := make([]bool, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				candidate, err := domain.NewBoard(owner, today, now)
				if err != nil {
					errs[i] = err
					return
				}
				b, c, err := boards.EnsureForDate(context.Background(), candidate)
				errs[i] = err
				if err == nil {
					ids[i] = b.ID
					created[i] = c
				}
			}(i)
		}
		wg.Wait()

		createdCount := 0
		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
			if created[i] {
				createdCount++
			}
		}
		assert.Equal(t, 1, createdCount)

		list, err := boards.ListByDate(context.Background(), today, &owner)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("backlog listing", func(t *testing.T) {
		boards, tasks, _ := newStores(t)
		ctx := context.Background()
		owner := uuid.New()

		older := mustBoard(t, boards, owner, today.AddDays(-3), now.Add(-72*time.Hour))
		newer := mustBoard(t, boards, owner, today.AddDays(-1), now.Add(-24*time.Hour))
		done := mustBoard(t, boards, owner, today.AddDays(-2), now.Add(-48*time.Hour))
		current := mustBoard(t, boards, owner, today, now)

		mustTask(t, tasks, newer, "newer", domain.TaskStatusPending, 0)
		mustTask(t, tasks, older, "older", domain.TaskStatusInProgress, 0)
		mustTask(t, tasks, done, "finished", domain.TaskStatusCompleted, 0)
		mustTask(t, tasks, current, "today", domain.TaskStatusPending, 0)

		got, err := boards.ListWithBacklogBefore(ctx, owner, today)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, older.ID, got[0].ID)
		assert.Equal(t, newer.ID, got[1].ID)

		owners, err := boards.ListOwnersWithBacklog(ctx, today)
		require.NoError(t, err)
		assert.Contains(t, owners, owner)

		owners, err = boards.ListOwnersWithBacklog(ctx, today.AddDays(-3))
		require.NoError(t, err)
		assert.NotContains(t, owners, owner)
	})

	t.Run("close active before is idempotent", func(t *testing.T) {
		boards, _, _ := newStores(t)
		ctx := context.Background()
		owner := uuid.New()
		past := mustBoard(t, boards, owner, today.AddDays(-3), now.Add(-72*time.Hour))
		current := mustBoard(t, boards, owner, today, now)

		closed, err := boards.CloseActiveBefore(ctx, today, now)
		require.NoError(t, err)
		assert.Contains(t, boardIDs(closed), past.ID)
		assert.NotContains(t, boardIDs(closed), current.ID)

		got, err := boards.GetByID(ctx, past.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BoardStatusClosed, got.Status)
		require.NotNil(t, got.ClosedAt)

		again, err := boards.CloseActiveBefore(ctx, today, now.Add(time.Minute))
		require.NoError(t, err)
		assert.NotContains(t, boardIDs(again), past.ID)

		got, err = boards.GetByID(ctx, past.ID)
		require.NoError(t, err)
		assert.WithinDuration(t, now, *got.ClosedAt, time.Second)
	})

	t.Run("task lifecycle", func(t *testing.T) {
		boards, tasks, _ := newStores(t)
		ctx := context.Background()
		board := mustBoard(t, boards, uuid.New(), today, now)

		pos, err := tasks.NextPosition(ctx, board.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, pos)

		estimate := 45
		due := civil.Time{Hour: 9, Minute: 15}
		task, err := domain.NewTask(board.ID, board.OwnerID, "Call supplier", now)
		require.NoError(t, err)
		task.Priority = domain.PriorityUrgent
		task.EstimatedMinutes = &estimate
		task.DueTime = &due
		task.Position = 4
		require.NoError(t, tasks.Create(ctx, task))
		mustTask(t, tasks, board, "first", domain.TaskStatusPending, 1)

		pos, err = tasks.NextPosition(ctx, board.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, pos)

		got, err := tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PriorityUrgent, got.Priority)
		require.NotNil(t, got.DueTime)
		assert.Equal(t, due, *got.DueTime)
		assert.Equal(t, estimate, *got.EstimatedMinutes)

		completedAt := now.Add(time.Hour)
		got.Status = domain.TaskStatusCompleted
		got.CompletedAt = &completedAt
		require.NoError(t, tasks.Update(ctx, got))

		locked, err := tasks.GetForUpdate(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, locked.Status)
		assert.WithinDuration(t, completedAt, *locked.CompletedAt, time.Second)

		list, err := tasks.ListByBoard(ctx, board.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "first", list[0].Title)
		assert.Equal(t, "Call supplier", list[1].Title)

		missing := *got
		missing.ID = uuid.New()
		assert.ErrorIs(t, tasks.Update(ctx, &missing), store.ErrNotFound)

		_, err = tasks.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("lineage round trip", func(t *testing.T) {
		boards, tasks, _ := newStores(t)
		ctx := context.Background()
		owner := uuid.New()
		source := mustBoard(t, boards, owner, today.AddDays(-1), now.Add(-24*time.Hour))
		target := mustBoard(t, boards, owner, today, now)
		original := mustTask(t, tasks, source, "carry me", domain.TaskStatusPending, 0)

		clone := original.CloneForMigration(source, target, 0, now)
		require.NoError(t, tasks.Create(ctx, clone))
		original.MarkMigrated(target, now)
		require.NoError(t, tasks.Update(ctx, original))

		gotClone, err := tasks.GetByID(ctx, clone.ID)
		require.NoError(t, err)
		gotOriginal, err := tasks.GetByID(ctx, original.ID)
		require.NoError(t, err)

		require.NotNil(t, gotClone.FromBoardID)
		require.NotNil(t, gotOriginal.ToBoardID)
		assert.Equal(t, source.ID, *gotClone.FromBoardID)
		assert.Equal(t, source.Date, *gotClone.FromDate)
		assert.Equal(t, target.ID, *gotOriginal.ToBoardID)
		assert.Equal(t, target.Date, *gotOriginal.ToDate)
		assert.Equal(t, domain.TaskStatusMigrated, gotOriginal.DisplayStatus())
	})

	t.Run("history", func(t *testing.T) {
		boards, tasks, _ := newStores(t)
		ctx := context.Background()
		board := mustBoard(t, boards, uuid.New(), today, now)
		task := mustTask(t, tasks, board, "tracked", domain.TaskStatusPending, 0)
		actor := domain.Actor{ID: board.OwnerID}

		require.NoError(t, tasks.AppendHistory(ctx, domain.NewHistoryEntry(task.ID, nil, domain.TaskStatusPending, actor, now, "created")))
		prev := domain.TaskStatusPending
		require.NoError(t, tasks.AppendHistory(ctx, domain.NewHistoryEntry(task.ID, &prev, domain.TaskStatusInProgress, domain.SystemActor(), now.Add(time.Minute), "")))

		entries, err := tasks.ListHistory(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Nil(t, entries[0].PreviousStatus)
		assert.Equal(t, "created", entries[0].Notes)
		require.NotNil(t, entries[0].ChangedBy)
		assert.Equal(t, actor.ID, *entries[0].ChangedBy)
		assert.Equal(t, domain.TaskStatusInProgress, entries[1].NewStatus)
		assert.Nil(t, entries[1].ChangedBy)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		boards, tasks, tx := newStores(t)
		ctx := context.Background()
		board := mustBoard(t, boards, uuid.New(), today, now)
		task := mustTask(t, tasks, board, "keep me", domain.TaskStatusPending, 0)

		sentinel := errors.New("abort")
		err := tx.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
			locked, err := s.Tasks.GetForUpdate(ctx, task.ID)
			if err != nil {
				return err
			}
			locked.Status = domain.TaskStatusCancelled
			if err := s.Tasks.Update(ctx, locked); err != nil {
				return err
			}
			extra, err := domain.NewTask(board.ID, board.OwnerID, "phantom", now)
			if err != nil {
				return err
			}
			if err := s.Tasks.Create(ctx, extra); err != nil {
				return err
			}
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)

		got, err := tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, got.Status)

		list, err := tasks.ListByBoard(ctx, board.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		err = tx.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
			locked, err := s.Tasks.GetForUpdate(ctx, task.ID)
			if err != nil {
				return err
			}
			locked.Status = domain.TaskStatusInProgress
			return s.Tasks.Update(ctx, locked)
		})
		require.NoError(t, err)
		got, err = tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusInProgress, got.Status)
	})

	t.Run("concurrent appends get distinct positions", func(t *testing.T) {
		boards, tasks, tx := newStores(t)
		ctx := context.Background()
		board := mustBoard(t, boards, uuid.New(), today, now)

		const writers = 6
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = tx.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
					pos, err := s.Tasks.NextPosition(ctx, board.ID)
					if err != nil {
						return err
					}
					task, err := domain.NewTask(board.ID, board.OwnerID, "append", now)
					if err != nil {
						return err
					}
					task.Position = pos
					return s.Tasks.Create(ctx, task)
				})
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		list, err := tasks.ListByBoard(ctx, board.ID)
		require.NoError(t, err)
		require.Len(t, list, writers)
		for i, task := range list {
			assert.Equal(t, i, task.Position)
		}
	})

	t.Run("rollback keeps writes made outside the transaction", func(t *testing.T) {
		boards, _, tx := newStores(t)
		ctx := context.Background()

		inside, err := domain.NewBoard(uuid.New(), today, now)
		require.NoError(t, err)
		outside, err := domain.NewBoard(uuid.New(), today, now)
		require.NoError(t, err)

		sentinel := errors.New("abort")
		err = tx.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
			if err := s.Boards.Create(ctx, inside); err != nil {
				return err
			}
			if _, _, err := boards.EnsureForDate(ctx, outside); err != nil {
				return err
			}
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		_, err = boards.GetByID(ctx, inside.ID)
		assert.ErrorIs(t, err, store.ErrBoardNotFound)
		got, err := boards.GetByID(ctx, outside.ID)
		require.NoError(t, err)
		assert.Equal(t, outside.OwnerID, got.OwnerID)
	})
}

func boardIDs(boards []*domain.Board) []uuid.UUID {
	ids := make([]uuid.UUID, len(boards))
	for i, b := range boards {
		ids[i] = b.ID
	}
	return ids
}
