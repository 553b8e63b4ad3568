package service

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/memory"
	"github.com/phrazzld/dayboard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// 10:00 in America/Lima
	startTime = time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)
	today     = civil.Date{Year: 2025, Month: time.March, Day: 5}
	yesterday = today.AddDays(-1)
)

type fixture struct {
	db      *memory.DB
	clock   *clock.FakeClock
	policy  *clock.Policy
	service BoardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memory.New(nil)
	c := clock.Fake(startTime)
	policy, err := clock.NewPolicy(c, clock.DefaultPolicyConfig())
	require.NoError(t, err)
	svc, err := NewBoardService(db, db.Boards(), db.Tasks(), policy, domain.NewTaskStateMachine(false), nil)
	require.NoError(t, err)
	return &fixture{db: db, clock: c, policy: policy, service: svc}
}

func (f *fixture) board(t *testing.T, owner uuid.UUID, date civil.Date) *domain.Board {
	t.Helper()
	b, err := domain.NewBoard(owner, date, startTime.Add(-time.Duration(today.DaysSince(date))*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, f.db.Boards().Create(context.Background(), b))
	return b
}

func (f *fixture) task(t *testing.T, board *domain.Board, title string, status domain.TaskStatus) *domain.Task {
	t.Helper()
	ctx := context.Background()
	task, err := domain.NewTask(board.ID, board.OwnerID, title, startTime)
	require.NoError(t, err)
	task.Status = status
	pos, err := f.db.Tasks().NextPosition(ctx, board.ID)
	require.NoError(t, err)
	task.Position = pos
	require.NoError(t, f.db.Tasks().Create(ctx, task))
	return task
}

func user() domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: domain.RoleUser}
}

func supervisor() domain.Actor {
	return domain.Actor{ID: uuid.New(), Role: domain.RoleSupervisor, Elevated: true}
}

func TestNewBoardService(t *testing.T) {
	t.Parallel()

	db := memory.New(nil)
	policy, err := clock.NewPolicy(clock.Fake(startTime), clock.DefaultPolicyConfig())
	require.NoError(t, err)
	sm := domain.NewTaskStateMachine(false)

	tests := []struct {
		name string
		fn   func() (BoardService, error)
	}{
		{"nil transactor", func() (BoardService, error) { return NewBoardService(nil, db.Boards(), db.Tasks(), policy, sm, nil) }},
		{"nil boards", func() (BoardService, error) { return NewBoardService(db, nil, db.Tasks(), policy, sm, nil) }},
		{"nil tasks", func() (BoardService, error) { return NewBoardService(db, db.Boards(), nil, policy, sm, nil) }},
		{"nil policy", func() (BoardService, error) { return NewBoardService(db, db.Boards(), db.Tasks(), nil, sm, nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := tt.fn()
			assert.Nil(t, svc)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestBoardService_Today(t *testing.T) {
	t.Parallel()

	t.Run("creates the board once", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		company := uuid.New()
		actor := user()
		actor.CompanyID = &company

		first, err := f.service.Today(ctx, actor)
		require.NoError(t, err)
		assert.Equal(t, today, first.Board.Date)
		assert.Equal(t, "Tareas del 05/03/2025", first.Board.Title)
		assert.Equal(t, actor.ID, first.Board.OwnerID)
		require.NotNil(t, first.Board.CompanyID)
		assert.Equal(t, company, *first.Board.CompanyID)
		assert.True(t, first.IsToday)
		assert.True(t, first.Editable)
		assert.Empty(t, first.Tasks)

		second, err := f.service.Today(ctx, actor)
		require.NoError(t, err)
		assert.Equal(t, first.Board.ID, second.Board.ID)
	})

	t.Run("uses the configured zone for the date", func(t *testing.T) {
		f := newFixture(t)
		// 02:00 UTC on the 6th is still the 5th in Lima.
		f.clock.Set(time.Date(2025, 3, 6, 2, 0, 0, 0, time.UTC))

		view, err := f.service.Today(context.Background(), user())
		require.NoError(t, err)
		assert.Equal(t, today, view.Board.Date)
	})

	t.Run("system actor has no board", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Today(context.Background(), domain.SystemActor())
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.db.SetFault(func(op string, _ uuid.UUID) error {
			if op == memory.OpBoardEnsure {
				return store.ErrUnavailable
			}
			return nil
		})
		_, err := f.service.Today(context.Background(), user())
		assert.ErrorIs(t, err, store.ErrUnavailable)
		var serviceErr *ServiceError
		assert.ErrorAs(t, err, &serviceErr)
	})
}

func TestBoardService_CreateTask(t *testing.T) {
	t.Parallel()

	t.Run("appends to the end of the board", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		owner := user()
		board := f.board(t, owner.ID, today)

		estimate := 30
		due := civil.Time{Hour: 17}
		first, err := f.service.CreateTask(ctx, owner, board.ID, NewTaskInput{
			Title:            "  Call the supplier ",
			Priority:         domain.PriorityHigh,
			EstimatedMinutes: &estimate,
			DueTime:          &due,
		})
		require.NoError(t, err)
		second, err := f.service.CreateTask(ctx, owner, board.ID, NewTaskInput{Title: "Send invoices"})
		require.NoError(t, err)

		assert.Equal(t, "Call the supplier", first.Title)
		assert.Equal(t, 0, first.Position)
		assert.Equal(t, 1, second.Position)
		assert.Equal(t, domain.PriorityHigh, first.Priority)
		assert.Equal(t, domain.PriorityMedium, second.Priority)
		assert.Equal(t, domain.TaskStatusPending, first.Status)
		assert.Nil(t, first.AssignedBy)

		history, err := f.service.TaskHistory(ctx, owner, first.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Nil(t, history[0].PreviousStatus)
		assert.Equal(t, domain.TaskStatusPending, history[0].NewStatus)
		assert.Equal(t, "created", history[0].Notes)
	})

	t.Run("elevated actor assigns work", func(t *testing.T) {
		f := newFixture(t)
		owner := user()
		boss := supervisor()
		board := f.board(t, owner.ID, today)

		task, err := f.service.CreateTask(context.Background(), boss, board.ID, NewTaskInput{Title: "Audit"})
		require.NoError(t, err)
		require.NotNil(t, task.AssignedBy)
		assert.Equal(t, boss.ID, *task.AssignedBy)
		assert.Equal(t, boss.ID, task.CreatedBy)
	})

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t)
		owner := user()
		current := f.board(t, owner.ID, today)
		old := f.board(t, owner.ID, yesterday)

		tests := []struct {
			name    string
			actor   domain.Actor
			boardID uuid.UUID
			title   string
			wantErr error
		}{
			{"stranger", user(), current.ID, "x", ErrNotOwned},
			{"past board", owner, old.ID, "x", domain.ErrPermissionDenied},
			{"empty title", owner, current.ID, "  ", domain.ErrValidation},
			{"missing board", owner, uuid.New(), "x", store.ErrBoardNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.service.CreateTask(context.Background(), tt.actor, tt.boardID, NewTaskInput{Title: tt.title})
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})

	t.Run("closed board", func(t *testing.T) {
		f := newFixture(t)
		owner := user()
		board := f.board(t, owner.ID, today)
		_, err := f.db.Boards().CloseActiveBefore(context.Background(), today.AddDays(1), startTime)
		require.NoError(t, err)

		_, err = f.service.CreateTask(context.Background(), owner, board.ID, NewTaskInput{Title: "late"})
		assert.ErrorIs(t, err, domain.ErrBoardClosed)
	})

	t.Run("board of another day", func(t *testing.T) {
		f := newFixture(t)
		owner := user()
		board := f.board(t, owner.ID, yesterday)

		_, err := f.service.CreateTask(context.Background(), owner, board.ID, NewTaskInput{Title: "late"})
		assert.ErrorIs(t, err, domain.ErrBoardNotToday)
	})
}

func TestBoardService_TransitionTask(t *testing.T) {
	t.Parallel()

	t.Run("completes a task", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		owner := user()
		board := f.board(t, owner.ID, today)
		task := f.task(t, board, "Write report", domain.TaskStatusPending)

		actual := 45
		next, err := f.service.TransitionTask(ctx, owner, task.ID, TransitionInput{
			Status:        domain.TaskStatusCompleted,
			ActualMinutes: &actual,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, next.Status)
		require.NotNil(t, next.CompletedAt)
		require.NotNil(t, next.ActualMinutes)
		assert.Equal(t, 45, *next.ActualMinutes)
		require.NotNil(t, next.UpdatedBy)
		assert.Equal(t, owner.ID, *next.UpdatedBy)

		stored, err := f.db.Tasks().GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, stored.Status)

		history, err := f.db.Tasks().ListHistory(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.NotNil(t, history[0].PreviousStatus)
		assert.Equal(t, domain.TaskStatusPending, *history[0].PreviousStatus)
		assert.Equal(t, domain.TaskStatusCompleted, history[0].NewStatus)
	})

	t.Run("same status writes no history", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		owner := user()
		board := f.board(t, owner.ID, today)
		task := f.task(t, board, "Idle", domain.TaskStatusPending)

		_, err := f.service.TransitionTask(ctx, owner, task.ID, TransitionInput{Status: domain.TaskStatusPending})
		require.NoError(t, err)

		history, err := f.db.Tasks().ListHistory(ctx, task.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("rejections", func(t *testing.T) {
		f := newFixture(t)
		owner := user()
		board := f.board(t, owner.ID, today)
		pending := f.task(t, board, "pending", domain.TaskStatusPending)
		cancelled := f.task(t, board, "cancelled", domain.TaskStatusCancelled)

		tests := []struct {
			name    string
			actor   domain.Actor
			taskID  uuid.UUID
			status  domain.TaskStatus
			wantErr error
		}{
			{"stranger", user(), pending.ID, domain.TaskStatusCompleted, domain.ErrPermissionDenied},
			{"revival disabled", owner, cancelled.ID, domain.TaskStatusPending, domain.ErrInvalidTransition},
			{"display only status", owner, pending.ID, domain.TaskStatusMigrated, domain.ErrValidation},
			{"unknown task", owner, uuid.New(), domain.TaskStatusCompleted, store.ErrTaskNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.service.TransitionTask(context.Background(), tt.actor, tt.taskID, TransitionInput{Status: tt.status})
				assert.ErrorIs(t, err, tt.wantErr)
			})
		}
	})

	t.Run("closed board", func(t *testing.T) {
		f := newFixture(t)
		owner := user()
		board := f.board(t, owner.ID, yesterday)
		task := f.task(t, board, "old", domain.TaskStatusPending)
		_, err := f.db.Boards().CloseActiveBefore(context.Background(), today, startTime)
		require.NoError(t, err)

		_, err = f.service.TransitionTask(context.Background(), supervisor(), task.ID, TransitionInput{Status: domain.TaskStatusCompleted})
		assert.ErrorIs(t, err, domain.ErrBoardClosed)
	})
}

func TestBoardService_ListAndGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	companyA, companyB := uuid.New(), uuid.New()
	alice, bob := user(), user()

	newBoard := func(owner, company uuid.UUID) *domain.Board {
		b, err := domain.NewBoard(owner, today, startTime)
		require.NoError(t, err)
		b.CompanyID = &company
		require.NoError(t, f.db.Boards().Create(ctx, b))
		return b
	}
	aliceBoard := newBoard(alice.ID, companyA)
	bobBoard := newBoard(bob.ID, companyB)

	t.Run("own boards", func(t *testing.T) {
		boards, err := f.service.ListBoards(ctx, alice, today, false)
		require.NoError(t, err)
		require.Len(t, boards, 1)
		assert.Equal(t, aliceBoard.ID, boards[0].ID)
	})

	t.Run("all requires elevation", func(t *testing.T) {
		_, err := f.service.ListBoards(ctx, alice, today, true)
		assert.ErrorIs(t, err, ErrElevationRequired)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})

	t.Run("elevated sees every owner", func(t *testing.T) {
		boards, err := f.service.ListBoards(ctx, supervisor(), today, true)
		require.NoError(t, err)
		assert.Len(t, boards, 2)
	})

	t.Run("company scoped supervisor", func(t *testing.T) {
		boss := supervisor()
		boss.CompanyID = &companyB
		boards, err := f.service.ListBoards(ctx, boss, today, true)
		require.NoError(t, err)
		require.Len(t, boards, 1)
		assert.Equal(t, bobBoard.ID, boards[0].ID)

		_, err = f.service.GetBoard(ctx, boss, bobBoard.ID)
		require.NoError(t, err)
		_, err = f.service.GetBoard(ctx, boss, aliceBoard.ID)
		assert.ErrorIs(t, err, ErrNotOwned)
	})

	t.Run("invalid date", func(t *testing.T) {
		_, err := f.service.ListBoards(ctx, alice, civil.Date{Year: 2025, Month: time.February, Day: 30}, false)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("get board of someone else", func(t *testing.T) {
		_, err := f.service.GetBoard(ctx, alice, bobBoard.ID)
		assert.ErrorIs(t, err, ErrNotOwned)
	})

	t.Run("get missing board", func(t *testing.T) {
		_, err := f.service.GetBoard(ctx, alice, uuid.New())
		assert.ErrorIs(t, err, store.ErrBoardNotFound)
	})
}

func TestBoardService_GetBoardDisplaysMigratedTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	owner := user()
	old := f.board(t, owner.ID, yesterday)
	current := f.board(t, owner.ID, today)

	task := f.task(t, old, "carried", domain.TaskStatusPending)
	task.MarkMigrated(current, startTime)
	require.NoError(t, f.db.Tasks().Update(ctx, task))
	f.task(t, old, "done", domain.TaskStatusCompleted)

	view, err := f.service.GetBoard(ctx, owner, old.ID)
	require.NoError(t, err)
	require.Len(t, view.Tasks, 2)
	assert.Equal(t, domain.TaskStatusCancelled, view.Tasks[0].Status)
	assert.Equal(t, domain.TaskStatusMigrated, view.Tasks[0].DisplayStatus)
	assert.Equal(t, domain.TaskStatusCompleted, view.Tasks[1].DisplayStatus)
	assert.False(t, view.IsToday)
	assert.False(t, view.Editable)
}

func TestBoardService_TaskHistoryPermissions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	owner := user()
	board := f.board(t, owner.ID, today)
	task := f.task(t, board, "private", domain.TaskStatusPending)

	_, err := f.service.TaskHistory(context.Background(), user(), task.ID)
	assert.ErrorIs(t, err, ErrNotOwned)

	_, err = f.service.TaskHistory(context.Background(), supervisor(), task.ID)
	assert.NoError(t, err)

	_, err = f.service.TaskHistory(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}
