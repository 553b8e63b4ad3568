package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/phrazzld/dayboard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDate = civil.Date{Year: 2025, Month: time.March, Day: 5}
	testNow  = time.Date(2025, 3, 5, 13, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func boardRow(b *domain.Board) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "company_id", "board_date", "title", "description",
		"status", "closed_at", "created_at", "updated_at",
	}).AddRow(
		b.ID.String(), b.OwnerID.String(), nil, b.Date.In(time.UTC), b.Title, b.Description,
		string(b.Status), nil, b.CreatedAt, b.UpdatedAt,
	)
}

func TestBoardStoreGetByID(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresBoardStore(db, nil)
	board, err := domain.NewBoard(uuid.New(), testDate, testNow)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM boards WHERE id = \$1`).
		WithArgs(board.ID).
		WillReturnRows(boardRow(board))
	mock.ExpectQuery(`SELECT (.+) FROM boards WHERE id = \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	got, err := s.GetByID(context.Background(), board.ID)
	require.NoError(t, err)
	assert.Equal(t, board.ID, got.ID)
	assert.Equal(t, testDate, got.Date)
	assert.Equal(t, "Tareas del 05/03/2025", got.Title)
	assert.Nil(t, got.CompanyID)

	_, err = s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrBoardNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardStoreCreateRejectsInvalidBoard(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresBoardStore(db, nil)

	err := s.Create(context.Background(), &domain.Board{ID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardStoreEnsureForDate(t *testing.T) {
	t.Run("inserts under an advisory lock when missing", func(t *testing.T) {
		db, mock := newMock(t)
		s := NewPostgresBoardStore(db, nil)
		candidate, err := domain.NewBoard(uuid.New(), testDate, testNow)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
			WithArgs(candidate.OwnerID.String() + ":2025-03-05").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM boards WHERE owner_id = \$1 AND board_date = \$2`).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec(`INSERT INTO boards`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, created, err := s.EnsureForDate(context.Background(), candidate)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, candidate.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns the existing canonical board", func(t *testing.T) {
		db, mock := newMock(t)
		s := NewPostgresBoardStore(db, nil)
		existing, err := domain.NewBoard(uuid.New(), testDate, testNow.Add(-time.Hour))
		require.NoError(t, err)
		candidate, err := domain.NewBoard(existing.OwnerID, testDate, testNow)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT (.+) FROM boards WHERE owner_id`).WillReturnRows(boardRow(existing))
		mock.ExpectCommit()

		got, created, err := s.EnsureForDate(context.Background(), candidate)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, existing.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock := newMock(t)
		s := NewPostgresBoardStore(db, nil)
		candidate, err := domain.NewBoard(uuid.New(), testDate, testNow)
		require.NoError(t, err)

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock`).WillReturnError(context.DeadlineExceeded)
		mock.ExpectRollback()

		_, _, err = s.EnsureForDate(context.Background(), candidate)
		assert.ErrorIs(t, err, store.ErrUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBoardStoreCloseActiveBefore(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresBoardStore(db, nil)

	newer, err := domain.NewBoard(uuid.New(), testDate.AddDays(-1), testNow)
	require.NoError(t, err)
	older, err := domain.NewBoard(uuid.New(), testDate.AddDays(-2), testNow)
	require.NoError(t, err)
	rows := boardRow(newer)
	rows.AddRow(older.ID.String(), older.OwnerID.String(), nil, older.Date.In(time.UTC), older.Title, "",
		"closed", testNow, older.CreatedAt, testNow)

	mock.ExpectQuery(`UPDATE boards SET status = 'closed'`).
		WithArgs(sqlmock.AnyArg(), testNow).
		WillReturnRows(rows)

	closed, err := s.CloseActiveBefore(context.Background(), testDate, testNow)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, older.ID, closed[0].ID)
	assert.Equal(t, newer.ID, closed[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func taskRow(t *domain.Task, dueTime any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "board_id", "title", "description", "status", "priority",
		"estimated_minutes", "actual_minutes", "due_time", "position", "completed_at",
		"created_by", "assigned_by", "updated_by",
		"migrated_from_board", "migrated_from_date", "migrated_at", "migrated_to_board", "migrated_to_date",
		"created_at", "updated_at",
	}).AddRow(
		t.ID.String(), t.BoardID.String(), t.Title, "", string(t.Status), string(t.Priority),
		int64(30), nil, dueTime, int64(t.Position), nil,
		t.CreatedBy.String(), nil, nil,
		nil, nil, nil, nil, nil,
		t.CreatedAt, t.UpdatedAt,
	)
}

func TestTaskStoreGetByID(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, nil)
	task, err := domain.NewTask(uuid.New(), uuid.New(), "Call supplier", testNow)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM tasks WHERE id = \$1`).
		WithArgs(task.ID).
		WillReturnRows(taskRow(task, "09:15:00"))
	mock.ExpectQuery(`SELECT (.+) FROM tasks WHERE id = \$1 FOR UPDATE`).
		WillReturnError(sql.ErrNoRows)

	got, err := s.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DueTime)
	assert.Equal(t, civil.Time{Hour: 9, Minute: 15}, *got.DueTime)
	require.NotNil(t, got.EstimatedMinutes)
	assert.Equal(t, 30, *got.EstimatedMinutes)
	assert.Nil(t, got.ActualMinutes)
	assert.Nil(t, got.FromBoardID)

	_, err = s.GetForUpdate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStoreGetRejectsMalformedDueTime(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, nil)
	task, err := domain.NewTask(uuid.New(), uuid.New(), "odd", testNow)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT (.+) FROM tasks`).WillReturnRows(taskRow(task, "quarter past nine"))

	_, err = s.GetByID(context.Background(), task.ID)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestTaskStoreUpdate(t *testing.T) {
	task, err := domain.NewTask(uuid.New(), uuid.New(), "Update me", testNow)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		db, mock := newMock(t)
		s := NewPostgresTaskStore(db, nil)
		mock.ExpectExec(`UPDATE tasks SET`).WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, s.Update(context.Background(), task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing task", func(t *testing.T) {
		db, mock := newMock(t)
		s := NewPostgresTaskStore(db, nil)
		mock.ExpectExec(`UPDATE tasks SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT board_id FROM tasks`).WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, s.Update(context.Background(), task), store.ErrTaskNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("board change", func(t *testing.T) {
		db, mock := newMock(t)
		s := NewPostgresTaskStore(db, nil)
		mock.ExpectExec(`UPDATE tasks SET`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT board_id FROM tasks`).
			WillReturnRows(sqlmock.NewRows([]string{"board_id"}).AddRow(uuid.NewString()))

		assert.ErrorIs(t, s.Update(context.Background(), task), store.ErrInvalidEntity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTaskStoreNextPosition(t *testing.T) {
	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, nil)
	boardID := uuid.New()

	mock.ExpectExec(`SELECT 1 FROM boards WHERE id = \$1 FOR UPDATE`).
		WithArgs(boardID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(position\) \+ 1, 0\) FROM tasks`).
		WithArgs(boardID).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(3)))

	pos, err := s.NextPosition(context.Background(), boardID)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerClaim(t *testing.T) {
	key := ledger.Key{OwnerID: uuid.New(), Date: testDate}

	t.Run("claimed", func(t *testing.T) {
		db, mock := newMock(t)
		l := NewPostgresLedger(db, nil)
		mock.ExpectQuery(`INSERT INTO migration_runs`).
			WithArgs(key.OwnerID, sqlmock.AnyArg(), testNow, ledger.Bucket(testNow, time.Hour), testNow.Add(-time.Hour)).
			WillReturnRows(sqlmock.NewRows([]string{"bool"}).AddRow(true))

		ok, err := l.Claim(context.Background(), key, testNow, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("suppressed by cooldown", func(t *testing.T) {
		db, mock := newMock(t)
		l := NewPostgresLedger(db, nil)
		mock.ExpectQuery(`INSERT INTO migration_runs`).WillReturnError(sql.ErrNoRows)

		ok, err := l.Claim(context.Background(), key, testNow, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("database failure", func(t *testing.T) {
		db, mock := newMock(t)
		l := NewPostgresLedger(db, nil)
		mock.ExpectQuery(`INSERT INTO migration_runs`).WillReturnError(errors.New("boom"))

		_, err := l.Claim(context.Background(), key, testNow, time.Hour)
		assert.Error(t, err)
	})
}

func TestLedgerLastRun(t *testing.T) {
	db, mock := newMock(t)
	l := NewPostgresLedger(db, nil)
	key := ledger.Key{OwnerID: uuid.New(), Date: testDate}

	mock.ExpectQuery(`SELECT last_run_at FROM migration_runs`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT last_run_at FROM migration_runs`).
		WillReturnRows(sqlmock.NewRows([]string{"last_run_at"}).AddRow(testNow))

	_, ok, err := l.LastRun(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	at, ok, err := l.LastRun(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testNow, at)
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	db, _ := newMock(t)
	err := Migrate(context.Background(), db, "reset", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migration command")
}
