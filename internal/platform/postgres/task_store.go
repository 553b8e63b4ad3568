package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

const taskColumns = `id, board_id, title, description, status, priority,
	estimated_minutes, actual_minutes, due_time::text, position, completed_at,
	created_by, assigned_by, updated_by,
	migrated_from_board, migrated_from_date, migrated_at, migrated_to_board, migrated_to_date,
	created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) *PostgresTaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, board_id, title, description, status, priority,
			estimated_minutes, actual_minutes, due_time, position, completed_at,
			created_by, assigned_by, updated_by,
			migrated_from_board, migrated_from_date, migrated_at, migrated_to_board, migrated_to_date,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9::time, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21
		)`,
		task.ID,
		task.BoardID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		nullIntArg(task.EstimatedMinutes),
		nullIntArg(task.ActualMinutes),
		nullClockArg(task.DueTime),
		task.Position,
		nullTimeArg(task.CompletedAt),
		task.CreatedBy,
		nullUUIDArg(task.AssignedBy),
		nullUUIDArg(task.UpdatedBy),
		nullUUIDArg(task.FromBoardID),
		nullDateArg(task.FromDate),
		nullTimeArg(task.MigratedAt),
		nullUUIDArg(task.ToBoardID),
		nullDateArg(task.ToDate),
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return MapUniqueViolation(err, "task", "", nil)
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: board with ID %s not found", store.ErrInvalidEntity, task.BoardID)
		}
		log.Error("failed to insert task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.get(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
}

// GetForUpdate implements store.TaskStore.GetForUpdate
// The row lock lasts until the surrounding transaction ends.
func (s *PostgresTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.get(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
}

func (s *PostgresTaskStore) get(ctx context.Context, query string, id uuid.UUID) (*domain.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// Update implements store.TaskStore.Update
// A task never moves between boards, so the board is part of the match.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			title = $3,
			description = $4,
			status = $5,
			priority = $6,
			estimated_minutes = $7,
			actual_minutes = $8,
			due_time = $9::time,
			position = $10,
			completed_at = $11,
			assigned_by = $12,
			updated_by = $13,
			migrated_from_board = $14,
			migrated_from_date = $15,
			migrated_at = $16,
			migrated_to_board = $17,
			migrated_to_date = $18,
			updated_at = $19
		WHERE id = $1 AND board_id = $2`,
		task.ID,
		task.BoardID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		nullIntArg(task.EstimatedMinutes),
		nullIntArg(task.ActualMinutes),
		nullClockArg(task.DueTime),
		task.Position,
		nullTimeArg(task.CompletedAt),
		nullUUIDArg(task.AssignedBy),
		nullUUIDArg(task.UpdatedBy),
		nullUUIDArg(task.FromBoardID),
		nullDateArg(task.FromDate),
		nullTimeArg(task.MigratedAt),
		nullUUIDArg(task.ToBoardID),
		nullDateArg(task.ToDate),
		task.UpdatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		var boardID uuid.UUID
		lookup := s.db.QueryRowContext(ctx, `SELECT board_id FROM tasks WHERE id = $1`, task.ID)
		if scanErr := lookup.Scan(&boardID); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return store.ErrTaskNotFound
			}
			return MapError(scanErr)
		}
		return fmt.Errorf("%w: a task cannot move between boards", store.ErrInvalidEntity)
	}
	return nil
}

// ListByBoard implements store.TaskStore.ListByBoard
func (s *PostgresTaskStore) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE board_id = $1
		ORDER BY position, created_at, id`,
		boardID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

// NextPosition implements store.TaskStore.NextPosition
// The board row is locked first, so concurrent appends inside transactions
// queue up and each sees the position taken by the one before it.
func (s *PostgresTaskStore) NextPosition(ctx context.Context, boardID uuid.UUID) (int, error) {
	if _, err := s.db.ExecContext(ctx,
		`SELECT 1 FROM boards WHERE id = $1 FOR UPDATE`, boardID); err != nil {
		return 0, MapError(err)
	}

	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE board_id = $1`,
		boardID).Scan(&next)
	if err != nil {
		return 0, MapError(err)
	}
	return next, nil
}

// AppendHistory implements store.TaskStore.AppendHistory
func (s *PostgresTaskStore) AppendHistory(ctx context.Context, entry *domain.TaskHistoryEntry) error {
	var previous sql.NullString
	if entry.PreviousStatus != nil {
		previous = sql.NullString{String: string(*entry.PreviousStatus), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_history (id, task_id, previous_status, new_status, changed_by, changed_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID,
		entry.TaskID,
		previous,
		string(entry.NewStatus),
		nullUUIDArg(entry.ChangedBy),
		entry.ChangedAt.UTC(),
		entry.Notes,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: task with ID %s not found", store.ErrInvalidEntity, entry.TaskID)
		}
		return MapError(err)
	}
	return nil
}

// ListHistory implements store.TaskStore.ListHistory
func (s *PostgresTaskStore) ListHistory(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, previous_status, new_status, changed_by, changed_at, notes
		FROM task_history
		WHERE task_id = $1
		ORDER BY changed_at, id`,
		taskID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*domain.TaskHistoryEntry
	for rows.Next() {
		var (
			e         domain.TaskHistoryEntry
			previous  sql.NullString
			newStatus string
			changedBy uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &previous, &newStatus, &changedBy, &e.ChangedAt, &e.Notes); err != nil {
			return nil, MapError(err)
		}
		if previous.Valid {
			p := domain.TaskStatus(previous.String)
			e.PreviousStatus = &p
		}
		e.NewStatus = domain.TaskStatus(newStatus)
		e.ChangedBy = uuidPtr(changedBy)
		e.ChangedAt = e.ChangedAt.UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return entries, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                       domain.Task
		status, priority        string
		estimated, actual       sql.NullInt64
		dueTime                 sql.NullString
		completedAt, migratedAt sql.NullTime
		assignedBy, updatedBy   uuid.NullUUID
		fromBoard, toBoard      uuid.NullUUID
		fromDate, toDate        sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.BoardID,
		&t.Title,
		&t.Description,
		&status,
		&priority,
		&estimated,
		&actual,
		&dueTime,
		&t.Position,
		&completedAt,
		&t.CreatedBy,
		&assignedBy,
		&updatedBy,
		&fromBoard,
		&fromDate,
		&migratedAt,
		&toBoard,
		&toDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	due, err := clockPtr(dueTime)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed due_time %q", store.ErrInvalidEntity, dueTime.String)
	}

	t.Status = domain.TaskStatus(status)
	t.Priority = domain.Priority(priority)
	t.EstimatedMinutes = intPtr(estimated)
	t.ActualMinutes = intPtr(actual)
	t.DueTime = due
	t.CompletedAt = timePtr(completedAt)
	t.AssignedBy = uuidPtr(assignedBy)
	t.UpdatedBy = uuidPtr(updatedBy)
	t.FromBoardID = uuidPtr(fromBoard)
	t.FromDate = datePtr(fromDate)
	t.MigratedAt = timePtr(migratedAt)
	t.ToBoardID = uuidPtr(toBoard)
	t.ToDate = datePtr(toDate)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
