package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
)

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	// Create saves a new task. Returns validation errors if the task is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetForUpdate retrieves a task and locks it until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update overwrites the stored task with the given record.
	// Concurrent updates are last-write-wins.
	// Returns ErrTaskNotFound if the task does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// ListByBoard lists a board's tasks ordered by position, then creation time.
	ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Task, error)

	// NextPosition returns the position that appends a task to the end of the board.
	// Called inside a transaction, it holds the board until commit so that
	// concurrent appends get distinct positions.
	NextPosition(ctx context.Context, boardID uuid.UUID) (int, error)

	// AppendHistory records a status change.
	AppendHistory(ctx context.Context, entry *domain.TaskHistoryEntry) error

	// ListHistory lists a task's status changes in the order they happened.
	ListHistory(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskHistoryEntry, error)
}
