package store

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
)

// BoardStore defines the interface for board persistence.
type BoardStore interface {
	// Create saves a new board. Returns validation errors if the board is invalid.
	Create(ctx context.Context, board *domain.Board) error

	// GetByID retrieves a board by its unique ID.
	// Returns ErrBoardNotFound if the board does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error)

	// GetCanonical returns the most recently created board for the owner and date.
	// Returns ErrBoardNotFound if the owner has no board for that date.
	GetCanonical(ctx context.Context, ownerID uuid.UUID, date civil.Date) (*domain.Board, error)

	// EnsureForDate returns the canonical board for candidate's owner and date,
	// inserting candidate when none exists. The boolean reports whether the
	// candidate was inserted. Concurrent callers for the same owner and date
	// observe the same board.
	EnsureForDate(ctx context.Context, candidate *domain.Board) (*domain.Board, bool, error)

	// ListByDate lists boards for a date, optionally restricted to one owner.
	// Results are ordered by creation time.
	ListByDate(ctx context.Context, date civil.Date, ownerID *uuid.UUID) ([]*domain.Board, error)

	// ListWithBacklogBefore lists the owner's boards dated strictly before the
	// given date that still hold pending or in-progress tasks, oldest date first.
	ListWithBacklogBefore(ctx context.Context, ownerID uuid.UUID, before civil.Date) ([]*domain.Board, error)

	// ListOwnersWithBacklog lists every owner with pending or in-progress tasks
	// on boards dated strictly before the given date.
	ListOwnersWithBacklog(ctx context.Context, before civil.Date) ([]uuid.UUID, error)

	// CloseActiveBefore closes every active board dated strictly before the
	// given date and returns the boards it closed.
	CloseActiveBefore(ctx context.Context, before civil.Date, at time.Time) ([]*domain.Board, error)
}
