package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// BoardStatus is the lifecycle state of a board.
type BoardStatus string

// Board status values
const (
	BoardStatusActive BoardStatus = "active"
	BoardStatusClosed BoardStatus = "closed"
)

// Board is a per-owner, per-calendar-day container of tasks.
//
// The store does not forbid several boards for the same owner and date.
// When more than one exists, the most recently created one is canonical.
type Board struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	CompanyID   *uuid.UUID  `json:"company_id,omitempty"`
	Date        civil.Date  `json:"date"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      BoardStatus `json:"status"`
	ClosedAt    *time.Time  `json:"closed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// BoardTitle derives the display title of a board from its date.
func BoardTitle(date civil.Date) string {
	return fmt.Sprintf("Tareas del %02d/%02d/%04d", date.Day, int(date.Month), date.Year)
}

// NewBoard creates an active board for the owner and date, titled after the date.
func NewBoard(ownerID uuid.UUID, date civil.Date, now time.Time) (*Board, error) {
	board := &Board{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Date:      date,
		Title:     BoardTitle(date),
		Status:    BoardStatusActive,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}

	if err := board.Validate(); err != nil {
		return nil, err
	}
	return board, nil
}

// Validate checks if the Board has valid data.
func (b *Board) Validate() error {
	if b.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty")
	}
	if b.OwnerID == uuid.Nil {
		return NewValidationError("owner_id", "cannot be empty")
	}
	if !b.Date.IsValid() {
		return NewValidationError("date", "must be a valid calendar date")
	}
	if strings.TrimSpace(b.Title) == "" {
		return NewValidationError("title", "cannot be empty")
	}
	switch b.Status {
	case BoardStatusActive:
		if b.ClosedAt != nil {
			return NewValidationError("closed_at", "must be empty while the board is active")
		}
	case BoardStatusClosed:
		if b.ClosedAt == nil {
			return NewValidationError("closed_at", "is required once the board is closed")
		}
	default:
		return NewValidationError("status", "must be active or closed")
	}
	return nil
}

// IsActive reports whether the board still accepts mutations.
func (b *Board) IsActive() bool {
	return b.Status == BoardStatusActive
}

// Close marks the board closed at the given instant.
// It reports false when the board was already closed.
func (b *Board) Close(at time.Time) bool {
	if b.Status == BoardStatusClosed {
		return false
	}
	closedAt := at.UTC()
	b.Status = BoardStatusClosed
	b.ClosedAt = &closedAt
	b.UpdatedAt = closedAt
	return true
}
