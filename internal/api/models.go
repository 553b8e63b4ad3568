package api

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/migration"
)

// CreateTaskRequest defines the payload for adding a task to a board.
type CreateTaskRequest struct {
	Title            string `json:"title"             validate:"required,max=200"`
	Description      string `json:"description"       validate:"max=2000"`
	Priority         string `json:"priority"          validate:"omitempty,oneof=low medium high urgent"`
	EstimatedMinutes *int   `json:"estimated_minutes" validate:"omitempty,min=0,max=1440"`
	// DueTime is a local time of day, HH:MM.
	DueTime string `json:"due_time" validate:"omitempty,datetime=15:04"`
}

// dueTime parses DueTime. Call only after validation.
func (r CreateTaskRequest) dueTime() (*civil.Time, error) {
	if r.DueTime == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", r.DueTime)
	if err != nil {
		return nil, domain.NewValidationError("due_time", "must be HH:MM")
	}
	ct := civil.TimeOf(t)
	return &ct, nil
}

// TransitionRequest defines the payload for a status change.
type TransitionRequest struct {
	Status        string `json:"status"         validate:"required,oneof=pending in_progress completed cancelled"`
	ActualMinutes *int   `json:"actual_minutes" validate:"omitempty,min=0,max=1440"`
}

// ReorderRequest is an optimistic change proposed by a client after a drag.
type ReorderRequest struct {
	BoardID  string  `json:"board_id" validate:"required,uuid"`
	Status   *string `json:"status"   validate:"omitempty,oneof=pending in_progress completed cancelled"`
	Position *int    `json:"position" validate:"omitempty,min=0"`
}

// RunMigrationRequest is the optional payload of a forced run.
type RunMigrationRequest struct {
	OwnerID string `json:"owner_id" validate:"omitempty,uuid"`
	Date    string `json:"date"     validate:"omitempty,datetime=2006-01-02"`
}

// ClosePastRequest is the optional payload of a close-past call.
type ClosePastRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// MigrationCheckResponse is the answer to a caller's own migration check.
type MigrationCheckResponse struct {
	*migration.Result
	Message string `json:"message"`
	Notify  bool   `json:"notify"`
}

// MigrationRunResponse is the answer to a forced run across owners.
type MigrationRunResponse struct {
	*migration.Summary
	Message string `json:"message"`
}

// PendingMigrationsResponse lists tasks that the next migration would carry forward.
type PendingMigrationsResponse struct {
	TargetDate civil.Date                   `json:"target_date"`
	Pending    []migration.PendingMigration `json:"pending"`
}
