package migration

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Caller-facing messages.
const (
	MessageNothingToMigrate = "checked, nothing to migrate"
	MessageAlreadyChecked   = "already checked recently, nothing to migrate"
	MessageFailed           = "migration failed, retry later"
)

// Failure describes a task, or a whole owner run, that could not be migrated.
type Failure struct {
	OwnerID uuid.UUID  `json:"ownerId"`
	TaskID  *uuid.UUID `json:"taskId,omitempty"`
	Title   string     `json:"title,omitempty"`
	Class   Class      `json:"class"`
	Message string     `json:"message"`
}

// Result is the outcome of one owner's run.
//
// Success is false only when the run could not plan or target at all; a run
// with per-task failures still succeeds and lists them in Errors.
type Result struct {
	OwnerID       uuid.UUID  `json:"ownerId"`
	TargetDate    civil.Date `json:"targetDate"`
	Success       bool       `json:"success"`
	Skipped       bool       `json:"skipped"`
	MigratedTasks int        `json:"migratedTasks"`
	CreatedBoards int        `json:"createdBoards"`
	Errors        []Failure  `json:"errors"`
}

// Message renders the result in the caller-facing vocabulary.
func (r *Result) Message() string {
	switch {
	case !r.Success:
		return MessageFailed
	case r.Skipped:
		return MessageAlreadyChecked
	case r.MigratedTasks == 1:
		return "1 task migrated"
	case r.MigratedTasks > 0:
		return fmt.Sprintf("%d tasks migrated", r.MigratedTasks)
	default:
		return MessageNothingToMigrate
	}
}

// ShouldNotify reports whether the outcome deserves a confirmation.
// Zero-task runs stay silent.
func (r *Result) ShouldNotify() bool {
	return !r.Success || r.MigratedTasks > 0 || len(r.Errors) > 0
}

// Summary aggregates the runs of every owner covered by one invocation.
type Summary struct {
	TargetDate     civil.Date `json:"targetDate"`
	Success        bool       `json:"success"`
	Skipped        bool       `json:"skipped"`
	MigratedTasks  int        `json:"migratedTasks"`
	CreatedBoards  int        `json:"createdBoards"`
	SkippedOwners  int        `json:"skippedOwners"`
	AffectedOwners int        `json:"affectedOwners"`
	Errors         []Failure  `json:"errors"`
	Results        []*Result  `json:"results,omitempty"`
}

// add folds one owner's result into the summary.
func (s *Summary) add(r *Result) {
	s.Results = append(s.Results, r)
	if !r.Success {
		s.Success = false
	}
	if r.Skipped {
		s.SkippedOwners++
	}
	if r.MigratedTasks > 0 {
		s.AffectedOwners++
	}
	s.MigratedTasks += r.MigratedTasks
	s.CreatedBoards += r.CreatedBoards
	s.Errors = append(s.Errors, r.Errors...)
}

// Message renders the summary in the caller-facing vocabulary.
func (s *Summary) Message() string {
	switch {
	case !s.Success:
		return MessageFailed
	case s.MigratedTasks == 1:
		return "1 task migrated"
	case s.MigratedTasks > 0:
		return fmt.Sprintf("%d tasks migrated across %d owners", s.MigratedTasks, s.AffectedOwners)
	case s.Skipped:
		return MessageAlreadyChecked
	default:
		return MessageNothingToMigrate
	}
}
