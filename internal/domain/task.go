package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// TaskStatus represents the state of a task on its board.
type TaskStatus string

// Task status values. TaskStatusMigrated is never stored; it is the display
// projection of a cancelled task that was carried forward to a newer board.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusMigrated   TaskStatus = "migrated"
)

// Priority ranks a task's urgency.
type Priority string

// Priority values
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsStored reports whether the status can be persisted on a task record.
func (s TaskStatus) IsStored() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Lineage links a migrated task to its counterpart on another board.
// A clone carries the From fields, the retired original carries the To fields.
type Lineage struct {
	FromBoardID *uuid.UUID  `json:"migrated_from_board,omitempty"`
	FromDate    *civil.Date `json:"migrated_from_date,omitempty"`
	MigratedAt  *time.Time  `json:"migrated_at,omitempty"`
	ToBoardID   *uuid.UUID  `json:"migrated_to_board,omitempty"`
	ToDate      *civil.Date `json:"migrated_to_date,omitempty"`
}

// Task is a unit of work owned by exactly one board for its lifetime.
type Task struct {
	ID               uuid.UUID   `json:"id"`
	BoardID          uuid.UUID   `json:"board_id"`
	Title            string      `json:"title"`
	Description      string      `json:"description,omitempty"`
	Status           TaskStatus  `json:"status"`
	Priority         Priority    `json:"priority"`
	EstimatedMinutes *int        `json:"estimated_minutes,omitempty"`
	ActualMinutes    *int        `json:"actual_minutes,omitempty"`
	DueTime          *civil.Time `json:"due_time,omitempty"`
	Position         int         `json:"position"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
	CreatedBy        uuid.UUID   `json:"created_by"`
	AssignedBy       *uuid.UUID  `json:"assigned_by,omitempty"`
	UpdatedBy        *uuid.UUID  `json:"updated_by,omitempty"`
	Lineage
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask creates a pending, medium priority task on the given board.
func NewTask(boardID, createdBy uuid.UUID, title string, now time.Time) (*Task, error) {
	task := &Task{
		ID:        uuid.New(),
		BoardID:   boardID,
		Title:     strings.TrimSpace(title),
		Status:    TaskStatusPending,
		Priority:  PriorityMedium,
		CreatedBy: createdBy,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty")
	}
	if t.BoardID == uuid.Nil {
		return NewValidationError("board_id", "cannot be empty")
	}
	if t.CreatedBy == uuid.Nil {
		return NewValidationError("created_by", "cannot be empty")
	}
	if strings.TrimSpace(t.Title) == "" {
		return NewValidationError("title", "cannot be empty")
	}
	if !t.Status.IsStored() {
		return ErrInvalidTaskStatus
	}
	if !t.Priority.IsValid() {
		return ErrInvalidPriority
	}
	if t.EstimatedMinutes != nil && *t.EstimatedMinutes < 0 {
		return NewValidationError("estimated_minutes", "cannot be negative")
	}
	if t.ActualMinutes != nil && *t.ActualMinutes < 0 {
		return NewValidationError("actual_minutes", "cannot be negative")
	}
	if t.Position < 0 {
		return NewValidationError("position", "cannot be negative")
	}
	if t.DueTime != nil && !t.DueTime.IsValid() {
		return NewValidationError("due_time", "must be a valid time of day")
	}
	return nil
}

// IsActionable reports whether the task is still open work.
func (t *Task) IsActionable() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusInProgress
}

// IsMigratedAway reports whether the task was retired by a migration.
// Such a task is historical evidence and never actionable again.
func (t *Task) IsMigratedAway() bool {
	return t.Status == TaskStatusCancelled && t.ToBoardID != nil
}

// DisplayStatus projects the stored status and lineage into the status shown to users.
func (t *Task) DisplayStatus() TaskStatus {
	if t.IsMigratedAway() {
		return TaskStatusMigrated
	}
	return t.Status
}

// CloneForMigration builds the copy of t that lands on the target board.
// The clone keeps the original's status and scheduling metadata and records
// where it came from.
func (t *Task) CloneForMigration(source, target *Board, position int, now time.Time) *Task {
	migratedAt := now.UTC()
	fromBoard := source.ID
	fromDate := source.Date

	clone := &Task{
		ID:               uuid.New(),
		BoardID:          target.ID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		Priority:         t.Priority,
		EstimatedMinutes: copyInt(t.EstimatedMinutes),
		DueTime:          copyTime(t.DueTime),
		Position:         position,
		CreatedBy:        t.CreatedBy,
		AssignedBy:       copyID(t.AssignedBy),
		Lineage: Lineage{
			FromBoardID: &fromBoard,
			FromDate:    &fromDate,
			MigratedAt:  &migratedAt,
		},
		CreatedAt: migratedAt,
		UpdatedAt: migratedAt,
	}
	return clone
}

// MarkMigrated retires t in favour of its clone on the target board.
func (t *Task) MarkMigrated(target *Board, now time.Time) {
	migratedAt := now.UTC()
	toBoard := target.ID
	toDate := target.Date

	t.Status = TaskStatusCancelled
	t.CompletedAt = nil
	t.MigratedAt = &migratedAt
	t.ToBoardID = &toBoard
	t.ToDate = &toDate
	t.UpdatedAt = migratedAt
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *civil.Time) *civil.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
