package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskHistoryEntry records one status change of a task.
// PreviousStatus is nil for the entry written when a task first appears on a board.
type TaskHistoryEntry struct {
	ID             uuid.UUID   `json:"id"`
	TaskID         uuid.UUID   `json:"task_id"`
	PreviousStatus *TaskStatus `json:"previous_status,omitempty"`
	NewStatus      TaskStatus  `json:"new_status"`
	ChangedBy      *uuid.UUID  `json:"changed_by,omitempty"`
	ChangedAt      time.Time   `json:"changed_at"`
	Notes          string      `json:"notes,omitempty"`
}

// NewHistoryEntry creates a history entry for a status change made by actor.
// System actors are recorded without a ChangedBy.
func NewHistoryEntry(
	taskID uuid.UUID,
	previous *TaskStatus,
	next TaskStatus,
	actor Actor,
	at time.Time,
	notes string,
) *TaskHistoryEntry {
	entry := &TaskHistoryEntry{
		ID:        uuid.New(),
		TaskID:    taskID,
		NewStatus: next,
		ChangedAt: at.UTC(),
		Notes:     notes,
	}
	if previous != nil {
		p := *previous
		entry.PreviousStatus = &p
	}
	if !actor.IsSystem() {
		id := actor.ID
		entry.ChangedBy = &id
	}
	return entry
}
