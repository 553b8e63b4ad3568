package domain

import (
	"fmt"
	"time"
)

// TaskStateMachine validates and applies status changes for a single task.
//
// The automaton is permissive: any move between pending, in_progress and
// completed is accepted, and any of them may be cancelled. Cancelled tasks
// stay cancelled unless AllowRevival is set, and tasks retired by a
// migration can never change again.
type TaskStateMachine struct {
	AllowRevival bool
}

// NewTaskStateMachine returns a state machine with the given revival policy.
func NewTaskStateMachine(allowRevival bool) TaskStateMachine {
	return TaskStateMachine{AllowRevival: allowRevival}
}

// CanTransition reports whether a task may move from one stored status to another.
// A move to the same status is always allowed and changes nothing.
func (m TaskStateMachine) CanTransition(from, to TaskStatus) bool {
	if !from.IsStored() || !to.IsStored() {
		return false
	}
	if from == to {
		return true
	}
	if from == TaskStatusCancelled {
		return m.AllowRevival && to == TaskStatusPending
	}
	return true
}

// Authorize checks that actor may mutate task on board.
// Closed boards accept no mutations at all, from anyone.
func (m TaskStateMachine) Authorize(task *Task, board *Board, actor Actor) error {
	if task.BoardID != board.ID {
		return ErrBoardMismatch
	}
	if !board.IsActive() {
		return ErrBoardClosed
	}
	if actor.Elevated {
		return nil
	}
	if actor.ID == task.CreatedBy || actor.ID == board.OwnerID {
		return nil
	}
	if task.AssignedBy != nil && actor.ID == *task.AssignedBy {
		return nil
	}
	return ErrPermissionDenied
}

// Transition computes the next state of task after moving it to status to.
// It returns a new record; the input is left untouched and persistence is the
// caller's responsibility.
func (m TaskStateMachine) Transition(
	task *Task,
	board *Board,
	to TaskStatus,
	actor Actor,
	at time.Time,
) (*Task, error) {
	if !to.IsStored() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskStatus, to)
	}
	if err := m.Authorize(task, board, actor); err != nil {
		return nil, err
	}
	if task.IsMigratedAway() {
		return nil, fmt.Errorf("%w: task was migrated to another board", ErrInvalidTransition)
	}
	if !m.CanTransition(task.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, to)
	}

	next := *task
	if task.Status == to {
		return &next, nil
	}

	next.Status = to
	switch {
	case to == TaskStatusCompleted:
		completedAt := at.UTC()
		next.CompletedAt = &completedAt
	case task.Status == TaskStatusCompleted:
		next.CompletedAt = nil
	}
	if !actor.IsSystem() {
		id := actor.ID
		next.UpdatedBy = &id
	}
	next.UpdatedAt = at.UTC()
	return &next, nil
}
