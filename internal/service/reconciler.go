package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

// Change is a client-proposed edit to a task, usually the result of a drag
// across status lanes. Nil fields are left as they are.
type Change struct {
	TaskID          uuid.UUID
	ExpectedBoardID uuid.UUID
	Status          *domain.TaskStatus
	Position        *int
}

// Reconciler persists optimistic client changes.
//
// Concurrent changes to the same board are not merged: the last write wins.
// Every rejected change wraps ErrRefetchRequired, and the client must reload
// the board rather than patch its local copy.
type Reconciler struct {
	tx      store.Transactor
	machine domain.TaskStateMachine
	clock   clock.Clock
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(tx store.Transactor, machine domain.TaskStateMachine, c clock.Clock, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		tx:      tx,
		machine: machine,
		clock:   c,
		logger:  logger.With(slog.String("component", "reconciler")),
	}
}

// ApplyOptimistic validates change against the current task and board and
// writes it. The stored task is returned on success.
func (r *Reconciler) ApplyOptimistic(ctx context.Context, actor domain.Actor, change Change) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, r.logger).With(
		slog.String("task_id", change.TaskID.String()),
		slog.String("board_id", change.ExpectedBoardID.String()),
	)

	next, err := r.apply(ctx, actor, change)
	if err != nil {
		log.Warn("optimistic change rejected", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrRefetchRequired, err)
	}

	log.Debug("optimistic change applied",
		slog.String("status", string(next.Status)),
		slog.Int("position", next.Position))
	return next, nil
}

func (r *Reconciler) apply(ctx context.Context, actor domain.Actor, change Change) (*domain.Task, error) {
	if change.Status == nil && change.Position == nil {
		return nil, domain.NewValidationError("change", "status or position is required")
	}
	if change.Position != nil && *change.Position < 0 {
		return nil, domain.NewValidationError("position", "cannot be negative")
	}

	var next *domain.Task
	err := r.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		current, err := st.Tasks.GetForUpdate(ctx, change.TaskID)
		if err != nil {
			return err
		}
		if current.BoardID != change.ExpectedBoardID {
			return domain.ErrBoardMismatch
		}
		board, err := st.Boards.GetByID(ctx, current.BoardID)
		if err != nil {
			return err
		}

		now := r.clock.Now()
		if change.Status != nil {
			next, err = r.machine.Transition(current, board, *change.Status, actor, now)
			if err != nil {
				return err
			}
		} else {
			if err := r.machine.Authorize(current, board, actor); err != nil {
				return err
			}
			if current.IsMigratedAway() {
				return fmt.Errorf("%w: task was migrated to another board", domain.ErrInvalidTransition)
			}
			copied := *current
			next = &copied
		}

		if change.Position != nil {
			next.Position = *change.Position
			if !actor.IsSystem() {
				id := actor.ID
				next.UpdatedBy = &id
			}
			next.UpdatedAt = now.UTC()
		}

		if err := st.Tasks.Update(ctx, next); err != nil {
			return err
		}
		if next.Status == current.Status {
			return nil
		}
		previous := current.Status
		return st.Tasks.AppendHistory(ctx, domain.NewHistoryEntry(next.ID, &previous, next.Status, actor, now, "reordered"))
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}
