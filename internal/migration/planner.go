package migration

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

// PlannedTask is one task to carry from its source board to the target date.
type PlannedTask struct {
	Task   *domain.Task
	Source *domain.Board
}

// Plan lists the tasks to migrate for one owner and target date, in the order
// their clones should be appended: oldest source board first, then position.
type Plan struct {
	OwnerID    uuid.UUID
	TargetDate civil.Date
	Items      []PlannedTask
}

// IsEmpty reports whether there is nothing to migrate.
func (p *Plan) IsEmpty() bool {
	return len(p.Items) == 0
}

// PendingMigration is a read-only preview entry.
type PendingMigration struct {
	TaskID        uuid.UUID         `json:"task_id"`
	Title         string            `json:"title"`
	Status        domain.TaskStatus `json:"status"`
	Priority      domain.Priority   `json:"priority"`
	OwnerID       uuid.UUID         `json:"owner_id"`
	SourceBoardID uuid.UUID         `json:"source_board_id"`
	SourceDate    civil.Date        `json:"source_date"`
	DaysOverdue   int               `json:"days_overdue"`
}

// Planner computes migration plans. It never mutates the store.
type Planner struct {
	boards store.BoardStore
	tasks  store.TaskStore
	logger *slog.Logger
}

// NewPlanner creates a Planner over the given stores.
func NewPlanner(boards store.BoardStore, tasks store.TaskStore, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		boards: boards,
		tasks:  tasks,
		logger: logger.With(slog.String("component", "migration_planner")),
	}
}

// Plan collects the owner's pending and in-progress tasks on boards dated
// strictly before targetDate, whatever the status of those boards.
// An empty plan is a normal outcome.
func (p *Planner) Plan(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date) (*Plan, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)

	if ownerID == uuid.Nil {
		return nil, domain.NewValidationError("owner_id", "cannot be empty")
	}
	if !targetDate.IsValid() {
		return nil, domain.NewValidationError("date", "must be a valid calendar date")
	}

	boards, err := p.boards.ListWithBacklogBefore(ctx, ownerID, targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards with backlog: %w", err)
	}

	plan := &Plan{OwnerID: ownerID, TargetDate: targetDate}
	for _, board := range boards {
		tasks, err := p.tasks.ListByBoard(ctx, board.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks of board %s: %w", board.ID, err)
		}
		for _, task := range tasks {
			if task.IsActionable() {
				plan.Items = append(plan.Items, PlannedTask{Task: task, Source: board})
			}
		}
	}

	log.Debug("migration planned",
		slog.String("owner_id", ownerID.String()),
		slog.String("target_date", targetDate.String()),
		slog.Int("source_boards", len(boards)),
		slog.Int("planned_tasks", len(plan.Items)))
	return plan, nil
}

// Preview lists what a run for the owner would migrate, with how many days
// each task has been carried.
func (p *Planner) Preview(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date) ([]PendingMigration, error) {
	plan, err := p.Plan(ctx, ownerID, targetDate)
	if err != nil {
		return nil, err
	}
	pending := make([]PendingMigration, 0, len(plan.Items))
	for _, item := range plan.Items {
		pending = append(pending, PendingMigration{
			TaskID:        item.Task.ID,
			Title:         item.Task.Title,
			Status:        item.Task.Status,
			Priority:      item.Task.Priority,
			OwnerID:       ownerID,
			SourceBoardID: item.Source.ID,
			SourceDate:    item.Source.Date,
			DaysOverdue:   targetDate.DaysSince(item.Source.Date),
		})
	}
	return pending, nil
}

// PreviewAll previews pending migrations for every owner with backlog.
func (p *Planner) PreviewAll(ctx context.Context, targetDate civil.Date) ([]PendingMigration, error) {
	owners, err := p.boards.ListOwnersWithBacklog(ctx, targetDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners with backlog: %w", err)
	}
	var all []PendingMigration
	for _, owner := range owners {
		pending, err := p.Preview(ctx, owner, targetDate)
		if err != nil {
			return nil, err
		}
		all = append(all, pending...)
	}
	return all, nil
}
