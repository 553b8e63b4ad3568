package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
	"golang.org/x/sync/errgroup"
)

// DefaultCooldown is how long a recorded run suppresses further runs for the
// same owner and date.
const DefaultCooldown = 6 * time.Hour

// errTaskSettled marks a planned task that stopped being actionable before
// its transaction ran, for example because a concurrent run migrated it.
var errTaskSettled = errors.New("task is no longer actionable")

// ExecutorConfig tunes an Executor.
type ExecutorConfig struct {
	Cooldown         time.Duration
	Retry            RetryPolicy
	OwnerConcurrency int
}

// DefaultExecutorConfig returns the reference cooldown and retry policy.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Cooldown:         DefaultCooldown,
		Retry:            DefaultRetryPolicy(),
		OwnerConcurrency: 4,
	}
}

// Executor applies migration plans.
type Executor struct {
	tx      store.Transactor
	boards  store.BoardStore
	tasks   store.TaskStore
	planner *Planner
	ledger  ledger.Ledger
	clock   clock.Clock
	cfg     ExecutorConfig
	logger  *slog.Logger
}

// NewExecutor creates an Executor. boards and tasks are used outside
// transactions; per-task work runs through tx.
func NewExecutor(
	tx store.Transactor,
	boards store.BoardStore,
	tasks store.TaskStore,
	l ledger.Ledger,
	c clock.Clock,
	cfg ExecutorConfig,
	log *slog.Logger,
) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.OwnerConcurrency < 1 {
		cfg.OwnerConcurrency = 1
	}
	return &Executor{
		tx:      tx,
		boards:  boards,
		tasks:   tasks,
		planner: NewPlanner(boards, tasks, log),
		ledger:  l,
		clock:   c,
		cfg:     cfg,
		logger:  log.With(slog.String("component", "migration_executor")),
	}
}

// Planner returns the planner the executor runs.
func (e *Executor) Planner() *Planner { return e.planner }

// Execute migrates the owner's backlog onto targetDate unless a run for the
// same owner and date was recorded within the cooldown.
func (e *Executor) Execute(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date) (*Result, error) {
	return e.execute(ctx, ownerID, targetDate, false)
}

// Force migrates like Execute but ignores the cooldown. The run is still
// recorded so the scheduler does not repeat it.
func (e *Executor) Force(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date) (*Result, error) {
	return e.execute(ctx, ownerID, targetDate, true)
}

func (e *Executor) execute(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date, force bool) (*Result, error) {
	log := logger.FromContextOrDefault(ctx, e.logger).With(
		slog.String("owner_id", ownerID.String()),
		slog.String("target_date", targetDate.String()),
		slog.Bool("forced", force),
	)
	key := ledger.Key{OwnerID: ownerID, Date: targetDate}

	if !force {
		claimed, err := e.ledger.Claim(ctx, key, e.clock.Now(), e.cfg.Cooldown)
		if err != nil {
			log.Error("failed to consult migration ledger", slog.String("error", err.Error()))
			return failedResult(ownerID, targetDate, err), fmt.Errorf("failed to claim migration run: %w", err)
		}
		if !claimed {
			log.Debug("migration skipped, ran within cooldown")
			return &Result{OwnerID: ownerID, TargetDate: targetDate, Success: true, Skipped: true, Errors: []Failure{}}, nil
		}
	}

	state := &runState{}
	err := e.cfg.Retry.do(ctx, log, func(ctx context.Context) error {
		return e.run(ctx, log, ownerID, targetDate, state)
	})
	if err != nil {
		log.Error("migration run failed",
			slog.String("error", err.Error()),
			slog.String("class", string(Classify(err))))
		if !force {
			if relErr := e.ledger.Release(context.WithoutCancel(ctx), key); relErr != nil {
				log.Warn("failed to release migration claim", slog.String("error", relErr.Error()))
			}
		}
		res := state.result(ownerID, targetDate)
		res.Success = false
		res.Errors = append(res.Errors, Failure{
			OwnerID: ownerID,
			Class:   Classify(err),
			Message: err.Error(),
		})
		return res, err
	}

	if recErr := e.ledger.Record(context.WithoutCancel(ctx), key, e.clock.Now(), e.cfg.Cooldown); recErr != nil {
		log.Warn("failed to record migration run", slog.String("error", recErr.Error()))
	}

	res := state.result(ownerID, targetDate)
	res.Success = true
	log.Info("migration run completed",
		slog.Int("migrated_tasks", res.MigratedTasks),
		slog.Int("created_boards", res.CreatedBoards),
		slog.Int("failed_tasks", len(res.Errors)))
	return res, nil
}

// runState accumulates outcomes across retry attempts. Tasks migrated by an
// earlier attempt stay counted; failures are re-evaluated by every attempt.
type runState struct {
	migrated int
	created  int
	failures []Failure
}

func (s *runState) result(ownerID uuid.UUID, targetDate civil.Date) *Result {
	return &Result{
		OwnerID:       ownerID,
		TargetDate:    targetDate,
		MigratedTasks: s.migrated,
		CreatedBoards: s.created,
		Errors:        append(make([]Failure, 0, len(s.failures)), s.failures...),
	}
}

func failedResult(ownerID uuid.UUID, targetDate civil.Date, err error) *Result {
	return &Result{
		OwnerID:    ownerID,
		TargetDate: targetDate,
		Errors:     []Failure{{OwnerID: ownerID, Class: Classify(err), Message: err.Error()}},
	}
}

// run is one attempt: plan, ensure the target board, then migrate each task
// in its own transaction. Planning and targeting failures abort the attempt;
// per-task failures are collected.
func (e *Executor) run(
	ctx context.Context,
	log *slog.Logger,
	ownerID uuid.UUID,
	targetDate civil.Date,
	state *runState,
) error {
	state.failures = nil

	plan, err := e.planner.Plan(ctx, ownerID, targetDate)
	if err != nil {
		return err
	}
	if plan.IsEmpty() {
		log.Debug("no tasks to migrate")
		return nil
	}

	target, err := e.ensureTarget(ctx, plan, state)
	if err != nil {
		return err
	}

	for _, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := e.migrateTask(ctx, item, target)
		switch {
		case err == nil:
			state.migrated++
		case errors.Is(err, errTaskSettled):
			log.Debug("planned task already settled", slog.String("task_id", item.Task.ID.String()))
		case ctx.Err() != nil:
			return err
		default:
			taskID := item.Task.ID
			log.Warn("failed to migrate task",
				slog.String("task_id", taskID.String()),
				slog.String("source_board_id", item.Source.ID.String()),
				slog.String("error", err.Error()))
			state.failures = append(state.failures, Failure{
				OwnerID: ownerID,
				TaskID:  &taskID,
				Title:   item.Task.Title,
				Class:   Classify(err),
				Message: err.Error(),
			})
		}
	}
	return nil
}

// ensureTarget returns the canonical board for the plan's owner and date,
// creating it from the newest source board when absent.
func (e *Executor) ensureTarget(ctx context.Context, plan *Plan, state *runState) (*domain.Board, error) {
	candidate, err := domain.NewBoard(plan.OwnerID, plan.TargetDate, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if newest := plan.Items[len(plan.Items)-1].Source; newest.CompanyID != nil {
		company := *newest.CompanyID
		candidate.CompanyID = &company
	}

	target, created, err := e.boards.EnsureForDate(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure target board: %w", err)
	}
	if created {
		state.created++
	}
	if !target.IsActive() {
		return nil, fmt.Errorf("%w: board %s for %s", ErrTargetClosed, target.ID, target.Date)
	}
	return target, nil
}

// migrateTask clones one task onto the target board and retires the original,
// atomically. The clone is appended after the target's current last task.
func (e *Executor) migrateTask(ctx context.Context, item PlannedTask, target *domain.Board) error {
	return e.tx.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		current, err := s.Tasks.GetForUpdate(ctx, item.Task.ID)
		if err != nil {
			return err
		}
		if !current.IsActionable() {
			return errTaskSettled
		}

		position, err := s.Tasks.NextPosition(ctx, target.ID)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		system := domain.SystemActor()

		clone := current.CloneForMigration(item.Source, target, position, now)
		if err := s.Tasks.Create(ctx, clone); err != nil {
			return fmt.Errorf("failed to create clone: %w", err)
		}
		if err := s.Tasks.AppendHistory(ctx, domain.NewHistoryEntry(
			clone.ID, nil, clone.Status, system, now,
			fmt.Sprintf("migrated from board %s (%s)", item.Source.ID, item.Source.Date),
		)); err != nil {
			return err
		}

		previous := current.Status
		current.MarkMigrated(target, now)
		if err := s.Tasks.Update(ctx, current); err != nil {
			return fmt.Errorf("failed to retire original: %w", err)
		}
		return s.Tasks.AppendHistory(ctx, domain.NewHistoryEntry(
			current.ID, &previous, current.Status, system, now,
			fmt.Sprintf("migrated to board %s (%s)", target.ID, target.Date),
		))
	})
}

// RunAll runs every owner with backlog before targetDate, up to
// OwnerConcurrency owners at a time. A failing owner never stops the others;
// its failure is reported in the summary.
func (e *Executor) RunAll(ctx context.Context, targetDate civil.Date, force bool) (*Summary, error) {
	log := logger.FromContextOrDefault(ctx, e.logger)

	owners, err := e.boards.ListOwnersWithBacklog(ctx, targetDate)
	if err != nil {
		return &Summary{TargetDate: targetDate, Errors: []Failure{}}, fmt.Errorf("failed to list owners with backlog: %w", err)
	}

	summary := &Summary{TargetDate: targetDate, Success: true, Errors: []Failure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.OwnerConcurrency)
	for _, owner := range owners {
		g.Go(func() error {
			var res *Result
			var runErr error
			if force {
				res, runErr = e.Force(gctx, owner, targetDate)
			} else {
				res, runErr = e.Execute(gctx, owner, targetDate)
			}
			if runErr != nil {
				log.Warn("owner migration failed",
					slog.String("owner_id", owner.String()),
					slog.String("error", runErr.Error()))
			}
			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary.Skipped = len(summary.Results) > 0 && summary.SkippedOwners == len(summary.Results)
	log.Info("migration sweep completed",
		slog.String("target_date", targetDate.String()),
		slog.Int("owners", len(owners)),
		slog.Int("affected_owners", summary.AffectedOwners),
		slog.Int("migrated_tasks", summary.MigratedTasks),
		slog.Int("errors", len(summary.Errors)))
	return summary, nil
}
