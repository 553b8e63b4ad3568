package service

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

// TaskView is a task as shown to users, with its derived display status.
type TaskView struct {
	*domain.Task
	DisplayStatus domain.TaskStatus `json:"display_status"`
}

// BoardView is a board together with its tasks in position order.
type BoardView struct {
	Board    *domain.Board `json:"board"`
	Tasks    []TaskView    `json:"tasks"`
	IsToday  bool          `json:"is_today"`
	Editable bool          `json:"editable"`
}

// NewTaskInput carries the caller-supplied fields of a new task.
type NewTaskInput struct {
	Title            string
	Description      string
	Priority         domain.Priority
	EstimatedMinutes *int
	DueTime          *civil.Time
}

// TransitionInput is a requested status change, optionally recording the
// time actually spent.
type TransitionInput struct {
	Status        domain.TaskStatus
	ActualMinutes *int
}

// BoardService provides board and task operations on behalf of an actor.
type BoardService interface {
	// Today returns the actor's board for the current date, creating it if needed.
	Today(ctx context.Context, actor domain.Actor) (*BoardView, error)

	// ListBoards lists boards for a date. With all set, every owner's boards
	// are listed; this requires an elevated actor.
	ListBoards(ctx context.Context, actor domain.Actor, date civil.Date, all bool) ([]*domain.Board, error)

	// GetBoard returns a board the actor may view, with its tasks.
	GetBoard(ctx context.Context, actor domain.Actor, boardID uuid.UUID) (*BoardView, error)

	// CreateTask appends a task to an active board dated today.
	CreateTask(ctx context.Context, actor domain.Actor, boardID uuid.UUID, in NewTaskInput) (*domain.Task, error)

	// TransitionTask moves a task to another status through the state machine.
	TransitionTask(ctx context.Context, actor domain.Actor, taskID uuid.UUID, in TransitionInput) (*domain.Task, error)

	// TaskHistory lists the status changes of a task the actor may view.
	TaskHistory(ctx context.Context, actor domain.Actor, taskID uuid.UUID) ([]*domain.TaskHistoryEntry, error)
}

type boardServiceImpl struct {
	tx      store.Transactor
	boards  store.BoardStore
	tasks   store.TaskStore
	policy  *clock.Policy
	machine domain.TaskStateMachine
	logger  *slog.Logger
}

var _ BoardService = (*boardServiceImpl)(nil)

// NewBoardService creates a new BoardService.
// It returns an error if any of the required dependencies are nil.
func NewBoardService(
	tx store.Transactor,
	boards store.BoardStore,
	tasks store.TaskStore,
	policy *clock.Policy,
	machine domain.TaskStateMachine,
	logger *slog.Logger,
) (BoardService, error) {
	if tx == nil {
		return nil, domain.NewValidationError("tx", "cannot be nil")
	}
	if boards == nil {
		return nil, domain.NewValidationError("boards", "cannot be nil")
	}
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil")
	}
	if policy == nil {
		return nil, domain.NewValidationError("policy", "cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &boardServiceImpl{
		tx:      tx,
		boards:  boards,
		tasks:   tasks,
		policy:  policy,
		machine: machine,
		logger:  logger.With(slog.String("component", "board_service")),
	}, nil
}

func (s *boardServiceImpl) Today(ctx context.Context, actor domain.Actor) (*BoardView, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if actor.IsSystem() {
		return nil, NewServiceError("today", "a user is required", domain.ErrPermissionDenied)
	}

	candidate, err := domain.NewBoard(actor.ID, s.policy.Today(), s.policy.Now())
	if err != nil {
		return nil, NewServiceError("today", "failed to build board", err)
	}
	if actor.CompanyID != nil {
		company := *actor.CompanyID
		candidate.CompanyID = &company
	}

	board, created, err := s.boards.EnsureForDate(ctx, candidate)
	if err != nil {
		log.Error("failed to ensure today's board",
			slog.String("error", err.Error()),
			slog.String("owner_id", actor.ID.String()))
		return nil, NewServiceError("today", "failed to load today's board", err)
	}
	if created {
		log.Info("created today's board",
			slog.String("board_id", board.ID.String()),
			slog.String("date", board.Date.String()))
	}

	return s.view(ctx, board)
}

func (s *boardServiceImpl) ListBoards(
	ctx context.Context,
	actor domain.Actor,
	date civil.Date,
	all bool,
) ([]*domain.Board, error) {
	if !date.IsValid() {
		return nil, domain.NewValidationError("date", "must be a valid calendar date")
	}

	var owner *uuid.UUID
	if all {
		if !actor.Elevated {
			return nil, ErrElevationRequired
		}
	} else {
		id := actor.ID
		owner = &id
	}

	boards, err := s.boards.ListByDate(ctx, date, owner)
	if err != nil {
		return nil, NewServiceError("list_boards", "failed to list boards", err)
	}

	visible := make([]*domain.Board, 0, len(boards))
	for _, b := range boards {
		if canView(actor, b) {
			visible = append(visible, b)
		}
	}
	return visible, nil
}

func (s *boardServiceImpl) GetBoard(ctx context.Context, actor domain.Actor, boardID uuid.UUID) (*BoardView, error) {
	board, err := s.boards.GetByID(ctx, boardID)
	if err != nil {
		return nil, NewServiceError("get_board", "failed to load board", err)
	}
	if !canView(actor, board) {
		return nil, ErrNotOwned
	}
	return s.view(ctx, board)
}

func (s *boardServiceImpl) CreateTask(
	ctx context.Context,
	actor domain.Actor,
	boardID uuid.UUID,
	in NewTaskInput,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if actor.IsSystem() {
		return nil, NewServiceError("create_task", "a user is required", domain.ErrPermissionDenied)
	}

	now := s.policy.Now()
	task, err := domain.NewTask(boardID, actor.ID, in.Title, now)
	if err != nil {
		return nil, err
	}
	task.Description = in.Description
	if in.Priority != "" {
		task.Priority = in.Priority
	}
	task.EstimatedMinutes = in.EstimatedMinutes
	task.DueTime = in.DueTime

	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		board, err := st.Boards.GetByID(ctx, boardID)
		if err != nil {
			return err
		}
		if !board.IsActive() {
			return domain.ErrBoardClosed
		}
		if board.Date != s.policy.Today() {
			return domain.ErrBoardNotToday
		}
		if actor.ID != board.OwnerID {
			if !actor.Elevated {
				return ErrNotOwned
			}
			assigner := actor.ID
			task.AssignedBy = &assigner
		}

		position, err := st.Tasks.NextPosition(ctx, board.ID)
		if err != nil {
			return err
		}
		task.Position = position
		if err := task.Validate(); err != nil {
			return err
		}

		if err := st.Tasks.Create(ctx, task); err != nil {
			return err
		}
		return st.Tasks.AppendHistory(ctx, domain.NewHistoryEntry(task.ID, nil, task.Status, actor, now, "created"))
	})
	if err != nil {
		log.Warn("failed to create task",
			slog.String("error", err.Error()),
			slog.String("board_id", boardID.String()))
		return nil, wrapUnlessSentinel("create_task", "failed to create task", err)
	}

	log.Info("created task",
		slog.String("task_id", task.ID.String()),
		slog.String("board_id", boardID.String()),
		slog.Int("position", task.Position))
	return task, nil
}

func (s *boardServiceImpl) TransitionTask(
	ctx context.Context,
	actor domain.Actor,
	taskID uuid.UUID,
	in TransitionInput,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var next *domain.Task
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		current, err := st.Tasks.GetForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		board, err := st.Boards.GetByID(ctx, current.BoardID)
		if err != nil {
			return err
		}

		now := s.policy.Now()
		next, err = s.machine.Transition(current, board, in.Status, actor, now)
		if err != nil {
			return err
		}
		if in.ActualMinutes != nil {
			minutes := *in.ActualMinutes
			next.ActualMinutes = &minutes
			next.UpdatedAt = now.UTC()
		}
		if next.Status == current.Status && in.ActualMinutes == nil {
			return nil
		}

		if err := st.Tasks.Update(ctx, next); err != nil {
			return err
		}
		if next.Status == current.Status {
			return nil
		}
		previous := current.Status
		return st.Tasks.AppendHistory(ctx, domain.NewHistoryEntry(next.ID, &previous, next.Status, actor, now, ""))
	})
	if err != nil {
		log.Warn("task transition rejected",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()),
			slog.String("status", string(in.Status)))
		return nil, wrapUnlessSentinel("transition_task", "failed to change task status", err)
	}

	log.Debug("task transitioned",
		slog.String("task_id", taskID.String()),
		slog.String("status", string(next.Status)))
	return next, nil
}

func (s *boardServiceImpl) TaskHistory(
	ctx context.Context,
	actor domain.Actor,
	taskID uuid.UUID,
) ([]*domain.TaskHistoryEntry, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("task_history", "failed to load task", err)
	}
	board, err := s.boards.GetByID(ctx, task.BoardID)
	if err != nil {
		return nil, NewServiceError("task_history", "failed to load board", err)
	}
	if !canView(actor, board) && actor.ID != task.CreatedBy {
		return nil, ErrNotOwned
	}

	entries, err := s.tasks.ListHistory(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("task_history", "failed to load history", err)
	}
	return entries, nil
}

func (s *boardServiceImpl) view(ctx context.Context, board *domain.Board) (*BoardView, error) {
	tasks, err := s.tasks.ListByBoard(ctx, board.ID)
	if err != nil {
		return nil, NewServiceError("list_tasks", "failed to load tasks", err)
	}

	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, TaskView{Task: t, DisplayStatus: t.DisplayStatus()})
	}

	isToday := board.Date == s.policy.Today()
	return &BoardView{
		Board:    board,
		Tasks:    views,
		IsToday:  isToday,
		Editable: isToday && board.IsActive(),
	}, nil
}

// canView reports whether actor may read board. Owners always may; elevated
// actors may unless both sides are scoped to different companies.
func canView(actor domain.Actor, board *domain.Board) bool {
	if actor.ID == board.OwnerID {
		return true
	}
	if !actor.Elevated {
		return false
	}
	if actor.CompanyID == nil || board.CompanyID == nil {
		return true
	}
	return *actor.CompanyID == *board.CompanyID
}

// wrapUnlessSentinel keeps domain and service sentinels recognisable by the
// API layer and wraps everything else with operation context.
func wrapUnlessSentinel(operation, message string, err error) error {
	if domain.IsValidationError(err) ||
		domain.IsPermissionError(err) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrBoardMismatch) {
		return err
	}
	return NewServiceError(operation, message, err)
}
