package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/api/shared"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/service"
)

var errInvalidView = domain.NewValidationError("view", "must be my or all")

// BoardHandler handles board and task HTTP requests.
type BoardHandler struct {
	boards     service.BoardService
	reconciler *service.Reconciler
	closer     *service.Closer
	policy     *clock.Policy
	logger     *slog.Logger
}

// NewBoardHandler creates a new BoardHandler.
func NewBoardHandler(
	boards service.BoardService,
	reconciler *service.Reconciler,
	closer *service.Closer,
	policy *clock.Policy,
	logger *slog.Logger,
) *BoardHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for BoardHandler")
	}
	return &BoardHandler{
		boards:     boards,
		reconciler: reconciler,
		closer:     closer,
		policy:     policy,
		logger:     logger.With(slog.String("component", "board_handler")),
	}
}

// GetToday handles GET /boards/today.
func (h *BoardHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	view, err := h.boards.Today(r.Context(), actor)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load today's board")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// ListBoards handles GET /boards?date=YYYY-MM-DD&view=my|all.
func (h *BoardHandler) ListBoards(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	date, err := parseDate("date", query.Get("date"), h.policy.Today())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var all bool
	switch query.Get("view") {
	case "", "my":
	case "all":
		all = true
	default:
		HandleAPIError(w, r, errInvalidView, "")
		return
	}

	boards, err := h.boards.ListBoards(r.Context(), actor, date, all)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list boards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"date":   date,
		"boards": boards,
	})
}

// GetBoardTasks handles GET /boards/{id}/tasks.
func (h *BoardHandler) GetBoardTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	boardID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	view, err := h.boards.GetBoard(r.Context(), actor, boardID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load board")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// CreateTask handles POST /boards/{id}/tasks.
func (h *BoardHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	boardID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req CreateTaskRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	due, err := req.dueTime()
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.boards.CreateTask(r.Context(), actor, boardID, service.NewTaskInput{
		Title:            req.Title,
		Description:      req.Description,
		Priority:         domain.Priority(req.Priority),
		EstimatedMinutes: req.EstimatedMinutes,
		DueTime:          due,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	log.Debug("task created via API", slog.String("task_id", task.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, service.TaskView{Task: task, DisplayStatus: task.DisplayStatus()})
}

// TransitionTask handles PATCH /tasks/{id}/status.
func (h *BoardHandler) TransitionTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req TransitionRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.boards.TransitionTask(r.Context(), actor, taskID, service.TransitionInput{
		Status:        domain.TaskStatus(req.Status),
		ActualMinutes: req.ActualMinutes,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to change task status")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, service.TaskView{Task: task, DisplayStatus: task.DisplayStatus()})
}

// ReorderTask handles POST /tasks/{id}/reorder. Any failure answers 409 with
// refetch set, since the client's optimistic state can no longer be trusted.
func (h *BoardHandler) ReorderTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req ReorderRequest
	if err := decodeAndValidate(r, &req, false); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	boardID, err := uuid.Parse(req.BoardID)
	if err != nil {
		HandleAPIError(w, r, domain.NewValidationError("board_id", "has invalid format"), "")
		return
	}

	change := service.Change{
		TaskID:          taskID,
		ExpectedBoardID: boardID,
		Position:        req.Position,
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		change.Status = &status
	}

	task, err := h.reconciler.ApplyOptimistic(r.Context(), actor, change)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, service.TaskView{Task: task, DisplayStatus: task.DisplayStatus()})
}

// TaskHistory handles GET /tasks/{id}/history.
func (h *BoardHandler) TaskHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	entries, err := h.boards.TaskHistory(r.Context(), actor, taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task history")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{"history": entries})
}

// ClosePast handles POST /boards/close-past. Only elevated actors reach it.
func (h *BoardHandler) ClosePast(w http.ResponseWriter, r *http.Request) {
	var req ClosePastRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	asOf, err := parseDate("date", req.Date, h.policy.Today())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.closer.ClosePast(r.Context(), asOf)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to close boards")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
