package api

import (
	"context"
	"log/slog"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/api/shared"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/migration"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/redact"
	"github.com/phrazzld/dayboard/internal/service"
)

// MigrationRunner runs migrations. *migration.Executor satisfies it.
type MigrationRunner interface {
	Execute(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date) (*migration.Result, error)
	Force(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date) (*migration.Result, error)
	RunAll(ctx context.Context, targetDate civil.Date, force bool) (*migration.Summary, error)
}

// MigrationPreviewer lists pending migrations. *migration.Planner satisfies it.
type MigrationPreviewer interface {
	Preview(ctx context.Context, ownerID uuid.UUID, targetDate civil.Date) ([]migration.PendingMigration, error)
	PreviewAll(ctx context.Context, targetDate civil.Date) ([]migration.PendingMigration, error)
}

// MigrationHandler handles the migration trigger surface.
type MigrationHandler struct {
	runner  MigrationRunner
	preview MigrationPreviewer
	policy  *clock.Policy
	logger  *slog.Logger
}

// NewMigrationHandler creates a new MigrationHandler.
func NewMigrationHandler(
	runner MigrationRunner,
	preview MigrationPreviewer,
	policy *clock.Policy,
	logger *slog.Logger,
) *MigrationHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for MigrationHandler")
	}
	return &MigrationHandler{
		runner:  runner,
		preview: preview,
		policy:  policy,
		logger:  logger.With(slog.String("component", "migration_handler")),
	}
}

// Check handles POST /migrations/check: migrate the caller's backlog onto
// today's board unless a run was recorded within the cooldown.
func (h *MigrationHandler) Check(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	result, err := h.runner.Execute(r.Context(), actor.ID, h.policy.Today())
	if result != nil {
		log.Debug("migration check finished",
			slog.Bool("success", result.Success),
			slog.Bool("skipped", result.Skipped),
			slog.Int("migrated", result.MigratedTasks))
	}
	respondWithResult(w, r, result, err)
}

// respondWithResult writes an owner run's result. A failed run still reports
// its partial counts, under the status its error maps to.
func respondWithResult(w http.ResponseWriter, r *http.Request, result *migration.Result, err error) {
	if result == nil {
		HandleAPIError(w, r, err, migration.MessageFailed)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = MapErrorToStatusCode(err)
		logger.FromContext(r.Context()).Warn("migration run failed",
			slog.String("error", redact.Error(err)),
			slog.Int("status_code", status))
	}
	redactFailures(result.Errors)
	shared.RespondWithJSON(w, r, status, MigrationCheckResponse{
		Result:  result,
		Message: result.Message(),
		Notify:  result.ShouldNotify(),
	})
}

// redactFailures scrubs failure messages before they leave the process.
func redactFailures(failures []migration.Failure) {
	for i := range failures {
		failures[i].Message = redact.String(failures[i].Message)
	}
}

// Run handles POST /migrations/run: a forced run bypassing the cooldown, for
// one owner when owner_id is given and for every owner otherwise.
// Only elevated actors reach it.
func (h *MigrationHandler) Run(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RunMigrationRequest
	if err := decodeAndValidate(r, &req, true); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	date, err := parseDate("date", req.Date, h.policy.Today())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if req.OwnerID != "" {
		owner, err := uuid.Parse(req.OwnerID)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		result, err := h.runner.Force(r.Context(), owner, date)
		respondWithResult(w, r, result, err)
		return
	}

	summary, err := h.runner.RunAll(r.Context(), date, true)
	if err != nil {
		HandleAPIError(w, r, err, migration.MessageFailed)
		return
	}
	log.Info("forced migration finished",
		slog.String("date", date.String()),
		slog.Int("migrated", summary.MigratedTasks),
		slog.Int("affected_owners", summary.AffectedOwners))
	redactFailures(summary.Errors)
	for _, res := range summary.Results {
		redactFailures(res.Errors)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, MigrationRunResponse{Summary: summary, Message: summary.Message()})
}

// Pending handles GET /migrations/pending?view=my|all.
func (h *MigrationHandler) Pending(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	today := h.policy.Today()

	var (
		pending []migration.PendingMigration
		err     error
	)
	switch r.URL.Query().Get("view") {
	case "", "my":
		pending, err = h.preview.Preview(r.Context(), actor.ID, today)
	case "all":
		if !actor.Elevated {
			HandleAPIError(w, r, service.ErrElevationRequired, "")
			return
		}
		pending, err = h.preview.PreviewAll(r.Context(), today)
	default:
		HandleAPIError(w, r, errInvalidView, "")
		return
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list pending migrations")
		return
	}
	if pending == nil {
		pending = []migration.PendingMigration{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, PendingMigrationsResponse{TargetDate: today, Pending: pending})
}
