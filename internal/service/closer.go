package service

import (
	"context"
	"log/slog"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

// CloseResult reports what a ClosePast call closed.
type CloseResult struct {
	AsOf     civil.Date  `json:"as_of"`
	Closed   int         `json:"closed"`
	BoardIDs []uuid.UUID `json:"board_ids"`
}

// Closer retires boards whose day has passed.
type Closer struct {
	boards store.BoardStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewCloser creates a Closer.
func NewCloser(boards store.BoardStore, c clock.Clock, logger *slog.Logger) *Closer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Closer{
		boards: boards,
		clock:  c,
		logger: logger.With(slog.String("component", "board_closer")),
	}
}

// ClosePast closes every active board dated strictly before asOf.
// Running it again closes nothing new.
func (c *Closer) ClosePast(ctx context.Context, asOf civil.Date) (*CloseResult, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	if !asOf.IsValid() {
		return nil, domain.NewValidationError("as_of", "must be a valid calendar date")
	}

	closed, err := c.boards.CloseActiveBefore(ctx, asOf, c.clock.Now())
	if err != nil {
		log.Error("failed to close past boards",
			slog.String("error", err.Error()),
			slog.String("as_of", asOf.String()))
		return nil, NewServiceError("close_past", "failed to close boards", err)
	}

	result := &CloseResult{AsOf: asOf, Closed: len(closed), BoardIDs: make([]uuid.UUID, 0, len(closed))}
	for _, b := range closed {
		result.BoardIDs = append(result.BoardIDs, b.ID)
	}

	if result.Closed > 0 {
		log.Info("closed past boards",
			slog.String("as_of", asOf.String()),
			slog.Int("closed", result.Closed))
	} else {
		log.Debug("no boards to close", slog.String("as_of", asOf.String()))
	}
	return result, nil
}
