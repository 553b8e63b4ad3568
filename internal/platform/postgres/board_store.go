package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/store"
)

const boardColumns = `id, owner_id, company_id, board_date, title, description,
	status, closed_at, created_at, updated_at`

// backlogCondition matches boards still holding pending or in-progress tasks.
const backlogCondition = `EXISTS (
	SELECT 1 FROM tasks t
	WHERE t.board_id = b.id AND t.status IN ('pending', 'in_progress')
)`

// PostgresBoardStore implements the store.BoardStore interface
// using a PostgreSQL database as the storage backend.
type PostgresBoardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresBoardStore creates a new PostgreSQL implementation of the BoardStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresBoardStore(db store.DBTX, logger *slog.Logger) *PostgresBoardStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBoardStore{
		db:     db,
		logger: logger.With(slog.String("component", "board_store")),
	}
}

// Ensure PostgresBoardStore implements store.BoardStore interface
var _ store.BoardStore = (*PostgresBoardStore)(nil)

// WithTx returns a store bound to the given transaction.
func (s *PostgresBoardStore) WithTx(tx *sql.Tx) *PostgresBoardStore {
	return &PostgresBoardStore{db: tx, logger: s.logger}
}

// Create implements store.BoardStore.Create
func (s *PostgresBoardStore) Create(ctx context.Context, board *domain.Board) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := board.Validate(); err != nil {
		log.Warn("board validation failed during create",
			slog.String("error", err.Error()),
			slog.String("board_id", board.ID.String()))
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (`+boardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		board.ID,
		board.OwnerID,
		nullUUIDArg(board.CompanyID),
		dateArg(board.Date),
		board.Title,
		board.Description,
		string(board.Status),
		nullTimeArg(board.ClosedAt),
		board.CreatedAt.UTC(),
		board.UpdatedAt.UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return MapUniqueViolation(err, "board", "", nil)
		}
		log.Error("failed to insert board",
			slog.String("error", err.Error()),
			slog.String("board_id", board.ID.String()))
		return MapError(err)
	}

	log.Debug("board created",
		slog.String("board_id", board.ID.String()),
		slog.String("owner_id", board.OwnerID.String()),
		slog.String("date", board.Date.String()))
	return nil
}

// GetByID implements store.BoardStore.GetByID
func (s *PostgresBoardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE id = $1`, id)
	board, err := scanBoard(row)
	if err != nil {
		return nil, s.notFound(err, store.ErrBoardNotFound)
	}
	return board, nil
}

// GetCanonical implements store.BoardStore.GetCanonical
func (s *PostgresBoardStore) GetCanonical(
	ctx context.Context,
	ownerID uuid.UUID,
	date civil.Date,
) (*domain.Board, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+boardColumns+`
		FROM boards
		WHERE owner_id = $1 AND board_date = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		ownerID, dateArg(date))
	board, err := scanBoard(row)
	if err != nil {
		return nil, s.notFound(err, store.ErrBoardNotFound)
	}
	return board, nil
}

// EnsureForDate implements store.BoardStore.EnsureForDate
// A transaction-scoped advisory lock on the owner and date serializes the
// lookup and the insert across connections and replicas.
func (s *PostgresBoardStore) EnsureForDate(
	ctx context.Context,
	candidate *domain.Board,
) (*domain.Board, bool, error) {
	if err := candidate.Validate(); err != nil {
		return nil, false, err
	}

	if db, ok := s.db.(*sql.DB); ok {
		var (
			board   *domain.Board
			created bool
		)
		err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			board, created, err = s.WithTx(tx).ensureLocked(ctx, candidate)
			return err
		})
		if err != nil {
			return nil, false, MapError(err)
		}
		return board, created, nil
	}
	return s.ensureLocked(ctx, candidate)
}

func (s *PostgresBoardStore) ensureLocked(
	ctx context.Context,
	candidate *domain.Board,
) (*domain.Board, bool, error) {
	lockKey := fmt.Sprintf("%s:%s", candidate.OwnerID, candidate.Date)
	if _, err := s.db.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, false, MapError(err)
	}

	existing, err := s.GetCanonical(ctx, candidate.OwnerID, candidate.Date)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, err
	}

	if err := s.Create(ctx, candidate); err != nil {
		return nil, false, err
	}
	created := *candidate
	return &created, true, nil
}

// ListByDate implements store.BoardStore.ListByDate
func (s *PostgresBoardStore) ListByDate(
	ctx context.Context,
	date civil.Date,
	ownerID *uuid.UUID,
) ([]*domain.Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+boardColumns+`
		FROM boards
		WHERE board_date = $1 AND ($2::uuid IS NULL OR owner_id = $2)
		ORDER BY created_at, id`,
		dateArg(date), nullUUIDArg(ownerID))
	if err != nil {
		return nil, MapError(err)
	}
	return collectBoards(rows)
}

// ListWithBacklogBefore implements store.BoardStore.ListWithBacklogBefore
func (s *PostgresBoardStore) ListWithBacklogBefore(
	ctx context.Context,
	ownerID uuid.UUID,
	before civil.Date,
) ([]*domain.Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+boardColumns+`
		FROM boards b
		WHERE b.owner_id = $1 AND b.board_date < $2 AND `+backlogCondition+`
		ORDER BY b.board_date, b.created_at, b.id`,
		ownerID, dateArg(before))
	if err != nil {
		return nil, MapError(err)
	}
	return collectBoards(rows)
}

// ListOwnersWithBacklog implements store.BoardStore.ListOwnersWithBacklog
func (s *PostgresBoardStore) ListOwnersWithBacklog(ctx context.Context, before civil.Date) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.owner_id
		FROM boards b
		WHERE b.board_date < $1 AND `+backlogCondition+`
		GROUP BY b.owner_id
		ORDER BY MIN(b.board_date), b.owner_id`,
		dateArg(before))
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var owners []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return owners, nil
}

// CloseActiveBefore implements store.BoardStore.CloseActiveBefore
func (s *PostgresBoardStore) CloseActiveBefore(
	ctx context.Context,
	before civil.Date,
	at time.Time,
) ([]*domain.Board, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE boards
		SET status = 'closed', closed_at = $2, updated_at = $2
		WHERE status = 'active' AND board_date < $1
		RETURNING `+boardColumns,
		dateArg(before), at.UTC())
	if err != nil {
		log.Error("failed to close past boards",
			slog.String("error", err.Error()),
			slog.String("before", before.String()))
		return nil, MapError(err)
	}
	closed, err := collectBoards(rows)
	if err != nil {
		return nil, err
	}
	sortBoardsByDate(closed)
	return closed, nil
}

func (s *PostgresBoardStore) notFound(err error, specific error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return specific
	}
	return MapError(err)
}

func scanBoard(row rowScanner) (*domain.Board, error) {
	var (
		b         domain.Board
		companyID uuid.NullUUID
		date      time.Time
		status    string
		closedAt  sql.NullTime
	)
	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&companyID,
		&date,
		&b.Title,
		&b.Description,
		&status,
		&closedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.CompanyID = uuidPtr(companyID)
	b.Date = civil.DateOf(date)
	b.Status = domain.BoardStatus(status)
	b.ClosedAt = timePtr(closedAt)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func collectBoards(rows *sql.Rows) ([]*domain.Board, error) {
	defer func() { _ = rows.Close() }()

	var boards []*domain.Board
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, MapError(err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return boards, nil
}

// sortBoardsByDate orders boards returned by UPDATE ... RETURNING, which has no ORDER BY.
func sortBoardsByDate(boards []*domain.Board) {
	sort.SliceStable(boards, func(i, j int) bool {
		if boards[i].Date != boards[j].Date {
			return boards[i].Date.Before(boards[j].Date)
		}
		return boards[i].CreatedAt.Before(boards[j].CreatedAt)
	})
}
