package memory

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/store"
)

// BoardStore implements store.BoardStore over a DB.
type BoardStore struct {
	db   *DB
	undo *undoLog
}

var _ store.BoardStore = (*BoardStore)(nil)

// Create implements store.BoardStore.Create.
func (s *BoardStore) Create(ctx context.Context, board *domain.Board) error {
	if err := board.Validate(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardCreate, board.ID); err != nil {
		return err
	}
	return s.insertLocked(board)
}

func (s *BoardStore) insertLocked(board *domain.Board) error {
	if _, exists := s.db.st.boards[board.ID]; exists {
		return fmt.Errorf("%w: board %s", store.ErrDuplicate, board.ID)
	}
	s.db.st.boards[board.ID] = copyBoard(board)
	s.db.nextSeq(board.ID)
	id := board.ID
	s.undo.add(func() {
		delete(s.db.st.boards, id)
		delete(s.db.st.order, id)
	})
	return nil
}

// GetByID implements store.BoardStore.GetByID.
func (s *BoardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Board, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardGet, id); err != nil {
		return nil, err
	}
	b, ok := s.db.st.boards[id]
	if !ok {
		return nil, store.ErrBoardNotFound
	}
	return copyBoard(b), nil
}

// GetCanonical implements store.BoardStore.GetCanonical.
func (s *BoardStore) GetCanonical(ctx context.Context, ownerID uuid.UUID, date civil.Date) (*domain.Board, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardGet, ownerID); err != nil {
		return nil, err
	}
	b := s.canonicalLocked(ownerID, date)
	if b == nil {
		return nil, store.ErrBoardNotFound
	}
	return copyBoard(b), nil
}

func (s *BoardStore) canonicalLocked(ownerID uuid.UUID, date civil.Date) *domain.Board {
	var matches []*domain.Board
	for _, b := range s.db.st.boards {
		if b.OwnerID == ownerID && b.Date == date {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	s.db.sortBoards(matches)
	return matches[len(matches)-1]
}

// EnsureForDate implements store.BoardStore.EnsureForDate.
// The lookup and insert happen under one lock, so concurrent callers agree.
func (s *BoardStore) EnsureForDate(ctx context.Context, candidate *domain.Board) (*domain.Board, bool, error) {
	if err := candidate.Validate(); err != nil {
		return nil, false, err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardEnsure, candidate.OwnerID); err != nil {
		return nil, false, err
	}
	if existing := s.canonicalLocked(candidate.OwnerID, candidate.Date); existing != nil {
		return copyBoard(existing), false, nil
	}
	if err := s.insertLocked(candidate); err != nil {
		return nil, false, err
	}
	return copyBoard(candidate), true, nil
}

// ListByDate implements store.BoardStore.ListByDate.
func (s *BoardStore) ListByDate(ctx context.Context, date civil.Date, ownerID *uuid.UUID) ([]*domain.Board, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardList, uuid.Nil); err != nil {
		return nil, err
	}
	var out []*domain.Board
	for _, b := range s.db.st.boards {
		if b.Date != date {
			continue
		}
		if ownerID != nil && b.OwnerID != *ownerID {
			continue
		}
		out = append(out, b)
	}
	s.db.sortBoards(out)
	return copyBoards(out), nil
}

// ListWithBacklogBefore implements store.BoardStore.ListWithBacklogBefore.
func (s *BoardStore) ListWithBacklogBefore(ctx context.Context, ownerID uuid.UUID, before civil.Date) ([]*domain.Board, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardListBacklog, ownerID); err != nil {
		return nil, err
	}
	withBacklog := s.boardsWithBacklogLocked()
	var out []*domain.Board
	for _, b := range s.db.st.boards {
		if b.OwnerID == ownerID && b.Date.Before(before) && withBacklog[b.ID] {
			out = append(out, b)
		}
	}
	s.db.sortBoards(out)
	return copyBoards(out), nil
}

// ListOwnersWithBacklog implements store.BoardStore.ListOwnersWithBacklog.
func (s *BoardStore) ListOwnersWithBacklog(ctx context.Context, before civil.Date) ([]uuid.UUID, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardOwners, uuid.Nil); err != nil {
		return nil, err
	}
	withBacklog := s.boardsWithBacklogLocked()
	seen := make(map[uuid.UUID]bool)
	var owners []uuid.UUID
	var candidates []*domain.Board
	for _, b := range s.db.st.boards {
		if b.Date.Before(before) && withBacklog[b.ID] {
			candidates = append(candidates, b)
		}
	}
	s.db.sortBoards(candidates)
	for _, b := range candidates {
		if !seen[b.OwnerID] {
			seen[b.OwnerID] = true
			owners = append(owners, b.OwnerID)
		}
	}
	return owners, nil
}

func (s *BoardStore) boardsWithBacklogLocked() map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	for _, t := range s.db.st.tasks {
		if t.IsActionable() {
			out[t.BoardID] = true
		}
	}
	return out
}

// CloseActiveBefore implements store.BoardStore.CloseActiveBefore.
func (s *BoardStore) CloseActiveBefore(ctx context.Context, before civil.Date, at time.Time) ([]*domain.Board, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpBoardClose, uuid.Nil); err != nil {
		return nil, err
	}
	var closed []*domain.Board
	for id, b := range s.db.st.boards {
		if !b.Date.Before(before) {
			continue
		}
		prior := copyBoard(b)
		if b.Close(at) {
			closed = append(closed, b)
			s.undo.add(func() { s.db.st.boards[id] = prior })
		}
	}
	s.db.sortBoards(closed)
	return copyBoards(closed), nil
}

func copyBoards(in []*domain.Board) []*domain.Board {
	out := make([]*domain.Board, len(in))
	for i, b := range in {
		out[i] = copyBoard(b)
	}
	return out
}
