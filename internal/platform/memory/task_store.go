package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/store"
)

// TaskStore implements store.TaskStore over a DB.
type TaskStore struct {
	db   *DB
	undo *undoLog
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpTaskCreate, task.ID); err != nil {
		return err
	}
	if _, ok := s.db.st.boards[task.BoardID]; !ok {
		return fmt.Errorf("%w: board with ID %s not found", store.ErrInvalidEntity, task.BoardID)
	}
	if _, exists := s.db.st.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}
	s.db.st.tasks[task.ID] = copyTask(task)
	s.db.nextSeq(task.ID)
	id := task.ID
	s.undo.add(func() {
		delete(s.db.st.tasks, id)
		delete(s.db.st.order, id)
	})
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpTaskGet, id); err != nil {
		return nil, err
	}
	t, ok := s.db.st.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// GetForUpdate implements store.TaskStore.GetForUpdate. Transactions are
// already serialized, so no extra locking is needed.
func (s *TaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.GetByID(ctx, id)
}

// Update implements store.TaskStore.Update.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpTaskUpdate, task.ID); err != nil {
		return err
	}
	existing, ok := s.db.st.tasks[task.ID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if existing.BoardID != task.BoardID {
		return fmt.Errorf("%w: a task cannot move between boards", store.ErrInvalidEntity)
	}
	id := task.ID
	s.db.st.tasks[id] = copyTask(task)
	s.undo.add(func() { s.db.st.tasks[id] = existing })
	return nil
}

// ListByBoard implements store.TaskStore.ListByBoard.
func (s *TaskStore) ListByBoard(ctx context.Context, boardID uuid.UUID) ([]*domain.Task, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpTaskList, boardID); err != nil {
		return nil, err
	}
	var out []*domain.Task
	for _, t := range s.db.st.tasks {
		if t.BoardID == boardID {
			out = append(out, copyTask(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return s.db.st.order[a.ID] < s.db.st.order[b.ID]
	})
	return out, nil
}

// NextPosition implements store.TaskStore.NextPosition.
func (s *TaskStore) NextPosition(ctx context.Context, boardID uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpTaskPosition, boardID); err != nil {
		return 0, err
	}
	next := 0
	for _, t := range s.db.st.tasks {
		if t.BoardID == boardID && t.Position >= next {
			next = t.Position + 1
		}
	}
	return next, nil
}

// AppendHistory implements store.TaskStore.AppendHistory.
func (s *TaskStore) AppendHistory(ctx context.Context, entry *domain.TaskHistoryEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpTaskHistory, entry.TaskID); err != nil {
		return err
	}
	if _, ok := s.db.st.tasks[entry.TaskID]; !ok {
		return fmt.Errorf("%w: task with ID %s not found", store.ErrInvalidEntity, entry.TaskID)
	}
	c := *entry
	s.db.st.history = append(s.db.st.history, &c)
	s.undo.add(func() {
		for i, e := range s.db.st.history {
			if e == &c {
				s.db.st.history = append(s.db.st.history[:i], s.db.st.history[i+1:]...)
				return
			}
		}
	})
	return nil
}

// ListHistory implements store.TaskStore.ListHistory.
func (s *TaskStore) ListHistory(ctx context.Context, taskID uuid.UUID) ([]*domain.TaskHistoryEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.check(ctx, OpTaskHistory, taskID); err != nil {
		return nil, err
	}
	var out []*domain.TaskHistoryEntry
	for _, e := range s.db.st.history {
		if e.TaskID == taskID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
