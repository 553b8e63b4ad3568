package domain

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()
	boardID, creator := uuid.New(), uuid.New()

	task, err := NewTask(boardID, creator, "  Review report ", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Review report", task.Title)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.Equal(t, creator, task.CreatedBy)

	_, err = NewTask(boardID, creator, "   ", time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewTask(uuid.Nil, creator, "x", time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()
	negative := -5
	badTime := civil.Time{Hour: 25}

	tests := []struct {
		name   string
		mutate func(*Task)
		want   error
	}{
		{"valid", func(*Task) {}, nil},
		{"migrated is not storable", func(tk *Task) { tk.Status = TaskStatusMigrated }, ErrInvalidTaskStatus},
		{"unknown priority", func(tk *Task) { tk.Priority = "whenever" }, ErrInvalidPriority},
		{"negative estimate", func(tk *Task) { tk.EstimatedMinutes = &negative }, ErrValidation},
		{"negative position", func(tk *Task) { tk.Position = -1 }, ErrValidation},
		{"invalid due time", func(tk *Task) { tk.DueTime = &badTime }, ErrValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task, err := NewTask(uuid.New(), uuid.New(), "task", time.Now())
			require.NoError(t, err)
			tc.mutate(task)
			if tc.want == nil {
				assert.NoError(t, task.Validate())
				return
			}
			assert.ErrorIs(t, task.Validate(), tc.want)
		})
	}
}

func TestCloneAndMarkMigrated(t *testing.T) {
	t.Parallel()
	owner := uuid.New()
	yesterday := civil.Date{Year: 2025, Month: 3, Day: 4}
	today := yesterday.AddDays(1)
	now := time.Date(2025, 3, 5, 13, 0, 0, 0, time.UTC)

	source, err := NewBoard(owner, yesterday, now.Add(-24*time.Hour))
	require.NoError(t, err)
	target, err := NewBoard(owner, today, now)
	require.NoError(t, err)

	estimate := 30
	due := civil.Time{Hour: 17, Minute: 30}
	original, err := NewTask(source.ID, owner, "Review report", now.Add(-24*time.Hour))
	require.NoError(t, err)
	original.Status = TaskStatusInProgress
	original.Priority = PriorityHigh
	original.EstimatedMinutes = &estimate
	original.DueTime = &due

	clone := original.CloneForMigration(source, target, 7, now)
	original.MarkMigrated(target, now)

	assert.NotEqual(t, original.ID, clone.ID)
	assert.Equal(t, target.ID, clone.BoardID)
	assert.Equal(t, 7, clone.Position)
	assert.Equal(t, TaskStatusInProgress, clone.Status)
	assert.Equal(t, PriorityHigh, clone.Priority)
	assert.Equal(t, estimate, *clone.EstimatedMinutes)
	assert.Equal(t, due, *clone.DueTime)
	assert.Nil(t, clone.ToBoardID)

	// Lineage conservation: each side points at the other.
	require.NotNil(t, clone.FromBoardID)
	require.NotNil(t, original.ToBoardID)
	assert.Equal(t, source.ID, *clone.FromBoardID)
	assert.Equal(t, yesterday, *clone.FromDate)
	assert.Equal(t, target.ID, *original.ToBoardID)
	assert.Equal(t, today, *original.ToDate)
	assert.Equal(t, original.BoardID, *clone.FromBoardID)

	assert.Equal(t, TaskStatusCancelled, original.Status)
	assert.True(t, original.IsMigratedAway())
	assert.Equal(t, TaskStatusMigrated, original.DisplayStatus())
	assert.Equal(t, TaskStatusInProgress, clone.DisplayStatus())
	assert.False(t, original.IsActionable())
	assert.True(t, clone.IsActionable())

	// The clone owns its own copies of pointer fields.
	*clone.EstimatedMinutes = 99
	assert.Equal(t, 30, *original.EstimatedMinutes)
}

func TestDisplayStatus_UserCancelled(t *testing.T) {
	t.Parallel()
	task, err := NewTask(uuid.New(), uuid.New(), "x", time.Now())
	require.NoError(t, err)
	task.Status = TaskStatusCancelled
	assert.Equal(t, TaskStatusCancelled, task.DisplayStatus())
	assert.False(t, task.IsMigratedAway())
}

func TestNewHistoryEntry(t *testing.T) {
	t.Parallel()
	taskID := uuid.New()
	prev := TaskStatusPending
	at := time.Now()

	user := Actor{ID: uuid.New(), Role: RoleUser}
	entry := NewHistoryEntry(taskID, &prev, TaskStatusInProgress, user, at, "")
	require.NotNil(t, entry.PreviousStatus)
	assert.Equal(t, TaskStatusPending, *entry.PreviousStatus)
	require.NotNil(t, entry.ChangedBy)
	assert.Equal(t, user.ID, *entry.ChangedBy)

	system := NewHistoryEntry(taskID, nil, TaskStatusPending, SystemActor(), at, "migrated")
	assert.Nil(t, system.PreviousStatus)
	assert.Nil(t, system.ChangedBy)
	assert.Equal(t, "migrated", system.Notes)
}
