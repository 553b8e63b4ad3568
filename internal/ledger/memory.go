package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Ledger. It is only correct for a single replica.
type Memory struct {
	mu      sync.Mutex
	entries map[Key]memoryEntry
}

type memoryEntry struct {
	lastRun  time.Time
	recorded bool
}

var _ Ledger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]memoryEntry)}
}

// Claim implements Ledger.
func (m *Memory) Claim(ctx context.Context, key Key, now time.Time, cooldown time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && now.Sub(e.lastRun) < cooldown {
		return false, nil
	}
	m.entries[key] = memoryEntry{lastRun: now}
	return true, nil
}

// Record implements Ledger.
func (m *Memory) Record(ctx context.Context, key Key, at time.Time, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{lastRun: at, recorded: true}
	return nil
}

// Release implements Ledger.
func (m *Memory) Release(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !e.recorded {
		delete(m.entries, key)
	}
	return nil
}

// LastRun implements Ledger. Reservations that were never recorded are not reported.
func (m *Memory) LastRun(ctx context.Context, key Key) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !e.recorded {
		return time.Time{}, false, nil
	}
	return e.lastRun, true, nil
}
