package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/migration"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/service"
)

// Migrator runs migrations for every owner with backlog.
type Migrator interface {
	RunAll(ctx context.Context, targetDate civil.Date, force bool) (*migration.Summary, error)
}

// BoardCloser closes boards whose day has passed.
type BoardCloser interface {
	ClosePast(ctx context.Context, asOf civil.Date) (*service.CloseResult, error)
}

// ErrAlreadyStarted is returned by Start on a running loop.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Config holds configuration for the loop
type Config struct {
	// Interval is the period between ticks.
	Interval time.Duration

	// TickTimeout bounds the work done by one tick.
	TickTimeout time.Duration
}

// DefaultConfig returns a Config with the reference ten minute period.
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Minute,
		TickTimeout: 5 * time.Minute,
	}
}

// TickReport describes what one tick did.
type TickReport struct {
	Window    clock.Window
	Migration *migration.Summary
	Closing   *service.CloseResult
	Err       error
}

// Loop is the periodic driver of migrations and board closing.
type Loop struct {
	migrator Migrator
	closer   BoardCloser
	policy   *clock.Policy
	config   Config
	logger   *slog.Logger

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	onTick     func(TickReport)
}

// NewLoop creates a Loop. It does not start ticking until Start is called.
func NewLoop(migrator Migrator, closer BoardCloser, policy *clock.Policy, config Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = defaults.TickTimeout
	}
	return &Loop{
		migrator: migrator,
		closer:   closer,
		policy:   policy,
		config:   config,
		logger:   logger.With(slog.String("component", "scheduler")),
		onTick:   func(TickReport) {},
	}
}

// SetTickHandler registers a function called after every scheduled tick.
// It must be set before Start.
func (l *Loop) SetTickHandler(handler func(TickReport)) {
	l.onTick = handler
}

// Start begins ticking in a background goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelFunc != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), l.logger))
	l.cancelFunc = cancel
	ticker := l.policy.Clock().NewTicker(l.config.Interval)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer ticker.Stop()

		l.logger.Info("scheduler started", slog.Duration("interval", l.config.Interval))
		for {
			select {
			case <-ctx.Done():
				l.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				l.onTick(l.Tick(ctx))
			}
		}
	}()
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancelFunc
	l.cancelFunc = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	l.wg.Wait()
}

// Tick runs one scheduling step at the current instant.
func (l *Loop) Tick(ctx context.Context) TickReport {
	window := l.policy.Classify(l.policy.Now())
	log := logger.FromContextOrDefault(ctx, l.logger).With(
		slog.String("date", window.Date.String()),
		slog.String("local_time", window.Local.Format(time.TimeOnly)),
	)
	log.Debug("scheduler tick",
		slog.Bool("business_window", window.IsBusinessWindow),
		slog.Bool("closing_hour", window.IsClosingHour))

	ctx, cancel := context.WithTimeout(ctx, l.config.TickTimeout)
	defer cancel()

	report := TickReport{Window: window}
	var errs []error

	if window.IsBusinessWindow {
		err := guard(log, "migration", func() error {
			summary, err := l.migrator.RunAll(ctx, window.Date, false)
			report.Migration = summary
			return err
		})
		if err != nil {
			log.Error("scheduled migration failed", slog.String("error", err.Error()))
			errs = append(errs, err)
		} else if report.Migration != nil && report.Migration.MigratedTasks > 0 {
			log.Info("scheduled migration finished",
				slog.String("message", report.Migration.Message()),
				slog.Int("affected_owners", report.Migration.AffectedOwners))
		}
	}

	if window.IsClosingHour {
		err := guard(log, "closing", func() error {
			result, err := l.closer.ClosePast(ctx, window.Date)
			report.Closing = result
			return err
		})
		if err != nil {
			log.Error("scheduled board closing failed", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	report.Err = errors.Join(errs...)
	return report
}

// RunNow runs a forced migration for every owner onto date, ignoring the
// cooldown. A zero date means today.
func (l *Loop) RunNow(ctx context.Context, date civil.Date) (*migration.Summary, error) {
	if date == (civil.Date{}) {
		date = l.policy.Today()
	}
	log := logger.FromContextOrDefault(ctx, l.logger)
	log.Info("forced migration requested", slog.String("date", date.String()))

	var summary *migration.Summary
	err := guard(log, "forced migration", func() error {
		var err error
		summary, err = l.migrator.RunAll(ctx, date, true)
		return err
	})
	return summary, err
}

// guard runs fn and turns a panic into an error so one bad tick cannot take
// the loop down.
func guard(log *slog.Logger, name string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("recovered from panic",
				slog.String("step", name),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%s panicked: %v", name, p)
		}
	}()
	return fn()
}
