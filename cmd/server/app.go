package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/dayboard/internal/clock"
	"github.com/phrazzld/dayboard/internal/config"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/ledger"
	"github.com/phrazzld/dayboard/internal/migration"
	"github.com/phrazzld/dayboard/internal/platform/memory"
	"github.com/phrazzld/dayboard/internal/platform/postgres"
	redisledger "github.com/phrazzld/dayboard/internal/platform/redis"
	"github.com/phrazzld/dayboard/internal/scheduler"
	"github.com/phrazzld/dayboard/internal/service"
	"github.com/phrazzld/dayboard/internal/service/auth"
	"github.com/phrazzld/dayboard/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Connections, nil when no configured backend needs them
	db    *sql.DB
	redis *goredis.Client

	policy     *clock.Policy
	jwtService auth.JWTService

	boards     service.BoardService
	reconciler *service.Reconciler
	closer     *service.Closer
	executor   *migration.Executor
	scheduler  *scheduler.Loop
}

// newApplication creates a new application instance with all dependencies
// initialized. Connections opened along the way are released when
// initialization fails.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	if err := app.init(ctx); err != nil {
		app.cleanup()
		return nil, err
	}
	return app, nil
}

func (app *application) init(ctx context.Context) error {
	cfg, logger := app.config, app.logger

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.policy, err = clock.NewPolicy(clock.Real(), clock.PolicyConfig{
		TimeZone:          cfg.Schedule.TimeZone,
		BusinessStartHour: cfg.Schedule.BusinessStartHour,
		BusinessEndHour:   cfg.Schedule.BusinessEndHour,
		ClosingHour:       cfg.Schedule.ClosingHour,
	})
	if err != nil {
		return fmt.Errorf("failed to build time policy: %w", err)
	}

	if cfg.NeedsDatabase() {
		app.db, err = setupAppDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
	}

	tx, boards, tasks, err := app.setupStores()
	if err != nil {
		return err
	}
	runLedger, err := app.setupLedger(ctx)
	if err != nil {
		return err
	}

	machine := domain.NewTaskStateMachine(cfg.Migration.AllowRevival)
	app.boards, err = service.NewBoardService(tx, boards, tasks, app.policy, machine, logger)
	if err != nil {
		return fmt.Errorf("failed to create board service: %w", err)
	}
	app.reconciler = service.NewReconciler(tx, machine, app.policy.Clock(), logger)
	app.closer = service.NewCloser(boards, app.policy.Clock(), logger)

	app.executor = migration.NewExecutor(tx, boards, tasks, runLedger, app.policy.Clock(), migration.ExecutorConfig{
		Cooldown: cfg.Schedule.Cooldown,
		Retry: migration.RetryPolicy{
			MaxRetries:     cfg.Schedule.MaxRetries,
			Delay:          cfg.Schedule.RetryDelay,
			AttemptTimeout: cfg.Schedule.AttemptTimeout,
		},
		OwnerConcurrency: cfg.Schedule.OwnerConcurrency,
	}, logger)

	loopCfg := scheduler.DefaultConfig()
	loopCfg.Interval = cfg.Schedule.TickInterval
	app.scheduler = scheduler.NewLoop(app.executor, app.closer, app.policy, loopCfg, logger)

	logger.Info("application initialized",
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("ledger_backend", cfg.Ledger.Backend),
		slog.String("time_zone", app.policy.Location().String()),
		slog.Bool("allow_revival", cfg.Migration.AllowRevival))
	return nil
}

func (app *application) setupStores() (store.Transactor, store.BoardStore, store.TaskStore, error) {
	switch app.config.Store.Backend {
	case config.BackendPostgres:
		t := postgres.NewTransactor(app.db, app.logger)
		return t, t.Boards(), t.Tasks(), nil
	case config.BackendMemory:
		app.logger.Warn("using the in-memory store, data is lost on restart")
		m := memory.New(app.logger)
		return m, m.Boards(), m.Tasks(), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", app.config.Store.Backend)
	}
}

func (app *application) setupLedger(ctx context.Context) (ledger.Ledger, error) {
	switch app.config.Ledger.Backend {
	case config.BackendPostgres:
		return postgres.NewPostgresLedger(app.db, app.logger), nil
	case config.BackendRedis:
		client, err := redisledger.Connect(ctx, app.config.Ledger.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis ledger: %w", err)
		}
		app.redis = client
		return redisledger.NewLedger(client, app.logger), nil
	case config.BackendMemory:
		return ledger.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", app.config.Ledger.Backend)
	}
}

// Run serves HTTP until ctx is cancelled, with the scheduler loop running
// alongside when enabled.
func (app *application) Run(ctx context.Context) error {
	if app.config.Schedule.Enabled {
		if err := app.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		app.logger.Info("scheduler started",
			slog.Duration("interval", app.config.Schedule.TickInterval))
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", slog.String("error", err.Error()))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}
	app.logger.Debug("application resources released")
}
