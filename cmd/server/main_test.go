package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/dayboard/internal/config"
	"github.com/phrazzld/dayboard/internal/domain"
	"github.com/phrazzld/dayboard/internal/platform/logger"
	"github.com/phrazzld/dayboard/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "cmd-test-secret-with-at-least-32-chars"

func memoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug", ShutdownTimeout: time.Second},
		Store:  config.StoreConfig{Backend: config.BackendMemory},
		Ledger: config.LedgerConfig{Backend: config.BackendMemory},
		Auth:   config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60, ElevatedRoles: []string{"admin"}},
		Schedule: config.ScheduleConfig{
			TimeZone:          "America/Lima",
			BusinessStartHour: 7,
			BusinessEndHour:   23,
			ClosingHour:       23,
			TickInterval:      time.Minute,
			Cooldown:          time.Hour,
			AttemptTimeout:    time.Second,
			OwnerConcurrency:  2,
		},
	}
}

func writeConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  log_level: error
store:
  backend: memory
ledger:
  backend: memory
auth:
  jwt_secret: ` + testSecret + `
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewApplication_MemoryBackends(t *testing.T) {
	log, _ := logger.NewTestLogger()
	app, err := newApplication(context.Background(), memoryConfig(), log)
	require.NoError(t, err)
	defer app.cleanup()

	assert.Nil(t, app.db)
	assert.Nil(t, app.redis)
	assert.NotNil(t, app.executor)
	assert.NotNil(t, app.scheduler)
}

func TestNewApplication_RejectsBadConfig(t *testing.T) {
	log, _ := logger.NewTestLogger()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"short secret", func(c *config.Config) { c.Auth.JWTSecret = "short" }},
		{"unknown zone", func(c *config.Config) { c.Schedule.TimeZone = "Mars/Olympus" }},
		{"unknown store", func(c *config.Config) { c.Store.Backend = "sqlite" }},
		{"unknown ledger", func(c *config.Config) { c.Ledger.Backend = "etcd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(cfg)
			app, err := newApplication(context.Background(), cfg, log)
			assert.Error(t, err)
			assert.Nil(t, app)
		})
	}
}

func TestRouter(t *testing.T) {
	log, _ := logger.NewTestLogger()
	app, err := newApplication(context.Background(), memoryConfig(), log)
	require.NoError(t, err)
	defer app.cleanup()
	router := app.setupRouter()

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("api requires a token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boards/today", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("today's board", func(t *testing.T) {
		token, err := app.jwtService.GenerateToken(context.Background(), auth.Identity{
			UserID: uuid.New(),
			Role:   domain.RoleUser,
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/boards/today", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
	})
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	log, _ := logger.NewTestLogger()
	cfg := memoryConfig()
	cfg.Server.Port = 0
	cfg.Schedule.Enabled = true
	app, err := newApplication(context.Background(), cfg, log)
	require.NoError(t, err)
	defer app.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestTokenCommand(t *testing.T) {
	path := writeConfigFile(t)
	user, company := uuid.New(), uuid.New()

	out, err := runCLI(t, "--config", path, "token",
		"--user", user.String(), "--role", "supervisor", "--company", company.String())
	require.NoError(t, err, out)

	jwtService, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)
	claims, err := jwtService.ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, user, claims.UserID)
	assert.Equal(t, domain.RoleSupervisor, claims.Role)
	require.NotNil(t, claims.CompanyID)
	assert.Equal(t, company, *claims.CompanyID)

	_, err = runCLI(t, "--config", path, "token", "--user", "nope")
	assert.ErrorContains(t, err, "invalid --user")

	_, err = runCLI(t, "--config", path, "token")
	assert.Error(t, err)
}

func TestRunMigrationCommand(t *testing.T) {
	path := writeConfigFile(t)

	out, err := runCLI(t, "--config", path, "run-migration", "--date", "2025-03-05")
	require.NoError(t, err, out)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary), out)
	assert.Equal(t, "2025-03-05", summary["targetDate"])
	assert.Equal(t, float64(0), summary["migratedTasks"])

	out, err = runCLI(t, "--config", path, "run-migration", "--owner", uuid.NewString(), "--date", "2025-03-05")
	require.NoError(t, err, out)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, true, result["success"])

	_, err = runCLI(t, "--config", path, "run-migration", "--date", "05/03/2025")
	assert.ErrorContains(t, err, "invalid --date")
}

func TestCloseBoardsCommand(t *testing.T) {
	path := writeConfigFile(t)

	out, err := runCLI(t, "--config", path, "close-boards", "--date", "2025-03-05")
	require.NoError(t, err, out)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result), out)
	assert.Equal(t, "2025-03-05", result["as_of"])
	assert.Equal(t, float64(0), result["closed"])
}

func TestMigrateCommand(t *testing.T) {
	path := writeConfigFile(t)

	_, err := runCLI(t, "--config", path, "migrate", "sideways")
	assert.Error(t, err)

	_, err = runCLI(t, "--config", path, "migrate", "up")
	assert.ErrorContains(t, err, "database.url is required")
}
