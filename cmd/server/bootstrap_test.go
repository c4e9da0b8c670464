package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/documenso/documenso-sub011/internal/app"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()

	cfg := &app.Config{}
	cfg.Server.Port = 0
	cfg.Server.BaseURL = "http://localhost:8000"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file::memory:?_foreign_keys=1"
	cfg.Auth.Session.Secret = "bootstrap-test-secret-bootstrap-test"
	cfg.Auth.Session.Issuer = "signer-test"
	cfg.Auth.Session.TTL = time.Hour
	return cfg
}

func TestBootstrapRuntimeWiresStack(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.SessionSvc)
	require.NotNil(t, stack.AuditSvc)
	require.NotNil(t, stack.Router)
	require.Nil(t, stack.Reminders)
}

func TestBootstrapRuntimeStartsReminders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Signing.Reminders.Enabled = true
	cfg.Signing.Reminders.Schedule = "@hourly"
	cfg.Signing.Reminders.Interval = 24 * time.Hour

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Reminders)
}

func TestEnsureSecretsPresent(t *testing.T) {
	require.Error(t, ensureSecretsPresent(nil))

	cfg := &app.Config{}
	require.Error(t, ensureSecretsPresent(cfg))

	cfg.Auth.Session.Secret = "  configured-secret  "
	require.NoError(t, ensureSecretsPresent(cfg))
	require.Equal(t, "configured-secret", cfg.Auth.Session.Secret)
}
