package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/conversation"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/jobs"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := validConfig()
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "loadwatch.db")
	cfg.LogLevel = "error"
	cfg.JobsToken = "jobs-secret"
	cfg.Schedule.Enabled = false
	return cfg
}

func TestNew_WiresEverything(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown() })

	require.Nil(t, app.scheduler)
	require.Nil(t, app.webhook, "no webhook without the line transport")
	require.IsType(t, &jobs.MemoryGuard{}, app.orchestrator.Guard)

	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Conversation path end to end through the real store.
	ctx := context.Background()
	reply := app.conversation.Handle(ctx, conversation.Message{UserID: "U1", Token: "t", Text: "1111"})
	require.Contains(t, reply.Text, "player")

	reply = app.conversation.Handle(ctx, conversation.Message{UserID: "U1", Token: "t", Text: "7 60"})
	require.Contains(t, reply.Text, "420")

	// Manual job trigger with the configured bearer token.
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/reminder/run", nil)
	req.Header.Set("Authorization", "Bearer jobs-secret")
	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "loadwatch_messages_total"))
}

func TestNew_RedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()
	cfg.Schedule.Enabled = true

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown() })

	require.IsType(t, &jobs.RedisGuard{}, app.orchestrator.Guard)
	require.NotNil(t, app.scheduler)
	require.Len(t, app.scheduler.Entries(), 4)
}

func TestNew_UnreachableRedisFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown() })

	require.IsType(t, &jobs.MemoryGuard{}, app.orchestrator.Guard)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport = "line"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Migrate(cfg))
	require.NoError(t, Migrate(cfg), "migrations are idempotent")
}

func TestLogMessenger(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.messenger.Push(ctx, "U1", "hello"))
	require.NoError(t, app.messenger.ReplyTo(ctx, "t", conversation.Reply{Text: "hi"}))
}
