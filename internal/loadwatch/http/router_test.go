package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/jobs"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/metrics"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store/drivers/sqlite"
	"github.com/aussiebroadwan/loadwatch/pkg/cryptox"
	"github.com/aussiebroadwan/loadwatch/pkg/idx"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const jobsToken = "test-jobs-token"

type stubRunner struct {
	gotJob jobs.Job
	gotAt  time.Time
	err    error
}

func (s *stubRunner) Run(ctx context.Context, job jobs.Job, now time.Time) (jobs.Result, error) {
	s.gotJob, s.gotAt = job, now
	if s.err != nil {
		return jobs.Result{}, s.err
	}
	return jobs.Result{Job: job, Slot: "2024-03-13", RunID: idx.New(), Recipients: 3, Delivered: 2, Failed: 1}, nil
}

func newTestRouter(t *testing.T, runner jobs.Runner) *Router {
	t.Helper()

	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	r := NewRouter("test", st, slogx.Discard())
	r.Jobs = runner
	r.JobsTokenFingerprint = cryptox.FingerprintToken(jobsToken)
	r.Metrics = m
	r.Gatherer = reg
	r.Webhook = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Now = func() time.Time { return time.Date(2024, 3, 13, 22, 0, 0, 0, time.UTC) }
	r.ApplyRoutes()
	return r
}

func do(r http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &stubRunner{})

	rec := do(r, http.MethodGet, "/livez", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "ok", body.Checks.Database)
	require.Equal(t, "test", body.Version)
}

func TestReadyzReportsClosedDatabase(t *testing.T) {
	st, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	rec := httptest.NewRecorder()
	ReadyzHandler(time.Now(), "test", st).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobTrigger(t *testing.T) {
	runner := &stubRunner{}
	r := newTestRouter(t, runner)

	t.Run("requires token", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/v1/jobs/reminder/run", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(r, http.MethodPost, "/v1/jobs/reminder/run", "wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("runs job at now", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/v1/jobs/summary/run", jobsToken)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, jobs.JobSummary, runner.gotJob)
		require.Equal(t, r.Now(), runner.gotAt)

		var body JobResultResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "summary", body.Job)
		require.Equal(t, 2, body.Delivered)
		require.Equal(t, 1, body.Failed)
	})

	t.Run("at overrides reference time", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/v1/jobs/acwr/run?at=2024-03-17T22:00:00%2B08:00", jobsToken)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, runner.gotAt.Equal(time.Date(2024, 3, 17, 14, 0, 0, 0, time.UTC)))
	})

	t.Run("bad at", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/v1/jobs/acwr/run?at=yesterday", jobsToken)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/v1/jobs/cleanup/run", jobsToken)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("runner failure", func(t *testing.T) {
		runner.err = errors.New("database locked")
		defer func() { runner.err = nil }()

		rec := do(r, http.MethodPost, "/v1/jobs/missing/run", jobsToken)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestJobTriggerDisabledWithoutToken(t *testing.T) {
	r := newTestRouter(t, &stubRunner{})
	r.Mux = http.NewServeMux()
	r.JobsTokenFingerprint = ""
	r.ApplyRoutes()

	rec := do(r, http.MethodPost, "/v1/jobs/reminder/run", "anything")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookAndMetrics(t *testing.T) {
	r := newTestRouter(t, &stubRunner{})

	rec := do(r, http.MethodPost, "/callback", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/callback", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `loadwatch_http_requests_total{method="POST",route="/callback",status="200"} 1`))
}
