package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/jobs"
	"github.com/aussiebroadwan/loadwatch/pkg/httpx"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
)

type JobResultResponse struct {
	Job        string `json:"job"`
	Slot       string `json:"slot"`
	RunID      string `json:"run_id"`
	Recipients int    `json:"recipients"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
	Skipped    bool   `json:"skipped"`
}

// JobsHandler lets an external scheduler trigger a job run. The optional
// "at" query parameter (RFC 3339) overrides the reference time.
type JobsHandler struct {
	Jobs jobs.Runner
	Now  func() time.Time
}

func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	job, err := jobs.ParseJob(r.PathValue("job"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "unknown_job", err.Error())
		return
	}

	now := h.Now()
	if at := r.URL.Query().Get("at"); at != "" {
		now, err = time.Parse(time.RFC3339, at)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "at must be an RFC 3339 timestamp")
			return
		}
	}

	res, err := h.Jobs.Run(r.Context(), job, now)
	if err != nil {
		log.Error("manual job run failed", slog.String("job", string(job)), slog.Any("error", err))
		code := http.StatusServiceUnavailable
		if errors.Is(err, jobs.ErrUnknownJob) {
			code = http.StatusNotFound
		}
		httpx.WriteError(w, code, "job_failed", err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusOK, JobResultResponse{
		Job:        string(res.Job),
		Slot:       res.Slot,
		RunID:      res.RunID.String(),
		Recipients: res.Recipients,
		Delivered:  res.Delivered,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
	})
}
