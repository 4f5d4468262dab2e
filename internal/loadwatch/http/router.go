package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/jobs"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/metrics"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store"
	"github.com/aussiebroadwan/loadwatch/pkg/httpx"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	// Webhook receives platform callbacks on POST /callback. Nil disables it.
	Webhook      http.Handler
	WebhookLimit httpx.RateLimitConfig

	// Jobs and JobsTokenFingerprint enable POST /v1/jobs/{job}/run.
	Jobs                 jobs.Runner
	JobsTokenFingerprint string

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Now func() time.Time
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		WebhookLimit: httpx.WebhookLimit,
		Now:          time.Now,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerWebhook()
	r.registerJobs()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerWebhook() {
	if r.Webhook == nil {
		return
	}
	r.Mux.Handle("POST /callback",
		r.Metrics.Instrument("/callback",
			httpx.Chain(r.Webhook, httpx.RateLimitByIP(r.WebhookLimit)),
		),
	)
}

func (r *Router) registerJobs() {
	if r.Jobs == nil {
		return
	}
	handler := &JobsHandler{Jobs: r.Jobs, Now: r.Now}
	r.Mux.Handle("POST /v1/jobs/{job}/run",
		r.Metrics.Instrument("/v1/jobs/{job}/run",
			httpx.Chain(handler, httpx.RequireBearer(r.JobsTokenFingerprint)),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))

	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))
	}
}
