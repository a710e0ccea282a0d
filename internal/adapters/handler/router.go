package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps groups the handlers mounted by NewRouter
type RouterDeps struct {
	Webhook *WebhookHandler
	System  *SystemHandler
	LogHub  http.HandlerFunc // nil disables /ws/logs
	Logger  zerolog.Logger
}

// NewRouter builds the HTTP surface:
//
//	GET  /                    health check
//	GET  /webhook             verification handshake
//	POST /webhook             event delivery
//	GET  /metrics             Prometheus
//	GET  /api/system/metrics  host metrics
//	GET  /ws/logs             live log stream (optional)
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/", deps.Webhook.HandleHealth)
	r.Get("/webhook", deps.Webhook.HandleVerify)
	r.Post("/webhook", deps.Webhook.HandleEvent)

	r.Handle("/metrics", promhttp.Handler())
	if deps.System != nil {
		r.Get("/api/system/metrics", deps.System.GetSystemMetrics)
	}
	if deps.LogHub != nil {
		r.Get("/ws/logs", deps.LogHub)
	}

	return r
}

// accessLog logs one line per request at debug level
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
