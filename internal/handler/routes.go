package handler

import (
	"log/slog"
	"net/http"

	"labelcomposer/internal/metrics"
	"labelcomposer/internal/service"
)

// NewRouter builds the API mux and wraps it in the standard middleware.
// events serves the SSE stream and may be nil.
func NewRouter(svc *service.SchemeService, events http.Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := NewSchemeHandler(svc, logger)
	mux := http.NewServeMux()

	// Schemes
	mux.HandleFunc("GET /api/schemes", h.ListSchemes)
	mux.HandleFunc("POST /api/schemes", h.CreateScheme)
	mux.HandleFunc("GET /api/schemes/{name}", h.GetScheme)
	mux.HandleFunc("DELETE /api/schemes/{name}", h.DeleteScheme)
	mux.HandleFunc("GET /api/schemes/{name}/export", h.Export)

	// Mutations
	mux.HandleFunc("POST /api/schemes/{name}/atoms", h.AddAtom)
	mux.HandleFunc("POST /api/schemes/{name}/labels", h.AddLabel)

	// Queries
	mux.HandleFunc("POST /api/schemes/{name}/can-compute", h.CanCompute)
	mux.HandleFunc("GET /api/schemes/{name}/closure", h.Closure)
	mux.HandleFunc("GET /api/schemes/{name}/compare/{other}", h.Compare)
	mux.HandleFunc("GET /api/schemes/{name}/compatible", h.Compatible)

	// Operations
	if events != nil {
		mux.Handle("GET /events", events)
	}
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	mux.HandleFunc("GET /healthz", h.Health)

	return Chain(mux,
		Recover(logger),
		CORS,
		Logger(logger, m),
	)
}
