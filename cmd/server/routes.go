package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portfolio/backend/internal/handler"
)

// newRouter registers the API routes. analytics may be nil when page-view
// tracking is disabled.
func newRouter(h *handler.Handler, contact *handler.ContactHandler, analytics *handler.Analytics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	// All methods are routed so the handler can answer 405 with a JSON body.
	mux.HandleFunc("/api/contact", contact.Submit)
	if analytics != nil {
		mux.HandleFunc("POST /api/pageviews", analytics.RecordPageView)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
