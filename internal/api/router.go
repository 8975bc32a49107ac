package api

import (
	"net/http"
	"time"

	"github.com/go-http-utils/etag"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docsentry/docsentry/internal/observability"
)

const defaultRequestTimeout = 15 * time.Second

// NewRouter assembles the route tree with the shared middleware chain.
// History routes answer HISTORY_DISABLED when the handler has no store.
// The tree is wrapped in an ETag handler so unchanged reports and documents
// revalidate with 304s.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(RateLimitMiddleware(limiter))
	v1.Use(TimeoutMiddleware(requestTimeout))
	v1.HandleFunc("/report", h.GetReport).Methods("GET")
	v1.HandleFunc("/scan", h.PostScan).Methods("POST")
	v1.HandleFunc("/scans", h.GetScans).Methods("GET")
	v1.HandleFunc("/scans/{id}", h.GetScan).Methods("GET")
	v1.HandleFunc("/links", h.GetLinks).Methods("GET")
	v1.HandleFunc("/documents", h.GetDocuments).Methods("GET")

	docs := router.PathPrefix("/docs").Subrouter()
	docs.Use(RateLimitMiddleware(limiter))
	docs.HandleFunc("/{name:.+}", h.GetDoc).Methods("GET")

	view := router.PathPrefix("/view").Subrouter()
	view.Use(RateLimitMiddleware(limiter))
	view.HandleFunc("/{name:.+}", h.ViewDoc).Methods("GET")

	return etag.Handler(router, false)
}
