package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/health"
	"github.com/docsentry/docsentry/internal/markdown"
	"github.com/docsentry/docsentry/internal/observability"
	"github.com/docsentry/docsentry/internal/report"
	"github.com/docsentry/docsentry/internal/scan"
	"github.com/docsentry/docsentry/internal/source"
	"github.com/docsentry/docsentry/internal/store"
	"github.com/docsentry/docsentry/internal/validation"
)

// ScanController is the scheduler surface the handlers drive.
type ScanController interface {
	Latest() (string, *report.Report)
	Scanning() bool
	Request(trigger scan.Trigger) bool
}

// SnapshotSource provides the most recently loaded document snapshot.
type SnapshotSource interface {
	Current() *source.Snapshot
	LoadedAt() time.Time
}

// Options holds handler settings beyond the injected services.
type Options struct {
	// Thresholds drives health status classification.
	Thresholds health.Thresholds
	// Version is reported by the health endpoint.
	Version string
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// MaxDocNameLength bounds document name validation. 0 uses the default.
	MaxDocNameLength int
}

const defaultMaxDocNameLength = 255

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	scheduler ScanController
	snapshots SnapshotSource
	store     *store.Store // nil when persistence is disabled
	opts      Options
	logger    *zap.Logger

	statusMu   sync.Mutex
	statusPrev health.Status
}

// NewHandler returns a new Handler.
func NewHandler(
	scheduler ScanController,
	snapshots SnapshotSource,
	st *store.Store,
	opts *Options,
	logger *zap.Logger,
) *Handler {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.MaxDocNameLength <= 0 {
		o.MaxDocNameLength = defaultMaxDocNameLength
	}
	return &Handler{
		scheduler: scheduler,
		snapshots: snapshots,
		store:     st,
		opts:      o,
		logger:    logger,
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := health.Evaluate(h.opts.Thresholds)

	h.statusMu.Lock()
	prev := h.statusPrev
	if prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", string(prev)),
			zap.String("current_status", string(status)))
	}
	h.statusPrev = status
	h.statusMu.Unlock()

	checks := make(map[string]string)
	if health.SourceErr() == nil {
		checks["source"] = "healthy"
	} else {
		checks["source"] = "unhealthy"
	}
	if h.opts.CachePing != nil {
		if h.opts.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"service":   "docsentry",
		"version":   h.opts.Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if id, rep := h.scheduler.Latest(); rep != nil {
		resp["lastScanId"] = id
		resp["lastScanAt"] = rep.FinishedAt.UTC().Format(time.RFC3339)
	}

	code := http.StatusOK
	if !status.Serving() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetReport handles GET /api/v1/report. Serves the most recent completed scan.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	_, rep := h.scheduler.Latest()
	if rep == nil {
		writeError(w, r, http.StatusNotFound, "NO_REPORT", "no scan has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// PostScan handles POST /api/v1/scan. Queues an on-demand scan; at most one
// scan runs at a time and at most one may wait.
func (h *Handler) PostScan(w http.ResponseWriter, r *http.Request) {
	if health.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	}
	if !h.scheduler.Request(scan.TriggerAPI) {
		writeError(w, r, http.StatusConflict, "SCAN_BUSY", "a scan is already running or queued")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "accepted",
		"message": "scan queued",
	})
}

// GetScans handles GET /api/v1/scans. Lists recent scan records, newest first.
func (h *Handler) GetScans(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeHistoryDisabled(w, r)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}
	scans, err := h.store.RecentScans(r.Context(), limit)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scans": scans})
}

// GetScan handles GET /api/v1/scans/{id}. Serves the stored report for one scan.
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeHistoryDisabled(w, r)
		return
	}
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_SCAN_ID", "scan id is required")
		return
	}
	rep, err := h.store.GetReport(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if rep == nil {
		writeError(w, r, http.StatusNotFound, "SCAN_NOT_FOUND", "no scan with id "+id)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetLinks handles GET /api/v1/links. Without parameters it serves the link
// results of the latest scan; ?status=broken|ok filters them, ?url= switches
// to the stored probe history of one URL.
func (h *Handler) GetLinks(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("url"); raw != "" {
		h.linkHistory(w, r, raw)
		return
	}

	_, rep := h.scheduler.Latest()
	if rep == nil {
		writeError(w, r, http.StatusNotFound, "NO_REPORT", "no scan has completed yet")
		return
	}
	links := rep.Links
	switch status := r.URL.Query().Get("status"); status {
	case "":
	case "broken":
		filtered := make([]report.LinkResult, 0, len(links))
		for _, l := range links {
			if !l.OK {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	case "ok":
		filtered := make([]report.LinkResult, 0, len(links))
		for _, l := range links {
			if l.OK {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	default:
		writeError(w, r, http.StatusBadRequest, "INVALID_STATUS", "status must be ok or broken")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"links": links})
}

func (h *Handler) linkHistory(w http.ResponseWriter, r *http.Request, raw string) {
	u, err := validation.ValidateLinkURL(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_URL", err.Error())
		return
	}
	if h.store == nil {
		writeHistoryDisabled(w, r)
		return
	}
	hist, err := h.store.LinkHistory(r.Context(), u, 0)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"url": u, "history": hist})
}

// GetDocuments handles GET /api/v1/documents. Lists the documents covered by
// the latest scan with their per-document counters.
func (h *Handler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	_, rep := h.scheduler.Latest()
	if rep == nil {
		writeError(w, r, http.StatusNotFound, "NO_REPORT", "no scan has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": rep.Documents})
}

// GetDoc handles GET /docs/{name}. Serves the raw markdown from the current
// snapshot.
func (h *Handler) GetDoc(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookupDoc(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// ViewDoc handles GET /view/{name}. Renders the document to HTML.
func (h *Handler) ViewDoc(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.lookupDoc(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := markdown.RenderHTML(&buf, doc.Data); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("render failed",
			zap.String("doc", doc.Name), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "unable to render document")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// lookupDoc resolves the {name} route variable against the current snapshot.
// It writes the error response itself; callers bail out when ok is false.
// Documents are matched by exact snapshot name, never by filesystem path, so
// a crafted name cannot reach outside the loaded set.
func (h *Handler) lookupDoc(w http.ResponseWriter, r *http.Request) (source.File, bool) {
	name, err := validation.ValidateDocName(mux.Vars(r)["name"], h.opts.MaxDocNameLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_NAME", err.Error())
		return source.File{}, false
	}
	snap := h.snapshots.Current()
	if snap == nil {
		writeError(w, r, http.StatusServiceUnavailable, "SOURCE_UNAVAILABLE", "documents are not loaded yet")
		return source.File{}, false
	}
	for _, d := range snap.Docs {
		if d.Name == name {
			return d, true
		}
	}
	writeError(w, r, http.StatusNotFound, "DOC_NOT_FOUND", "no document named "+name)
	return source.File{}, false
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard envelope with code,
// message, and requestId (correlation ID) when available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

func writeHistoryDisabled(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "HISTORY_DISABLED", "scan history requires persistence to be enabled")
}

// writeStoreError writes a 500 error response for store failures and logs the
// underlying error at DEBUG level.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusInternalServerError, "STORE_ERROR", "unable to read scan history")
	observability.LoggerFromContext(r.Context(), nil).Debug("store query failed", zap.Error(err))
}
