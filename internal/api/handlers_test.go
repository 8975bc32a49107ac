package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/docsentry/docsentry/internal/health"
	"github.com/docsentry/docsentry/internal/report"
	"github.com/docsentry/docsentry/internal/scan"
	"github.com/docsentry/docsentry/internal/source"
	"github.com/docsentry/docsentry/internal/store"
)

type fakeScheduler struct {
	id       string
	rep      *report.Report
	scanning bool
	busy     bool
	requests []scan.Trigger
}

func (f *fakeScheduler) Latest() (string, *report.Report) { return f.id, f.rep }

func (f *fakeScheduler) Scanning() bool { return f.scanning }

func (f *fakeScheduler) Request(trigger scan.Trigger) bool {
	if f.busy {
		return false
	}
	f.requests = append(f.requests, trigger)
	return true
}

type fakeSnapshots struct {
	snap     *source.Snapshot
	loadedAt time.Time
}

func (f *fakeSnapshots) Current() *source.Snapshot { return f.snap }

func (f *fakeSnapshots) LoadedAt() time.Time { return f.loadedAt }

func testReport(id string, started time.Time) *report.Report {
	rep := &report.Report{
		ID:         id,
		Source:     "dir:docs",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Documents: []report.DocumentInfo{
			{Name: "guide.md", Headings: 12, Links: 9, CodeBlocks: 4},
		},
		Findings: []report.Finding{
			{Rule: "anchor-resolves", Severity: report.SeverityError, Doc: "guide.md", Line: 40, Message: "anchor #nowhere not found"},
		},
		Links: []report.LinkResult{
			{URL: "https://example.com/gone", OK: false, StatusCode: 404, Category: "http_4xx", CheckedAt: started, Docs: []string{"guide.md"}},
			{URL: "https://example.com/ok", OK: true, StatusCode: 200, Category: "ok", CheckedAt: started, Docs: []string{"guide.md"}},
		},
	}
	rep.Finalize()
	return rep
}

func testSnapshot() *source.Snapshot {
	return &source.Snapshot{
		Docs: []source.File{
			{Name: "guide.md", Data: []byte("# Guide\n\nSee [setup](#setup).\n\n## Setup\n")},
			{Name: "reference/api.md", Data: []byte("# API\n")},
		},
	}
}

// testThresholds uses short windows and small counts so handler tests can
// steer the status with a handful of recorded events.
func testThresholds() health.Thresholds {
	return health.Thresholds{
		Window:            time.Minute,
		IdleWindow:        time.Minute,
		OverloadDenials:   3,
		DegradedMinProbes: 4,
		DegradedRatio:     0.5,
	}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "docsentry.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

// TestHandler_GetHealth verifies that GetHealth returns 200 OK with healthy
// status, service identity, and check details when the service has traffic
// and a reachable source.
func TestHandler_GetHealth(t *testing.T) {
	health.Reset()
	defer health.Reset()
	health.RecordRequestSuccess()

	started := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{id: "scan-1", rep: testReport("scan-1", started)}
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(sched, &fakeSnapshots{}, nil, &Options{Thresholds: testThresholds()}, logger)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.GetHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GetHealth() status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Health status = %q, want healthy", body["status"])
	}
	if body["service"] != "docsentry" {
		t.Errorf("Health service = %q, want docsentry", body["service"])
	}
	checks, ok := body["checks"].(map[string]interface{})
	if !ok {
		t.Fatal("Health checks missing")
	}
	if checks["source"] != "healthy" {
		t.Errorf("source check = %q, want healthy", checks["source"])
	}
	if body["lastScanId"] != "scan-1" {
		t.Errorf("lastScanId = %q, want scan-1", body["lastScanId"])
	}
}

// TestHandler_GetHealth_Idle verifies that GetHealth reports idle with 200 OK
// when no requests were recorded in the idle window.
func TestHandler_GetHealth_Idle(t *testing.T) {
	health.Reset()
	defer health.Reset()

	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, &Options{Thresholds: testThresholds()}, logger)

	w := httptest.NewRecorder()
	handler.GetHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("GetHealth() status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "idle" {
		t.Errorf("Health status = %q, want idle", body["status"])
	}
}

// TestHandler_GetHealth_ShuttingDown verifies that GetHealth returns 503 with
// shutting_down status once the shutdown flag is set.
func TestHandler_GetHealth_ShuttingDown(t *testing.T) {
	health.Reset()
	defer health.Reset()
	health.SetShuttingDown(true)

	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, &Options{Thresholds: testThresholds()}, logger)

	w := httptest.NewRecorder()
	handler.GetHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GetHealth() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "shutting_down" {
		t.Errorf("Health status = %q, want shutting_down", body["status"])
	}
}

// TestHandler_GetHealth_SourceUnreachable verifies that GetHealth returns 503
// with source_unreachable status and an unhealthy source check after a failed
// refresh.
func TestHandler_GetHealth_SourceUnreachable(t *testing.T) {
	health.Reset()
	defer health.Reset()
	health.SetSourceStatus(errors.New("clone failed"))

	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, &Options{Thresholds: testThresholds()}, logger)

	w := httptest.NewRecorder()
	handler.GetHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GetHealth() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "source_unreachable" {
		t.Errorf("Health status = %q, want source_unreachable", body["status"])
	}
	checks, ok := body["checks"].(map[string]interface{})
	if !ok {
		t.Fatal("Health checks missing")
	}
	if checks["source"] != "unhealthy" {
		t.Errorf("source check = %q, want unhealthy", checks["source"])
	}
}

// TestHandler_GetHealth_CachePing verifies that a failing cache ping flips the
// cache check to unhealthy without changing the overall status.
func TestHandler_GetHealth_CachePing(t *testing.T) {
	health.Reset()
	defer health.Reset()
	health.RecordRequestSuccess()

	opts := &Options{
		Thresholds: testThresholds(),
		CachePing:  func() error { return errors.New("memcache: no servers configured") },
	}
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, opts, logger)

	w := httptest.NewRecorder()
	handler.GetHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("GetHealth() status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Health status = %q, want healthy", body["status"])
	}
	checks, ok := body["checks"].(map[string]interface{})
	if !ok {
		t.Fatal("Health checks missing")
	}
	if checks["cache"] != "unhealthy" {
		t.Errorf("cache check = %q, want unhealthy", checks["cache"])
	}
}

// TestHandler_GetHealth_LogsTransition verifies that GetHealth logs health
// status transitions only when the status changes, not on every call.
func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	health.Reset()
	defer health.Reset()
	health.RecordRequestSuccess()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, &Options{Thresholds: testThresholds()}, logger)

	req := httptest.NewRequest("GET", "/health", nil)

	w := httptest.NewRecorder()
	handler.GetHealth(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first GetHealth status = %d, want 200", w.Code)
	}
	if logs.Len() != 0 {
		t.Fatalf("first call should not log transition; got %d logs", logs.Len())
	}

	health.SetSourceStatus(errors.New("pull failed"))

	w2 := httptest.NewRecorder()
	handler.GetHealth(w2, req)
	if w2.Code != http.StatusServiceUnavailable {
		t.Fatalf("second GetHealth status = %d, want 503", w2.Code)
	}

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 transition log, got %d", len(entries))
	}
	var prev, curr string
	for _, f := range entries[0].Context {
		switch f.Key {
		case "previous_status":
			prev = f.String
		case "current_status":
			curr = f.String
		}
	}
	if prev != "healthy" {
		t.Errorf("previous_status = %q, want healthy", prev)
	}
	if curr != "source_unreachable" {
		t.Errorf("current_status = %q, want source_unreachable", curr)
	}

	w3 := httptest.NewRecorder()
	handler.GetHealth(w3, req)
	if logs.FilterMessage("health status transition").Len() != 1 {
		t.Errorf("third call (status unchanged) should not log; got %d transition logs",
			logs.FilterMessage("health status transition").Len())
	}
}

// TestHandler_GetReport verifies that GetReport serves the latest report with
// its summary counters.
func TestHandler_GetReport(t *testing.T) {
	started := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{id: "scan-1", rep: testReport("scan-1", started)}
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(sched, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.GetReport(w, httptest.NewRequest("GET", "/api/v1/report", nil))

	if w.Code != http.StatusOK {
		t.Errorf("GetReport() status = %d, want %d", w.Code, http.StatusOK)
	}
	var rep report.Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if rep.ID != "scan-1" {
		t.Errorf("Report.ID = %q, want scan-1", rep.ID)
	}
	if rep.Summary.LinksBroken != 1 {
		t.Errorf("Summary.LinksBroken = %d, want 1", rep.Summary.LinksBroken)
	}
	if rep.Summary.Errors != 1 {
		t.Errorf("Summary.Errors = %d, want 1", rep.Summary.Errors)
	}
}

// TestHandler_GetReport_NoScanYet verifies that GetReport returns 404 with
// NO_REPORT before the first scan completes.
func TestHandler_GetReport_NoScanYet(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.GetReport(w, httptest.NewRequest("GET", "/api/v1/report", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("GetReport() status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if code := decodeErrorCode(t, w); code != "NO_REPORT" {
		t.Errorf("error.code = %q, want NO_REPORT", code)
	}
}

// TestHandler_PostScan_Accepted verifies that PostScan queues a scan and
// returns 202 Accepted.
func TestHandler_PostScan_Accepted(t *testing.T) {
	health.Reset()
	defer health.Reset()

	sched := &fakeScheduler{}
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(sched, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.PostScan(w, httptest.NewRequest("POST", "/api/v1/scan", nil))

	if w.Code != http.StatusAccepted {
		t.Errorf("PostScan() status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if len(sched.requests) != 1 || sched.requests[0] != scan.TriggerAPI {
		t.Errorf("scheduler requests = %v, want [api]", sched.requests)
	}
}

// TestHandler_PostScan_Busy verifies that PostScan returns 409 Conflict when
// the scheduler already has a scan running and one queued.
func TestHandler_PostScan_Busy(t *testing.T) {
	health.Reset()
	defer health.Reset()

	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{busy: true}, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.PostScan(w, httptest.NewRequest("POST", "/api/v1/scan", nil))

	if w.Code != http.StatusConflict {
		t.Errorf("PostScan() status = %d, want %d", w.Code, http.StatusConflict)
	}
	if code := decodeErrorCode(t, w); code != "SCAN_BUSY" {
		t.Errorf("error.code = %q, want SCAN_BUSY", code)
	}
}

// TestHandler_PostScan_ShuttingDown verifies that PostScan refuses new scans
// during shutdown.
func TestHandler_PostScan_ShuttingDown(t *testing.T) {
	health.Reset()
	defer health.Reset()
	health.SetShuttingDown(true)

	sched := &fakeScheduler{}
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(sched, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.PostScan(w, httptest.NewRequest("POST", "/api/v1/scan", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("PostScan() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if len(sched.requests) != 0 {
		t.Errorf("scheduler received %d requests during shutdown, want 0", len(sched.requests))
	}
}

// TestHandler_GetScans verifies that GetScans lists stored scans newest first
// and honors the limit parameter.
func TestHandler_GetScans(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	older := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	if err := st.SaveReport(ctx, "scan-old", "periodic", testReport("scan-old", older)); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}
	if err := st.SaveReport(ctx, "scan-new", "api", testReport("scan-new", newer)); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, st, nil, logger)

	w := httptest.NewRecorder()
	handler.GetScans(w, httptest.NewRequest("GET", "/api/v1/scans", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GetScans() status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Scans []store.ScanRecord `json:"scans"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode scans: %v", err)
	}
	if len(resp.Scans) != 2 {
		t.Fatalf("len(scans) = %d, want 2", len(resp.Scans))
	}
	if resp.Scans[0].ID != "scan-new" || resp.Scans[1].ID != "scan-old" {
		t.Errorf("scan order = [%s %s], want [scan-new scan-old]", resp.Scans[0].ID, resp.Scans[1].ID)
	}

	w2 := httptest.NewRecorder()
	handler.GetScans(w2, httptest.NewRequest("GET", "/api/v1/scans?limit=1", nil))
	var limited struct {
		Scans []store.ScanRecord `json:"scans"`
	}
	if err := json.NewDecoder(w2.Body).Decode(&limited); err != nil {
		t.Fatalf("Failed to decode limited scans: %v", err)
	}
	if len(limited.Scans) != 1 {
		t.Errorf("len(scans) with limit=1 = %d, want 1", len(limited.Scans))
	}
}

// TestHandler_GetScans_InvalidLimit verifies that a non-numeric or out of
// range limit is rejected with 400.
func TestHandler_GetScans_InvalidLimit(t *testing.T) {
	st := testStore(t)
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, st, nil, logger)

	for _, raw := range []string{"abc", "0", "-3", "500"} {
		w := httptest.NewRecorder()
		handler.GetScans(w, httptest.NewRequest("GET", "/api/v1/scans?limit="+raw, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("GetScans(limit=%s) status = %d, want %d", raw, w.Code, http.StatusBadRequest)
		}
	}
}

// TestHandler_GetScans_HistoryDisabled verifies that history routes answer
// HISTORY_DISABLED when the service runs without a store.
func TestHandler_GetScans_HistoryDisabled(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.GetScans(w, httptest.NewRequest("GET", "/api/v1/scans", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("GetScans() status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if code := decodeErrorCode(t, w); code != "HISTORY_DISABLED" {
		t.Errorf("error.code = %q, want HISTORY_DISABLED", code)
	}
}

// TestHandler_GetScan verifies that GetScan serves a stored report by id and
// 404s for unknown ids.
func TestHandler_GetScan(t *testing.T) {
	st := testStore(t)
	started := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	if err := st.SaveReport(context.Background(), "scan-1", "initial", testReport("scan-1", started)); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, st, nil, logger)

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/scans/{id}", handler.GetScan)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/scans/scan-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GetScan(scan-1) status = %d, want %d", w.Code, http.StatusOK)
	}
	var rep report.Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if rep.ID != "scan-1" {
		t.Errorf("Report.ID = %q, want scan-1", rep.ID)
	}

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest("GET", "/api/v1/scans/no-such-scan", nil))
	if w2.Code != http.StatusNotFound {
		t.Errorf("GetScan(no-such-scan) status = %d, want %d", w2.Code, http.StatusNotFound)
	}
	if code := decodeErrorCode(t, w2); code != "SCAN_NOT_FOUND" {
		t.Errorf("error.code = %q, want SCAN_NOT_FOUND", code)
	}
}

// TestHandler_GetLinks verifies the latest-scan link listing and the status
// filter.
func TestHandler_GetLinks(t *testing.T) {
	started := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{id: "scan-1", rep: testReport("scan-1", started)}
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(sched, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.GetLinks(w, httptest.NewRequest("GET", "/api/v1/links", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GetLinks() status = %d, want %d", w.Code, http.StatusOK)
	}
	var all struct {
		Links []report.LinkResult `json:"links"`
	}
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("Failed to decode links: %v", err)
	}
	if len(all.Links) != 2 {
		t.Errorf("len(links) = %d, want 2", len(all.Links))
	}

	w2 := httptest.NewRecorder()
	handler.GetLinks(w2, httptest.NewRequest("GET", "/api/v1/links?status=broken", nil))
	var broken struct {
		Links []report.LinkResult `json:"links"`
	}
	if err := json.NewDecoder(w2.Body).Decode(&broken); err != nil {
		t.Fatalf("Failed to decode broken links: %v", err)
	}
	if len(broken.Links) != 1 {
		t.Fatalf("len(broken links) = %d, want 1", len(broken.Links))
	}
	if broken.Links[0].URL != "https://example.com/gone" {
		t.Errorf("broken link = %q, want https://example.com/gone", broken.Links[0].URL)
	}

	w3 := httptest.NewRecorder()
	handler.GetLinks(w3, httptest.NewRequest("GET", "/api/v1/links?status=flaky", nil))
	if w3.Code != http.StatusBadRequest {
		t.Errorf("GetLinks(status=flaky) status = %d, want %d", w3.Code, http.StatusBadRequest)
	}
}

// TestHandler_GetLinks_History verifies that the url parameter switches the
// endpoint to stored probe history.
func TestHandler_GetLinks_History(t *testing.T) {
	st := testStore(t)
	started := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	if err := st.SaveReport(context.Background(), "scan-1", "initial", testReport("scan-1", started)); err != nil {
		t.Fatalf("SaveReport() error = %v", err)
	}

	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, st, nil, logger)

	target := "/api/v1/links?url=" + url.QueryEscape("https://example.com/gone")
	w := httptest.NewRecorder()
	handler.GetLinks(w, httptest.NewRequest("GET", target, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GetLinks(url=...) status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		URL     string                  `json:"url"`
		History []store.LinkCheckRecord `json:"history"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(resp.History) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(resp.History))
	}
	if resp.History[0].StatusCode != 404 {
		t.Errorf("history[0].StatusCode = %d, want 404", resp.History[0].StatusCode)
	}
}

// TestHandler_GetLinks_InvalidURL verifies that a malformed url parameter is
// rejected with 400.
func TestHandler_GetLinks_InvalidURL(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.GetLinks(w, httptest.NewRequest("GET", "/api/v1/links?url=notaurl", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("GetLinks(url=notaurl) status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := decodeErrorCode(t, w); code != "INVALID_URL" {
		t.Errorf("error.code = %q, want INVALID_URL", code)
	}
}

// TestHandler_GetDocuments verifies the per-document counters of the latest
// scan are listed.
func TestHandler_GetDocuments(t *testing.T) {
	started := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{id: "scan-1", rep: testReport("scan-1", started)}
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(sched, &fakeSnapshots{}, nil, nil, logger)

	w := httptest.NewRecorder()
	handler.GetDocuments(w, httptest.NewRequest("GET", "/api/v1/documents", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GetDocuments() status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Documents []report.DocumentInfo `json:"documents"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode documents: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].Name != "guide.md" {
		t.Errorf("documents = %+v, want one entry named guide.md", resp.Documents)
	}
}

// TestHandler_GetDoc verifies raw markdown serving from the current snapshot,
// including nested document names.
func TestHandler_GetDoc(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{snap: testSnapshot()}, nil, nil, logger)

	router := mux.NewRouter()
	router.HandleFunc("/docs/{name:.+}", handler.GetDoc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/docs/guide.md", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("GetDoc(guide.md) status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q, want text/markdown", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "# Guide") {
		t.Errorf("body = %q, want markdown content", w.Body.String())
	}

	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest("GET", "/docs/reference/api.md", nil))
	if w2.Code != http.StatusOK {
		t.Errorf("GetDoc(reference/api.md) status = %d, want %d", w2.Code, http.StatusOK)
	}
}

// TestHandler_GetDoc_NotFound verifies a 404 for names absent from the
// snapshot.
func TestHandler_GetDoc_NotFound(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{snap: testSnapshot()}, nil, nil, logger)

	router := mux.NewRouter()
	router.HandleFunc("/docs/{name:.+}", handler.GetDoc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/docs/missing.md", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("GetDoc(missing.md) status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if code := decodeErrorCode(t, w); code != "DOC_NOT_FOUND" {
		t.Errorf("error.code = %q, want DOC_NOT_FOUND", code)
	}
}

// TestHandler_GetDoc_InvalidName verifies that dotfile names are rejected
// before snapshot lookup.
func TestHandler_GetDoc_InvalidName(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{snap: testSnapshot()}, nil, nil, logger)

	router := mux.NewRouter()
	router.HandleFunc("/docs/{name:.+}", handler.GetDoc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/docs/.env", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("GetDoc(.env) status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := decodeErrorCode(t, w); code != "INVALID_NAME" {
		t.Errorf("error.code = %q, want INVALID_NAME", code)
	}
}

// TestHandler_GetDoc_NoSnapshot verifies a 503 before the first successful
// source load.
func TestHandler_GetDoc_NoSnapshot(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{}, nil, nil, logger)

	router := mux.NewRouter()
	router.HandleFunc("/docs/{name:.+}", handler.GetDoc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/docs/guide.md", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GetDoc() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if code := decodeErrorCode(t, w); code != "SOURCE_UNAVAILABLE" {
		t.Errorf("error.code = %q, want SOURCE_UNAVAILABLE", code)
	}
}

// TestHandler_ViewDoc verifies HTML rendering of a snapshot document.
func TestHandler_ViewDoc(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	handler := NewHandler(&fakeScheduler{}, &fakeSnapshots{snap: testSnapshot()}, nil, nil, logger)

	router := mux.NewRouter()
	router.HandleFunc("/view/{name:.+}", handler.ViewDoc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/view/guide.md", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("ViewDoc(guide.md) status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(w.Body.String(), "<h1") {
		t.Errorf("body = %q, want rendered heading", w.Body.String())
	}
}
