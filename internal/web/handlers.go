package web

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/listsync/internal/core"
	"github.com/JonMunkholm/listsync/internal/logging"
	"github.com/JonMunkholm/listsync/internal/web/middleware"
	"github.com/JonMunkholm/listsync/internal/web/templates"
)

// xlsxContentType is the MIME type of the invalid-records workbook.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SyncResponse is returned by the sync triggers. The status is "OK" when a
// run was started; the run's outcome is only visible in its log and result.
type SyncResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// BindingView is the JSON shape of a configured binding.
type BindingView struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	ListID string `json:"list_id"`
	File   string `json:"file"`
}

// handleDashboard renders the status page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	defaults := s.service.DefaultSyncOptions()
	params := templates.DashboardParams{
		SkipUnsubscribed: defaults.SkipUnsubscribed,
		InvalidCount:     s.service.InvalidCount(),
		Runs:             s.service.Runs(),
		APIKey:           r.URL.Query().Get(middleware.APIKeyQueryParam),
	}
	for i, b := range s.service.Bindings() {
		params.Bindings = append(params.Bindings, templates.BindingRow{
			Index:  i,
			Name:   b.Name,
			ListID: b.ListID,
			File:   filepath.Base(b.File),
		})
	}
	if id, ok := s.service.LatestRunID(); ok {
		params.LatestRunID = id
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Dashboard(params).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render dashboard", "error", err)
	}
}

// handleHealth reports liveness and run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"limiter": s.service.LimiterStatus(),
	})
}

// handleListBindings returns the configured bindings in declaration order.
func (s *Server) handleListBindings(w http.ResponseWriter, r *http.Request) {
	bindings := s.service.Bindings()
	views := make([]BindingView, len(bindings))
	for i, b := range bindings {
		views[i] = BindingView{Index: i, Name: b.Name, ListID: b.ListID, File: b.File}
	}
	writeJSON(w, http.StatusOK, views)
}

// handlePreview analyzes a binding's spreadsheet without syncing it.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		index = -1
	}

	preview, err := s.service.Preview(index)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusUnprocessableEntity
		}
		s.respondError(w, r, err, status)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleSyncOne starts a sync of the binding at {index}.
func (s *Server) handleSyncOne(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownBinding, chi.URLParam(r, "index")), http.StatusNotFound)
		return
	}

	runID, err := s.service.StartSync(withTrigger(r.Context(), r), index, s.syncOptions(r))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, SyncResponse{RunID: runID, Status: "OK"})
}

// handleSyncAll starts a sync of every binding in declaration order.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	runID, err := s.service.StartSyncAll(withTrigger(r.Context(), r), s.syncOptions(r))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusAccepted, SyncResponse{RunID: runID, Status: "OK"})
}

// syncOptions reads the trigger flags. Reconciliation is off unless asked
// for; the unsubscribed pre-filter follows the configured default.
func (s *Server) syncOptions(r *http.Request) core.SyncOptions {
	opts := s.service.DefaultSyncOptions()
	opts.Unsubscribe = parseFlag(r, "unsub", false)
	opts.SkipUnsubscribed = parseFlag(r, "skip_unsub", opts.SkipUnsubscribed)
	return opts
}

// parseFlag reads a boolean-like query or form value. Anything other than
// a recognised true or false spelling yields def.
func parseFlag(r *http.Request, name string, def bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		val = r.PostFormValue(name)
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// handleListRuns returns the runs still held by the service.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Runs())
}

// RunLogResponse is a snapshot of a run's log.
type RunLogResponse struct {
	RunID string   `json:"run_id"`
	Lines []string `json:"lines"`
	Done  bool     `json:"done"`
}

// handleRunLog returns the lines logged so far without streaming.
func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	lines, done, err := s.service.LogLines(runID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, RunLogResponse{RunID: runID, Lines: lines, Done: done})
}

// handleRunResult returns a run's result, waiting for it to finish.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.RunResult(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelRun stops an in-progress run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelRun(runID); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "run_id": runID})
}

// handleListInvalids returns the rejected addresses currently held.
func (s *Server) handleListInvalids(w http.ResponseWriter, r *http.Request) {
	invalids := s.service.Invalids()
	if invalids == nil {
		invalids = []core.BindingInvalids{}
	}
	writeJSON(w, http.StatusOK, invalids)
}

// handleDownloadInvalids writes the invalid-records workbook and serves it.
func (s *Server) handleDownloadInvalids(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	err := s.service.ExportInvalids(func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...))
	})
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	path := s.service.ExportPath()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
	http.ServeFile(w, r, path)
}
