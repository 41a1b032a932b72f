package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/listsync/internal/core"
)

// handleRunStream streams a run's log over SSE.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	s.streamRun(w, r, chi.URLParam(r, "runID"))
}

// handleLatestStream streams the most recently started run.
func (s *Server) handleLatestStream(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.service.LatestRunID()
	if !ok {
		s.respondError(w, r, core.ErrRunNotFound, http.StatusNotFound)
		return
	}
	s.streamRun(w, r, runID)
}

// streamRun sends every log line as an "event: log" with the line number
// as event ID, then a single "event: complete" carrying the run result.
// A reconnecting client passes Last-Event-ID (or ?lastEventId) to skip
// lines it already has.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, runID string) {
	lines, err := s.service.SubscribeLog(r.Context(), runID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	skip := lastEventID(r)
	eventID := 0
	for line := range lines {
		eventID++
		if eventID <= skip {
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: log\n", eventID)
		writeData(w, line)
		flusher.Flush()
	}

	// The subscription also ends when the client goes away.
	if r.Context().Err() != nil {
		return
	}

	result, err := s.service.RunResult(r.Context(), runID)
	if err != nil {
		return
	}
	data, _ := json.Marshal(result)
	fmt.Fprint(w, "event: complete\n")
	writeData(w, string(data))
	flusher.Flush()
}

// writeData writes an SSE data field, one "data:" line per text line.
func writeData(w http.ResponseWriter, text string) {
	for _, l := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "data: %s\n", l)
	}
	fmt.Fprint(w, "\n")
}

func lastEventID(r *http.Request) int {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("lastEventId")
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
