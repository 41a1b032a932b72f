package web

import (
	"bufio"
	"context"
	"encoding/json"
	"html"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/core"
	"github.com/JonMunkholm/listsync/internal/remote"
)

// stubClient accepts every address except those containing "bad".
type stubClient struct {
	mu      sync.Mutex
	imports int
}

func (c *stubClient) FetchMembers(ctx context.Context, listID string, status remote.MemberStatus) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (c *stubClient) ImportBatch(ctx context.Context, listID string, subs []remote.Subscriber, resubscribe bool) (*remote.ImportResult, error) {
	c.mu.Lock()
	c.imports++
	c.mu.Unlock()

	res := &remote.ImportResult{StatusCode: http.StatusCreated}
	for _, s := range subs {
		if strings.Contains(s.EmailAddress, "bad") {
			res.Failures = append(res.Failures, remote.FailureDetail{EmailAddress: s.EmailAddress, Message: "Invalid Email Address"})
			continue
		}
		res.New++
	}
	return res, nil
}

func (c *stubClient) Unsubscribe(ctx context.Context, listID, email string) error { return nil }

func (c *stubClient) ListDetails(ctx context.Context, listID string) (*remote.ListDetails, error) {
	return &remote.ListDetails{ListID: listID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *core.Service) {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "news.csv")
	require.NoError(t, os.WriteFile(file, []byte("Email,Name\na@x.com,Ann\nbad-address,Bob\n"), 0o644))

	svc := core.NewService(
		[]config.Binding{{Name: "Newsletter", ListID: "L1", File: file}},
		&stubClient{},
		core.Options{MaxWait: 50 * time.Millisecond, ExportPath: filepath.Join(dir, "invalid_emails.xlsx")},
	)
	return NewServer(svc, cfg), svc
}

func do(t *testing.T, s *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	ID, Event, Data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
		data   []string
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.Event != "" {
				cur.Data = strings.Join(data, "\n")
				events = append(events, cur)
			}
			cur, data = sseEvent{}, nil
		case strings.HasPrefix(line, "id: "):
			cur.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestListBindings(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodGet, "/api/bindings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var views []BindingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "Newsletter", views[0].Name)
	assert.Equal(t, "L1", views[0].ListID)
}

func TestDashboard(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Newsletter")
	assert.Contains(t, rec.Body.String(), "news.csv")
}

func TestSync_UnknownIndex(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	for _, target := range []string{"/api/sync/5", "/api/sync/abc"} {
		rec := do(t, s, http.MethodPost, target, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "VAL003", resp.Code)
	}
}

func TestSync_StreamAndDownload(t *testing.T) {
	s, svc := newTestServer(t, testConfig())

	// Nothing rejected yet.
	rec := do(t, s, http.MethodGet, "/api/invalids/download", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "RUN003")

	rec = do(t, s, http.MethodPost, "/api/sync/0?unsub=1", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp.Status)
	require.NotEmpty(t, resp.RunID)

	rec = do(t, s, http.MethodGet, "/api/runs/"+resp.RunID+"/stream", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "log", events[0].Event)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "Batch sync started: news.csv", events[0].Data)

	last := events[len(events)-1]
	require.Equal(t, "complete", last.Event)
	var result core.RunResult
	require.NoError(t, json.Unmarshal([]byte(last.Data), &result))
	assert.Equal(t, resp.RunID, result.RunID)
	assert.Equal(t, 1, result.Bindings[0].Totals.New)
	assert.Equal(t, 1, result.Bindings[0].Totals.Failures)

	// Resume after the first two lines.
	rec = do(t, s, http.MethodGet, "/stream", http.Header{"Last-Event-Id": {"2"}})
	resumed := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, resumed)
	assert.Equal(t, "3", resumed[0].ID)
	assert.Len(t, resumed, len(events)-2)

	require.NoError(t, svc.WaitForRuns(context.Background()))

	rec = do(t, s, http.MethodGet, "/download_invalids", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="invalid_emails.xlsx"`)
	assert.NotZero(t, rec.Body.Len())

	rec = do(t, s, http.MethodGet, "/api/invalids", nil)
	assert.Contains(t, rec.Body.String(), "bad-address")
}

func TestStream_NoRun(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodGet, "/api/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "RUN002")
}

func TestCancelUnknownRun(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodPost, "/api/runs/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s, _ := newTestServer(t, cfg)

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/bindings", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodGet, "/api/bindings", http.Header{"X-Api-Key": {"wrong"}}).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/bindings", http.Header{"X-Api-Key": {"secret"}}).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/bindings?api_key=secret", nil).Code)

	// Legacy aliases are protected too; the status page is not.
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/sync_all", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/", nil).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	s, _ := newTestServer(t, cfg)
	defer s.Shutdown(context.Background())

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE001")
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		query string
		def   bool
		want  bool
	}{
		{"", false, false},
		{"", true, true},
		{"unsub=1", false, true},
		{"unsub=TRUE", false, true},
		{"unsub=yes", false, true},
		{"unsub=on", false, true},
		{"unsub=0", true, false},
		{"unsub=off", true, false},
		{"unsub=maybe", true, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		assert.Equal(t, tt.want, parseFlag(r, "unsub", tt.def), tt.query)
	}
}

func TestPreview(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodGet, "/api/bindings/0/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var preview core.PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, 2, preview.Summary.Subscribers)

	rec = do(t, s, http.MethodGet, "/api/bindings/9/preview", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

var downloadHref = regexp.MustCompile(`id="download" href="([^"]+)"`)

func TestDashboard_DownloadLinkCarriesAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"secret"}}
	s, svc := newTestServer(t, cfg)

	rec := do(t, s, http.MethodPost, "/api/sync/0?api_key=secret", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, svc.WaitForRuns(context.Background()))

	rec = do(t, s, http.MethodGet, "/?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := downloadHref.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2)
	href := html.UnescapeString(m[1])
	assert.Equal(t, "/api/invalids/download?api_key=secret", href)

	rec = do(t, s, http.MethodGet, href, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
}

func TestDashboard_DownloadLinkWithoutKey(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := do(t, s, http.MethodGet, "/", nil)
	m := downloadHref.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2)
	assert.Equal(t, "/api/invalids/download", m[1])
}

func TestRunLog(t *testing.T) {
	s, svc := newTestServer(t, testConfig())

	rec := do(t, s, http.MethodPost, "/api/sync/0", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NoError(t, svc.WaitForRuns(context.Background()))

	rec = do(t, s, http.MethodGet, "/api/runs/"+started.RunID+"/log", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp RunLogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
	require.NotEmpty(t, resp.Lines)
	assert.Equal(t, "Batch sync started: news.csv", resp.Lines[0])

	rec = do(t, s, http.MethodGet, "/api/runs/nope/log", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
