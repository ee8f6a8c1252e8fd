package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
	"sitewarden/internal/services/reports"
	"sitewarden/internal/services/scanner"
	"sitewarden/internal/services/websites"
	"sitewarden/internal/testutil"
)

func newTestServer(t *testing.T) (*httptest.Server, *testutil.MemoryStore) {
	t.Helper()
	store := testutil.NewMemoryStore()
	store.AddWebsite("w1", "u1", "https://example.com", nil)
	log := logger.NewNop()
	srv := New(
		scanner.New(store, store, testutil.CleanProbes(), time.Minute, log),
		websites.New(store),
		reports.New(store),
		log,
	)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, store
}

func do(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/healthz", "", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestPostWebsite(t *testing.T) {
	ts, _ := newTestServer(t)

	var site domain.Website
	code := do(t, http.MethodPost, ts.URL+"/websites", `{"url":"https://blog.example.org","userId":"u1","apiKey":"k"}`, &site)
	assert.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, site.ID)
	assert.Equal(t, "u1", site.UserID)

	tests := []struct {
		name string
		body string
	}{
		{"bad url", `{"url":"ftp://example.com","userId":"u1"}`},
		{"no owner", `{"url":"https://example.com"}`},
		{"bad json", `{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var e map[string]string
			assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/websites", tc.body, &e))
			assert.NotEmpty(t, e["error"])
		})
	}
}

func TestPostScan_Wait(t *testing.T) {
	ts, _ := newTestServer(t)

	var e map[string]string
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/websites/w1/report", "", &e))

	var rec domain.ScanRecord
	code := do(t, http.MethodPost, ts.URL+"/scans?wait=true", `{"websiteId":"w1","userId":"u1"}`, &rec)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	require.NotNil(t, rec.OverallScore)
	assert.Equal(t, 100, *rec.OverallScore)

	var got domain.ScanRecord
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/scans/"+rec.ID, "", &got))
	assert.Equal(t, rec.ID, got.ID)

	var rep ports.Report
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/websites/w1/report", "", &rep))
	assert.Equal(t, rec.ID, rep.Scan.ID)
	assert.Contains(t, rep.Summary, "score 100/100, threat level low")
}

func TestPostScan_Queued(t *testing.T) {
	ts, store := newTestServer(t)

	var accepted scanAccepted
	code := do(t, http.MethodPost, ts.URL+"/scans", `{"websiteId":"w1","userId":"u1"}`, &accepted)
	require.Equal(t, http.StatusAccepted, code)
	require.NotEmpty(t, accepted.ScanID)

	rec, err := store.GetScanRecord(t.Context(), accepted.ScanID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rec.Status)

	do(t, http.MethodPost, ts.URL+"/scans?wait=false", `{"websiteId":"w1","userId":"u1"}`, nil)
	var list []domain.ScanRecord
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/websites/w1/scans?limit=1", "", &list))
	assert.Len(t, list, 1)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/websites/w1/scans", "", &list))
	assert.Len(t, list, 2)
}

func TestErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"unknown scan", http.MethodGet, "/scans/nope", "", http.StatusNotFound},
		{"unknown website", http.MethodPost, "/scans", `{"websiteId":"w9","userId":"u1"}`, http.StatusNotFound},
		{"wrong owner", http.MethodPost, "/scans?wait=true", `{"websiteId":"w1","userId":"u2"}`, http.StatusNotFound},
		{"invalid override url", http.MethodPost, "/scans", `{"websiteId":"w1","userId":"u1","url":"not a url"}`, http.StatusBadRequest},
		{"bad wait", http.MethodPost, "/scans?wait=maybe", `{"websiteId":"w1","userId":"u1"}`, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/websites/w1/scans?limit=abc", "", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var e map[string]string
			assert.Equal(t, tc.code, do(t, tc.method, ts.URL+tc.path, tc.body, &e))
			assert.NotEmpty(t, e["error"])
		})
	}
}
