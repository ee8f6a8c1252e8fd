package probes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sitewarden/internal/config"
	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

func testFetcher() *Fetcher {
	return NewFetcher(config.ScanConfig{RequestTimeout: 2 * time.Second, UserAgent: "sitewarden-test"})
}

func mustTarget(t *testing.T, rawurl, apiKey string) domain.Target {
	t.Helper()
	tg, err := domain.NewTarget(rawurl, apiKey)
	require.NoError(t, err)
	return tg
}

// closedURL returns the URL of a server that no longer accepts connections.
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

var nop = logger.NewNop()

type fakeVerdicts struct {
	verdict ports.Verdict
	err     error
}

func (f fakeVerdicts) URLVerdict(context.Context, string) (ports.Verdict, error) {
	return f.verdict, f.err
}

type fakeResolver struct {
	listed map[string]bool
	err    error
}

func (f fakeResolver) Listed(_ context.Context, _ string, zone string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.listed[zone], nil
}

type fakeVulnDB func(kind ports.ComponentKind, slug, version string) (int, error)

func (f fakeVulnDB) Lookup(_ context.Context, kind ports.ComponentKind, slug, version string) (int, error) {
	return f(kind, slug, version)
}

type fakeFeed struct {
	updates ports.Updates
	err     error
}

func (f fakeFeed) PendingUpdates(context.Context, string, string) (ports.Updates, error) {
	return f.updates, f.err
}

type fakeGrader struct {
	submitErr error
	reports   []ports.CertReport
	calls     int
}

func (f *fakeGrader) Submit(context.Context, string) error { return f.submitErr }

func (f *fakeGrader) Report(context.Context, string) (ports.CertReport, error) {
	if f.calls >= len(f.reports) {
		return ports.CertReport{Status: ports.CertInProgress}, nil
	}
	r := f.reports[f.calls]
	f.calls++
	return r, nil
}
