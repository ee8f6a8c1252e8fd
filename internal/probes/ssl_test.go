package probes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
	"sitewarden/internal/scoring"
	"sitewarden/internal/testutil"
)

func newSSL(grader ports.CertificateGrader) *SSL {
	return NewSSL(grader, time.Millisecond, 3, time.Second, 5*time.Second, nop)
}

func TestSSL_GradedAfterPolling(t *testing.T) {
	grader := &fakeGrader{reports: []ports.CertReport{
		{Status: ports.CertInProgress},
		{Status: ports.CertReady, Grade: "A", Protocols: []string{"TLS 1.3"}, NotAfter: time.Now().Add(90 * 24 * time.Hour)},
	}}

	out := newSSL(grader).Run(context.Background(), mustTarget(t, "https://example.com", "")).(*domain.SSLOutcome)

	assert.Equal(t, "A", out.Grade)
	assert.Equal(t, "ssllabs", out.Source)
	assert.Equal(t, []string{"TLS 1.3"}, out.Protocols)
	assert.InDelta(t, 89, out.CertExpiryDays, 1)
	assert.Equal(t, 2, grader.calls)
}

func TestSSL_UnknownGradeIsIncomplete(t *testing.T) {
	grader := &fakeGrader{reports: []ports.CertReport{{Status: ports.CertReady, Grade: "Z"}}}

	out := newSSL(grader).Run(context.Background(), mustTarget(t, "https://example.com", "")).(*domain.SSLOutcome)
	assert.Equal(t, domain.GradeIncomplete, out.Grade)
	assert.NotNil(t, out.Protocols)
}

func TestSSL_NameMismatchScoresAsFailing(t *testing.T) {
	grader := &fakeGrader{reports: []ports.CertReport{{Status: ports.CertReady, Grade: "M"}}}

	out := newSSL(grader).Run(context.Background(), mustTarget(t, "https://example.com", "")).(*domain.SSLOutcome)
	require.Equal(t, "M", out.Grade)

	var results domain.ProbeResults
	for _, p := range testutil.CleanProbes() {
		results.Set(p.Run(context.Background(), domain.Target{}))
	}
	results.SSL = out
	assert.Equal(t, 90, scoring.Score(&results))
}

func TestSSL_ReachabilityFallback(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	tests := []struct {
		name   string
		grader ports.CertificateGrader
	}{
		{name: "no grader configured"},
		{name: "grader rejects", grader: &fakeGrader{submitErr: errors.New("429")}},
		{name: "polling exhausted", grader: &fakeGrader{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newSSL(tt.grader).Run(context.Background(), mustTarget(t, srv.URL, "")).(*domain.SSLOutcome)

			assert.Equal(t, "B", out.Grade)
			assert.Equal(t, "reachability", out.Source)
			assert.True(t, out.Warnings, "httptest certificate is self-signed")
			assert.Greater(t, out.CertExpiryDays, 0)
			require.Len(t, out.Protocols, 1)
			assert.True(t, strings.HasPrefix(out.Protocols[0], "TLS"))
		})
	}
}

func TestSSL_NoHTTPS(t *testing.T) {
	closed := strings.Replace(closedURL(t), "http://", "https://", 1)

	out := newSSL(nil).Run(context.Background(), mustTarget(t, closed, "")).(*domain.SSLOutcome)
	assert.Equal(t, "F", out.Grade)
	assert.Equal(t, 0, out.CertExpiryDays)
	assert.False(t, out.Degraded())
}
