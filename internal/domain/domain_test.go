package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to ScanStatus
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusRunning, StatusPending, false},
		{StatusRunning, StatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestFallback_FullyPopulated(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	for _, name := range AllProbes {
		t.Run(string(name), func(t *testing.T) {
			o := Fallback(name, cause)
			require.NotNil(t, o)
			assert.Equal(t, name, o.ProbeName())
			assert.True(t, o.Degraded())

			raw, err := json.Marshal(o)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), "null")
			assert.Contains(t, string(raw), "i/o timeout")
		})
	}
	assert.Nil(t, Fallback("bogus", cause))
}

func TestProbeResults_SetGetMissing(t *testing.T) {
	r := &ProbeResults{}
	assert.Equal(t, AllProbes, r.Missing())

	r.Set(&HeaderOutcome{XFrameOptions: true})
	r.Set(&MalwareOutcome{Status: MalwareClean, Evidence: []string{}})
	assert.NotNil(t, r.Get(ProbeHeaders))
	assert.Len(t, r.Missing(), len(AllProbes)-2)
	assert.Empty(t, r.Degraded())

	r.FillMissing(errors.New("probe deadline exceeded"))
	assert.Empty(t, r.Missing())
	assert.ElementsMatch(t, []ProbeName{
		ProbeBlacklist, ProbeVulnerability, ProbeSSL, ProbeFileIntegrity, ProbeBasicHardening,
	}, r.Degraded())
	assert.Equal(t, GradeIncomplete, r.SSL.Grade)
	assert.Equal(t, "probe deadline exceeded", r.SSL.Error)
}

func TestProbeResults_JSONNames(t *testing.T) {
	r := &ProbeResults{}
	r.FillMissing(errors.New("x"))
	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, name := range AllProbes {
		assert.Contains(t, keys, string(name))
	}

	var back ProbeResults
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, *r, back)
}

func TestHeaderOutcome_Present(t *testing.T) {
	h := &HeaderOutcome{XFrameOptions: true, ContentSecurityPolicy: true, PermissionsPolicy: true}
	assert.Equal(t, 3, h.Present())
}

func TestScanPatch_Apply(t *testing.T) {
	score := 88
	level := ThreatLow
	rec := ScanRecord{ID: "s1", Status: StatusRunning}
	got := ScanPatch{Status: StatusCompleted, OverallScore: &score, ThreatLevel: &level}.Apply(rec)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 88, *got.OverallScore)
	assert.Equal(t, ThreatLow, *got.ThreatLevel)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, StatusRunning, rec.Status)
}

func TestNewTarget(t *testing.T) {
	tests := []struct {
		raw    string
		host   string
		domain string
		err    bool
	}{
		{raw: "https://blog.example.co.uk/path?q=1", host: "blog.example.co.uk", domain: "example.co.uk"},
		{raw: "http://EXAMPLE.com", host: "example.com", domain: "example.com"},
		{raw: "http://127.0.0.1:8080", host: "127.0.0.1", domain: "127.0.0.1"},
		{raw: "ftp://example.com", err: true},
		{raw: "example.com", err: true},
		{raw: "://bad", err: true},
		{raw: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			target, err := NewTarget(tt.raw, "")
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, target.Host)
			assert.Equal(t, tt.domain, target.Domain)
		})
	}
}

func TestTarget_Resolve(t *testing.T) {
	target, err := NewTarget("https://example.com/blog/?p=1", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/.env", target.Resolve("/.env"))
	assert.Equal(t, "https://example.com", target.Origin())
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"6.4.3", "6.4.3", 0},
		{"6.4", "6.4.0", 0},
		{"6.4.2", "6.4.3", -1},
		{"6.10", "6.9.9", 1},
		{"5.9", "6.0", -1},
		{"6.5-RC1", "6.5", 0},
		{"v2.1", "2.0", 1},
		{"", "1.0", -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}
