package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"sitewarden/internal/domain"
)

func sampleRecord() domain.ScanRecord {
	score := 64
	level := domain.ThreatMedium
	duration := 12.5
	results := &domain.ProbeResults{}
	for _, name := range domain.AllProbes {
		results.Set(domain.Fallback(name, nil))
	}
	results.Malware = &domain.MalwareOutcome{Status: domain.MalwareSuspicious, ThreatsDetected: 1, Evidence: []string{"eval_gzinflate"}}
	results.SSL = &domain.SSLOutcome{Grade: "B", CertExpiryDays: 40, Protocols: []string{"TLS 1.3"}, Source: "ssllabs"}
	return domain.ScanRecord{
		ID:              "scan-1",
		WebsiteID:       "w1",
		UserID:          "cli",
		URL:             "https://example.com",
		Status:          domain.StatusCompleted,
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DurationSeconds: &duration,
		OverallScore:    &score,
		ThreatLevel:     &level,
		ProbeResults:    results,
	}
}

func TestRender_Text(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleRecord(), "text"))

	out := buf.String()
	assert.Contains(t, out, "Scan scan-1  ✓ completed")
	assert.Contains(t, out, "Score:    64/100")
	assert.Contains(t, out, "Threat:   MEDIUM")
	assert.Contains(t, out, "✓ malware         suspicious, 1 threats [eval_gzinflate]")
	assert.Contains(t, out, "✓ ssl             grade B, certificate expires in 40 days")
	assert.Contains(t, out, "! headers         0/7 headers present (unknown error)")
}

func TestRender_JSONAndYAMLShareFieldNames(t *testing.T) {
	var js bytes.Buffer
	require.NoError(t, render(&js, sampleRecord(), "json"))
	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &fromJSON))

	var ys bytes.Buffer
	require.NoError(t, render(&ys, sampleRecord(), "yaml"))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(ys.Bytes(), &fromYAML))

	for _, key := range []string{"overallScore", "threatLevel", "probeResults", "websiteId"} {
		assert.Contains(t, fromJSON, key)
		assert.Contains(t, fromYAML, key)
	}
	assert.Equal(t, "medium", fromYAML["threatLevel"])
}

func TestRender_UnknownFormat(t *testing.T) {
	assert.Error(t, render(&bytes.Buffer{}, sampleRecord(), "xml"))
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "scan", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
