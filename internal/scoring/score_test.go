package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewarden/internal/domain"
)

func allHeaders() *domain.HeaderOutcome {
	return &domain.HeaderOutcome{
		XFrameOptions:           true,
		XContentTypeOptions:     true,
		XXSSProtection:          true,
		StrictTransportSecurity: true,
		ContentSecurityPolicy:   true,
		ReferrerPolicy:          true,
		PermissionsPolicy:       true,
	}
}

func headersPresent(n int) *domain.HeaderOutcome {
	h := &domain.HeaderOutcome{}
	flags := []*bool{
		&h.XFrameOptions,
		&h.XContentTypeOptions,
		&h.XXSSProtection,
		&h.StrictTransportSecurity,
		&h.ContentSecurityPolicy,
		&h.ReferrerPolicy,
		&h.PermissionsPolicy,
	}
	for i := 0; i < n && i < len(flags); i++ {
		*flags[i] = true
	}
	return h
}

// cleanResults is every probe reporting its best value.
func cleanResults() *domain.ProbeResults {
	return &domain.ProbeResults{
		Malware:   &domain.MalwareOutcome{Status: domain.MalwareClean, Evidence: []string{}},
		Blacklist: &domain.BlacklistOutcome{Status: domain.BlacklistClean, ServicesChecked: []string{"dbl.spamhaus.org"}, FlaggedBy: []string{}},
		Vulnerability: &domain.VulnerabilityOutcome{
			OutdatedSoftware: []string{},
			Source:           domain.SourceFeed,
		},
		Headers:        allHeaders(),
		SSL:            &domain.SSLOutcome{Grade: "A", CertExpiryDays: 80, Protocols: []string{"TLS 1.3"}},
		FileIntegrity:  &domain.FileIntegrityOutcome{SuspiciousFiles: []string{}, PermissionIssues: []string{}},
		BasicHardening: &domain.BasicHardeningOutcome{AdminUserSecure: true, VersionHidden: true, LoginRateLimited: true, ActiveSecurityPlugins: []string{"wordfence"}},
	}
}

func TestScore_CleanSiteIsPerfect(t *testing.T) {
	r := cleanResults()
	score, level := Evaluate(r)
	assert.Equal(t, 100, score)
	assert.Equal(t, domain.ThreatLow, level)
}

func TestScore_Deductions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.ProbeResults)
		want   int
	}{
		{"malware infected", func(r *domain.ProbeResults) { r.Malware.Status = domain.MalwareInfected }, 70},
		{"malware suspicious", func(r *domain.ProbeResults) { r.Malware.Status = domain.MalwareSuspicious }, 85},
		{"malware error", func(r *domain.ProbeResults) { r.Malware.Status = domain.MalwareError }, 95},
		{"blacklisted", func(r *domain.ProbeResults) { r.Blacklist.Status = domain.BlacklistBlacklisted }, 75},
		{"blacklist error", func(r *domain.ProbeResults) { r.Blacklist.Status = domain.BlacklistError }, 97},
		{"one vulnerability", func(r *domain.ProbeResults) { r.Vulnerability.PluginVulnerabilities = 1 }, 85},
		{"six vulnerabilities", func(r *domain.ProbeResults) { r.Vulnerability.CoreVulnerabilities = 6 }, 80},
		{"eleven vulnerabilities", func(r *domain.ProbeResults) {
			r.Vulnerability.CoreVulnerabilities = 5
			r.Vulnerability.ThemeVulnerabilities = 6
		}, 75},
		{"ten vulnerabilities", func(r *domain.ProbeResults) { r.Vulnerability.PluginVulnerabilities = 10 }, 80},
		{"no headers", func(r *domain.ProbeResults) { r.Headers = &domain.HeaderOutcome{} }, 90},
		{"ssl F", func(r *domain.ProbeResults) { r.SSL.Grade = "F" }, 90},
		{"ssl C", func(r *domain.ProbeResults) { r.SSL.Grade = "C" }, 93},
		{"ssl D", func(r *domain.ProbeResults) { r.SSL.Grade = "D" }, 93},
		{"ssl B", func(r *domain.ProbeResults) { r.SSL.Grade = "B" }, 97},
		{"ssl A+", func(r *domain.ProbeResults) { r.SSL.Grade = "A+" }, 100},
		{"ssl A-", func(r *domain.ProbeResults) { r.SSL.Grade = "A-" }, 100},
		{"ssl incomplete", func(r *domain.ProbeResults) { r.SSL.Grade = domain.GradeIncomplete }, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cleanResults()
			tt.mutate(r)
			assert.Equal(t, tt.want, Score(r))
		})
	}
}

func TestScore_DocumentedScenario(t *testing.T) {
	r := cleanResults()
	r.Malware = &domain.MalwareOutcome{Status: domain.MalwareSuspicious, ThreatsDetected: 1, Evidence: []string{"hidden-iframe"}}
	r.Vulnerability.CoreVulnerabilities = 2
	r.Vulnerability.PluginVulnerabilities = 1
	r.Headers = headersPresent(5)
	r.SSL.Grade = "B"

	// 100 - 15 - 15 - 10*(2/7) - 3 = 64.14
	score := Score(r)
	assert.Equal(t, 64, score)
	// suspicious malware is a rule-2 match and outranks the score band
	assert.Equal(t, domain.ThreatHigh, Classify(r, score))

	r.Malware.Status = domain.MalwareClean
	assert.Equal(t, domain.ThreatMedium, Classify(r, 64))
}

func TestScore_ClampsAtZero(t *testing.T) {
	r := &domain.ProbeResults{
		Malware:       &domain.MalwareOutcome{Status: domain.MalwareInfected},
		Blacklist:     &domain.BlacklistOutcome{Status: domain.BlacklistBlacklisted},
		Vulnerability: &domain.VulnerabilityOutcome{CoreVulnerabilities: 40},
		Headers:       &domain.HeaderOutcome{},
		SSL:           &domain.SSLOutcome{Grade: "F"},
	}
	// 100 - 30 - 25 - 25 - 10 - 10 = 0
	assert.Equal(t, 0, Score(r))
}

func TestScore_MissingOutcomesScoreAsFallback(t *testing.T) {
	empty := &domain.ProbeResults{}
	filled := &domain.ProbeResults{}
	filled.FillMissing(nil)

	assert.Equal(t, Score(filled), Score(empty))
	assert.Equal(t, Score(empty), Score(nil))
	// 100 - 5 - 3 - 0 - 10 - 5
	assert.Equal(t, 77, Score(empty))
}

func TestScore_RangeAndDeterminism(t *testing.T) {
	malware := []domain.MalwareStatus{domain.MalwareClean, domain.MalwareSuspicious, domain.MalwareInfected, domain.MalwareError}
	blacklist := []domain.BlacklistStatus{domain.BlacklistClean, domain.BlacklistBlacklisted, domain.BlacklistError}
	vulns := []int{0, 1, 5, 6, 10, 11, 100}
	grades := []string{"A+", "A", "A-", "B", "C", "D", "E", "F", "T", "M", ""}

	for _, m := range malware {
		for _, b := range blacklist {
			for _, v := range vulns {
				for h := 0; h <= domain.TotalHeaders; h++ {
					for _, g := range grades {
						r := &domain.ProbeResults{
							Malware:       &domain.MalwareOutcome{Status: m},
							Blacklist:     &domain.BlacklistOutcome{Status: b},
							Vulnerability: &domain.VulnerabilityOutcome{PluginVulnerabilities: v},
							Headers:       headersPresent(h),
							SSL:           &domain.SSLOutcome{Grade: g},
						}
						score := Score(r)
						require.GreaterOrEqual(t, score, 0)
						require.LessOrEqual(t, score, 100)
						require.Equal(t, score, Score(r))

						level := Classify(r, score)
						require.NotEqual(t, -1, level.Rank(), "classifier must be total")
						if m == domain.MalwareInfected || b == domain.BlacklistBlacklisted {
							require.Equal(t, domain.ThreatCritical, level)
						}
					}
				}
			}
		}
	}
}
