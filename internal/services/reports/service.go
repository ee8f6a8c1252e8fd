package reports

import (
	"context"
	"errors"
	"fmt"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
	"sitewarden/internal/scoring"
)

var ErrNotFound = errors.New("no completed scan")

type Service struct {
	scans ports.ScanRepository
}

var _ ports.Reports = (*Service)(nil)

func New(scans ports.ScanRepository) *Service { return &Service{scans: scans} }

// Latest returns the most recent completed scan of a website.
func (s *Service) Latest(ctx context.Context, websiteID string) (ports.Report, error) {
	rec, exists, err := s.scans.LatestCompleted(ctx, websiteID)
	if err != nil {
		return ports.Report{}, err
	}
	if !exists {
		return ports.Report{}, ErrNotFound
	}
	return ports.Report{Scan: rec, Summary: Summary(rec)}, nil
}

// Summary renders the one-line activity log entry for a scan.
func Summary(rec domain.ScanRecord) string {
	switch rec.Status {
	case domain.StatusCompleted:
	case domain.StatusFailed:
		msg := "unknown error"
		if rec.ErrorMessage != nil {
			msg = *rec.ErrorMessage
		}
		return "Security scan failed: " + msg
	default:
		return "Security scan " + string(rec.Status)
	}

	score, level := 0, domain.ThreatLow
	if rec.OverallScore != nil {
		score = *rec.OverallScore
	}
	if rec.ThreatLevel != nil {
		level = *rec.ThreatLevel
	}

	threats, vulns := 0, 0
	if r := rec.ProbeResults; r != nil {
		if r.Malware != nil {
			threats = r.Malware.ThreatsDetected
		}
		vulns = scoring.VulnerabilityTotal(r)
	}
	return fmt.Sprintf("Security scan completed: score %d/100, threat level %s (%d malware threats, %d vulnerabilities)",
		score, level, threats, vulns)
}
