// Package scoring turns a set of probe outcomes into the composite score and
// threat level stored on a completed scan. Both functions are pure.
package scoring

import (
	"math"

	"sitewarden/internal/domain"
)

const maxScore = 100

// Deductions applied by Score.
const (
	malwareInfected   = 30
	malwareSuspicious = 15
	malwareError      = 5

	blacklistListed = 25
	blacklistError  = 3

	vulnsOverTen  = 25
	vulnsOverFive = 20
	vulnsAny      = 15

	headersMax = 10

	sslFailing     = 10
	sslWeak        = 7
	sslFair        = 3
	sslUnavailable = 5
)

// Score starts at 100, subtracts the weighted deduction of every probe and
// clamps the rounded result to [0, 100]. A missing outcome is scored as that
// probe's fallback value.
func Score(r *domain.ProbeResults) int {
	if r == nil {
		r = &domain.ProbeResults{}
	}
	score := float64(maxScore)
	score -= float64(malwareDeduction(r.Malware))
	score -= float64(blacklistDeduction(r.Blacklist))
	score -= float64(vulnerabilityDeduction(r.Vulnerability))
	score -= headerDeduction(r.Headers)
	score -= float64(sslDeduction(r.SSL))

	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > maxScore {
		return maxScore
	}
	return rounded
}

func malwareDeduction(o *domain.MalwareOutcome) int {
	if o == nil {
		return malwareError
	}
	switch o.Status {
	case domain.MalwareInfected:
		return malwareInfected
	case domain.MalwareSuspicious:
		return malwareSuspicious
	case domain.MalwareError:
		return malwareError
	}
	return 0
}

func blacklistDeduction(o *domain.BlacklistOutcome) int {
	if o == nil {
		return blacklistError
	}
	switch o.Status {
	case domain.BlacklistBlacklisted:
		return blacklistListed
	case domain.BlacklistError:
		return blacklistError
	}
	return 0
}

func vulnerabilityDeduction(o *domain.VulnerabilityOutcome) int {
	if o == nil {
		return 0
	}
	switch total := o.Total(); {
	case total > 10:
		return vulnsOverTen
	case total > 5:
		return vulnsOverFive
	case total > 0:
		return vulnsAny
	}
	return 0
}

func headerDeduction(o *domain.HeaderOutcome) float64 {
	present := 0
	if o != nil {
		present = o.Present()
	}
	return headersMax * (1 - float64(present)/float64(domain.TotalHeaders))
}

// sslDeduction grades the TLS posture. T (no grade) and unknown grades sit
// between B and C/D; M (name mismatch) counts as failing.
func sslDeduction(o *domain.SSLOutcome) int {
	if o == nil {
		return sslUnavailable
	}
	switch o.Grade {
	case "A+", "A", "A-":
		return 0
	case "B":
		return sslFair
	case "C", "D", "E":
		return sslWeak
	case "F", "M":
		return sslFailing
	}
	return sslUnavailable
}

// VulnerabilityTotal is the combined core, plugin and theme count.
func VulnerabilityTotal(r *domain.ProbeResults) int {
	if r == nil || r.Vulnerability == nil {
		return 0
	}
	return r.Vulnerability.Total()
}
