package scoring

import "sitewarden/internal/domain"

// Classify maps outcomes and score to a threat level. Rules are evaluated
// top-down and the first match wins.
func Classify(r *domain.ProbeResults, score int) domain.ThreatLevel {
	if r == nil {
		r = &domain.ProbeResults{}
	}
	malware := domain.MalwareStatus("")
	if r.Malware != nil {
		malware = r.Malware.Status
	}
	listed := r.Blacklist != nil && r.Blacklist.Status == domain.BlacklistBlacklisted

	switch {
	case malware == domain.MalwareInfected || listed:
		return domain.ThreatCritical
	case score < 50 || malware == domain.MalwareSuspicious:
		return domain.ThreatHigh
	case score < 75 || VulnerabilityTotal(r) > 5:
		return domain.ThreatMedium
	}
	return domain.ThreatLow
}

// Evaluate returns both the score and the threat level for r.
func Evaluate(r *domain.ProbeResults) (int, domain.ThreatLevel) {
	score := Score(r)
	return score, Classify(r, score)
}
