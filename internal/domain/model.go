package domain

import "time"

// Core domain models shared by the orchestrator, the probes and the storage
// adapters. JSON names are the contract read by report generation and the
// activity log, keep them stable.

type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

// Predecessors lists the states a record may be in before moving to s.
// Transitions only go forward and a finished record is never reopened.
func (s ScanStatus) Predecessors() []ScanStatus {
	switch s {
	case StatusRunning:
		return []ScanStatus{StatusPending}
	case StatusCompleted:
		return []ScanStatus{StatusRunning}
	case StatusFailed:
		return []ScanStatus{StatusPending, StatusRunning}
	}
	return nil
}

func (s ScanStatus) CanTransitionTo(next ScanStatus) bool {
	for _, p := range next.Predecessors() {
		if p == s {
			return true
		}
	}
	return false
}

func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Rank orders threat levels, low is 0.
func (t ThreatLevel) Rank() int {
	switch t {
	case ThreatLow:
		return 0
	case ThreatMedium:
		return 1
	case ThreatHigh:
		return 2
	case ThreatCritical:
		return 3
	}
	return -1
}

// Website is the external entity a scan targets. APIKey unlocks the
// site's authoritative pending-updates feed when present.
type Website struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	URL       string    `json:"url"`
	APIKey    *string   `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// ScanRequest is what a caller hands to the orchestrator. URL may be empty,
// in which case the website's registered URL is scanned.
type ScanRequest struct {
	WebsiteID string `json:"websiteId"`
	UserID    string `json:"userId"`
	URL       string `json:"url,omitempty"`
}

type ScanRecord struct {
	ID              string        `json:"id"`
	WebsiteID       string        `json:"websiteId"`
	UserID          string        `json:"userId"`
	URL             string        `json:"url"`
	Status          ScanStatus    `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	DurationSeconds *float64      `json:"durationSeconds,omitempty"`
	OverallScore    *int          `json:"overallScore,omitempty"`
	ThreatLevel     *ThreatLevel  `json:"threatLevel,omitempty"`
	ProbeResults    *ProbeResults `json:"probeResults,omitempty"`
	ErrorMessage    *string       `json:"errorMessage,omitempty"`
}

// ScanPatch is a partial update of a ScanRecord. Status is mandatory, the
// remaining fields are written only when non-nil.
type ScanPatch struct {
	Status          ScanStatus
	CompletedAt     *time.Time
	DurationSeconds *float64
	OverallScore    *int
	ThreatLevel     *ThreatLevel
	ProbeResults    *ProbeResults
	ErrorMessage    *string
}

// Apply returns a copy of r with the patch written over it.
func (p ScanPatch) Apply(r ScanRecord) ScanRecord {
	r.Status = p.Status
	if p.CompletedAt != nil {
		r.CompletedAt = p.CompletedAt
	}
	if p.DurationSeconds != nil {
		r.DurationSeconds = p.DurationSeconds
	}
	if p.OverallScore != nil {
		r.OverallScore = p.OverallScore
	}
	if p.ThreatLevel != nil {
		r.ThreatLevel = p.ThreatLevel
	}
	if p.ProbeResults != nil {
		r.ProbeResults = p.ProbeResults
	}
	if p.ErrorMessage != nil {
		r.ErrorMessage = p.ErrorMessage
	}
	return r
}
