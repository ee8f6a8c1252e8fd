package ports

import (
	"context"
	"time"

	"sitewarden/internal/domain"
)

// External signal capabilities consumed by probes. One method per signal so
// probes can be exercised against fakes.

type ComponentKind string

const (
	KindCore   ComponentKind = "core"
	KindPlugin ComponentKind = "plugin"
	KindTheme  ComponentKind = "theme"
)

// VulnerabilityDB counts known vulnerabilities affecting slug at version.
// For KindCore the slug is ignored and version is the WordPress release.
type VulnerabilityDB interface {
	Lookup(ctx context.Context, kind ComponentKind, slug, version string) (int, error)
}

type Verdict struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Total      int `json:"total"`
}

// MalwareVerdicts returns the engine verdicts an aggregator holds for a URL.
type MalwareVerdicts interface {
	URLVerdict(ctx context.Context, rawurl string) (Verdict, error)
}

type CertStatus string

const (
	CertReady      CertStatus = "READY"
	CertInProgress CertStatus = "IN_PROGRESS"
	CertError      CertStatus = "ERROR"
)

type CertReport struct {
	Status      CertStatus
	Grade       string
	HasWarnings bool
	NotAfter    time.Time
	Protocols   []string
}

// CertificateGrader grades a host's TLS posture with a submit-then-poll
// protocol.
type CertificateGrader interface {
	Submit(ctx context.Context, host string) error
	Report(ctx context.Context, host string) (CertReport, error)
}

// BlacklistResolver reports whether name is listed in a DNS reputation zone.
type BlacklistResolver interface {
	Listed(ctx context.Context, name, zone string) (bool, error)
}

type ComponentUpdate struct {
	Slug    string `json:"slug"`
	Current string `json:"current"`
	Latest  string `json:"latest"`
}

func (u ComponentUpdate) Outdated() bool {
	return u.Latest != "" && u.Current != "" && domain.CompareVersions(u.Current, u.Latest) < 0
}

type Updates struct {
	Core    ComponentUpdate   `json:"core"`
	Plugins []ComponentUpdate `json:"plugins"`
	Themes  []ComponentUpdate `json:"themes"`
}

// UpdateFeed reads the authoritative pending-updates feed a managed site
// exposes to holders of its API key.
type UpdateFeed interface {
	PendingUpdates(ctx context.Context, siteURL, apiKey string) (Updates, error)
}
