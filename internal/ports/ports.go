package ports

import (
	"context"

	"sitewarden/internal/domain"
)

// Scanner runs and tracks scans.
type Scanner interface {
	Scan(ctx context.Context, req domain.ScanRequest) (domain.ScanRecord, error)
	Enqueue(ctx context.Context, req domain.ScanRequest) (scanID string, err error)
	Get(ctx context.Context, scanID string) (domain.ScanRecord, error)
	List(ctx context.Context, websiteID string, limit int) ([]domain.ScanRecord, error)
}

// Report is the latest completed scan of a website plus its activity line.
type Report struct {
	Scan    domain.ScanRecord `json:"scan"`
	Summary string            `json:"summary"`
}

// Reports provides the read side consumed by reporting and the activity log.
type Reports interface {
	Latest(ctx context.Context, websiteID string) (Report, error)
}

// Websites registers and looks up scan targets.
type Websites interface {
	Register(ctx context.Context, rawurl, userID string, apiKey *string) (domain.Website, error)
	Get(ctx context.Context, websiteID, userID string) (domain.Website, error)
}

// Probe inspects one security dimension of a target. Run never fails: on
// any error it returns the probe's fallback outcome.
type Probe interface {
	Name() domain.ProbeName
	Run(ctx context.Context, t domain.Target) domain.Outcome
}
