package ports

import (
	"context"
	"errors"

	"sitewarden/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid scan status transition")
)

// WebsiteRepository resolves the websites scans are run against.
type WebsiteRepository interface {
	GetWebsite(ctx context.Context, websiteID, userID string) (domain.Website, error)
	CreateWebsite(ctx context.Context, w domain.Website) (domain.Website, error)
}

// ScanRepository persists scan records. UpdateScanRecord must reject
// backwards transitions with ErrInvalidTransition.
type ScanRepository interface {
	CreateScanRecord(ctx context.Context, init domain.ScanRecord) (domain.ScanRecord, error)
	UpdateScanRecord(ctx context.Context, id string, patch domain.ScanPatch) error
	GetScanRecord(ctx context.Context, id string) (domain.ScanRecord, error)
	ListScanRecords(ctx context.Context, websiteID string, limit int) ([]domain.ScanRecord, error)
	LatestCompleted(ctx context.Context, websiteID string) (domain.ScanRecord, bool, error)
}
