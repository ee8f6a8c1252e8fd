// Package testutil provides shared test doubles for use across package tests.
// The in-memory store enforces the same status transitions as the SQL
// adapters so service tests exercise the real lifecycle rules.
package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
)

// ─── Store ─────────────────────────────────────────────────────────────

// MemoryStore implements WebsiteRepository, ScanRepository and
// JobRepository. Records are deep-copied through JSON on every write and
// read, as a database would.
type MemoryStore struct {
	mu       sync.Mutex
	websites map[string]domain.Website
	scans    map[string]domain.ScanRecord
	order    []string

	// CreateErr, when set, fails every CreateScanRecord call.
	CreateErr error
	// UpdateErr, when set, is consulted before applying a patch.
	UpdateErr func(patch domain.ScanPatch) error
	// Patches records every patch that was applied.
	Patches []domain.ScanPatch
}

var (
	_ ports.WebsiteRepository = (*MemoryStore)(nil)
	_ ports.ScanRepository    = (*MemoryStore)(nil)
	_ ports.JobRepository     = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		websites: map[string]domain.Website{},
		scans:    map[string]domain.ScanRecord{},
	}
}

// AddWebsite seeds a website and returns it.
func (m *MemoryStore) AddWebsite(id, userID, url string, apiKey *string) domain.Website {
	w := domain.Website{ID: id, UserID: userID, URL: url, APIKey: apiKey, CreatedAt: time.Now().UTC()}
	m.mu.Lock()
	m.websites[id] = w
	m.mu.Unlock()
	return w
}

func (m *MemoryStore) GetWebsite(_ context.Context, websiteID, userID string) (domain.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.websites[websiteID]
	if !ok || w.UserID != userID {
		return domain.Website{}, ports.ErrNotFound
	}
	return w, nil
}

func (m *MemoryStore) CreateWebsite(_ context.Context, w domain.Website) (domain.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.websites[w.ID] = w
	return w, nil
}

func (m *MemoryStore) CreateScanRecord(_ context.Context, init domain.ScanRecord) (domain.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return domain.ScanRecord{}, m.CreateErr
	}
	m.scans[init.ID] = clone(init)
	m.order = append(m.order, init.ID)
	return clone(init), nil
}

func (m *MemoryStore) UpdateScanRecord(_ context.Context, id string, patch domain.ScanPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		if err := m.UpdateErr(patch); err != nil {
			return err
		}
	}
	rec, ok := m.scans[id]
	if !ok {
		return ports.ErrNotFound
	}
	if !rec.Status.CanTransitionTo(patch.Status) {
		return ports.ErrInvalidTransition
	}
	m.scans[id] = clone(patch.Apply(rec))
	m.Patches = append(m.Patches, patch)
	return nil
}

func (m *MemoryStore) GetScanRecord(_ context.Context, id string) (domain.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scans[id]
	if !ok {
		return domain.ScanRecord{}, ports.ErrNotFound
	}
	return clone(rec), nil
}

func (m *MemoryStore) ListScanRecords(_ context.Context, websiteID string, limit int) ([]domain.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ScanRecord{}
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.scans[m.order[i]]
		if rec.WebsiteID != websiteID {
			continue
		}
		out = append(out, clone(rec))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) LatestCompleted(_ context.Context, websiteID string) (domain.ScanRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var completed []domain.ScanRecord
	for _, rec := range m.scans {
		if rec.WebsiteID == websiteID && rec.Status == domain.StatusCompleted {
			completed = append(completed, rec)
		}
	}
	if len(completed) == 0 {
		return domain.ScanRecord{}, false, nil
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CompletedAt.After(*completed[j].CompletedAt)
	})
	return clone(completed[0]), true, nil
}

// ClaimNext moves the oldest pending record to running.
func (m *MemoryStore) ClaimNext(_ context.Context) (domain.ScanRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		rec := m.scans[id]
		if rec.Status != domain.StatusPending {
			continue
		}
		rec.Status = domain.StatusRunning
		m.scans[id] = rec
		return clone(rec), true, nil
	}
	return domain.ScanRecord{}, false, nil
}

func clone(r domain.ScanRecord) domain.ScanRecord {
	raw, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	var out domain.ScanRecord
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

// ─── Probes ────────────────────────────────────────────────────────────

// StaticProbe returns a fixed outcome.
type StaticProbe struct {
	ProbeName domain.ProbeName
	Outcome   domain.Outcome
}

func (p StaticProbe) Name() domain.ProbeName { return p.ProbeName }

func (p StaticProbe) Run(context.Context, domain.Target) domain.Outcome { return p.Outcome }

// FuncProbe delegates Run to Fn.
type FuncProbe struct {
	ProbeName domain.ProbeName
	Fn        func(ctx context.Context, t domain.Target) domain.Outcome
}

func (p FuncProbe) Name() domain.ProbeName { return p.ProbeName }

func (p FuncProbe) Run(ctx context.Context, t domain.Target) domain.Outcome { return p.Fn(ctx, t) }

// CleanProbes returns the seven probes each reporting its best value.
func CleanProbes() []ports.Probe {
	return []ports.Probe{
		StaticProbe{domain.ProbeMalware, &domain.MalwareOutcome{Status: domain.MalwareClean, Evidence: []string{}}},
		StaticProbe{domain.ProbeBlacklist, &domain.BlacklistOutcome{Status: domain.BlacklistClean, ServicesChecked: []string{"dbl.spamhaus.org", "content", "tld"}, FlaggedBy: []string{}}},
		StaticProbe{domain.ProbeVulnerability, &domain.VulnerabilityOutcome{OutdatedSoftware: []string{}, Source: domain.SourceFeed}},
		StaticProbe{domain.ProbeHeaders, &domain.HeaderOutcome{
			XFrameOptions: true, XContentTypeOptions: true, XXSSProtection: true, StrictTransportSecurity: true,
			ContentSecurityPolicy: true, ReferrerPolicy: true, PermissionsPolicy: true,
		}},
		StaticProbe{domain.ProbeSSL, &domain.SSLOutcome{Grade: "A", CertExpiryDays: 80, Protocols: []string{"TLS 1.3"}, Source: "ssllabs"}},
		StaticProbe{domain.ProbeFileIntegrity, &domain.FileIntegrityOutcome{SuspiciousFiles: []string{}, PermissionIssues: []string{}}},
		StaticProbe{domain.ProbeBasicHardening, &domain.BasicHardeningOutcome{AdminUserSecure: true, VersionHidden: true, LoginRateLimited: true, ActiveSecurityPlugins: []string{"wordfence"}}},
	}
}

// Replace returns probes with the probe named like p swapped for p.
func Replace(probes []ports.Probe, p ports.Probe) []ports.Probe {
	out := make([]ports.Probe, len(probes))
	for i, existing := range probes {
		if existing.Name() == p.Name() {
			out[i] = p
			continue
		}
		out[i] = existing
	}
	return out
}
