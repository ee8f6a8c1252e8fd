package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
	"sitewarden/internal/scoring"
)

// Caller input errors, returned before any scan record exists.
var (
	ErrInvalidURL      = domain.ErrInvalidURL
	ErrWebsiteNotFound = errors.New("website not found")
)

var (
	errDeadline = errors.New("probe deadline exceeded")
	errNotRun   = errors.New("probe not run")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Service struct {
	websites ports.WebsiteRepository
	scans    ports.ScanRepository
	probes   []ports.Probe
	deadline time.Duration
	log      *logger.Logger
	tracer   trace.Tracer
}

var _ ports.Scanner = (*Service)(nil)

// New wires the orchestrator. A zero deadline lets probes run until their
// own timeouts fire.
func New(websites ports.WebsiteRepository, scans ports.ScanRepository, probes []ports.Probe, deadline time.Duration, log *logger.Logger) *Service {
	return &Service{
		websites: websites,
		scans:    scans,
		probes:   probes,
		deadline: deadline,
		log:      log.WithComponent("scanner"),
		tracer:   otel.Tracer("sitewarden/scanner"),
	}
}

// Scan runs every probe against the website and returns the finished record.
// Only caller input errors are returned; any later failure is reported as a
// record with status failed.
func (s *Service) Scan(ctx context.Context, req domain.ScanRequest) (domain.ScanRecord, error) {
	start := time.Now()
	target, err := s.resolve(ctx, req.WebsiteID, req.UserID, req.URL)
	if err != nil {
		return domain.ScanRecord{}, err
	}

	rec, err := s.createPending(ctx, req, target)
	if err != nil {
		s.log.LogError(ctx, err, "scan.create", "website_id", req.WebsiteID)
		msg := err.Error()
		now := time.Now().UTC()
		dur := time.Since(start).Seconds()
		return domain.ScanRecord{
			ID:              rec.ID,
			WebsiteID:       req.WebsiteID,
			UserID:          req.UserID,
			URL:             target.URL.String(),
			Status:          domain.StatusFailed,
			CreatedAt:       rec.CreatedAt,
			CompletedAt:     &now,
			DurationSeconds: &dur,
			ErrorMessage:    &msg,
		}, nil
	}

	if err := s.scans.UpdateScanRecord(ctx, rec.ID, domain.ScanPatch{Status: domain.StatusRunning}); err != nil {
		return s.fail(context.WithoutCancel(ctx), rec, start, nil, fmt.Errorf("mark running: %w", err)), nil
	}
	rec.Status = domain.StatusRunning

	return s.execute(ctx, rec, target, start), nil
}

// Enqueue validates the request and stores a pending record for the
// background workers.
func (s *Service) Enqueue(ctx context.Context, req domain.ScanRequest) (string, error) {
	target, err := s.resolve(ctx, req.WebsiteID, req.UserID, req.URL)
	if err != nil {
		return "", err
	}
	rec, err := s.createPending(ctx, req, target)
	if err != nil {
		return "", fmt.Errorf("create scan record: %w", err)
	}
	s.log.Infow("scan queued", "scan_id", rec.ID, "website_id", rec.WebsiteID)
	return rec.ID, nil
}

// Execute runs a record a worker has already claimed (status running).
func (s *Service) Execute(ctx context.Context, rec domain.ScanRecord) domain.ScanRecord {
	start := time.Now()
	target, err := s.resolve(ctx, rec.WebsiteID, rec.UserID, rec.URL)
	if err != nil {
		return s.fail(context.WithoutCancel(ctx), rec, start, nil, err)
	}
	return s.execute(ctx, rec, target, start)
}

func (s *Service) Get(ctx context.Context, scanID string) (domain.ScanRecord, error) {
	return s.scans.GetScanRecord(ctx, scanID)
}

// List returns the newest records of a website first.
func (s *Service) List(ctx context.Context, websiteID string, limit int) ([]domain.ScanRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.scans.ListScanRecords(ctx, websiteID, limit)
}

func (s *Service) resolve(ctx context.Context, websiteID, userID, rawurl string) (domain.Target, error) {
	if websiteID == "" || userID == "" {
		return domain.Target{}, ErrWebsiteNotFound
	}
	site, err := s.websites.GetWebsite(ctx, websiteID, userID)
	if errors.Is(err, ports.ErrNotFound) {
		return domain.Target{}, ErrWebsiteNotFound
	}
	if err != nil {
		return domain.Target{}, fmt.Errorf("lookup website: %w", err)
	}

	if rawurl == "" {
		rawurl = site.URL
	}
	apiKey := ""
	if site.APIKey != nil {
		apiKey = *site.APIKey
	}
	target, err := domain.NewTarget(rawurl, apiKey)
	if err != nil {
		return domain.Target{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawurl)
	}
	return target, nil
}

func (s *Service) createPending(ctx context.Context, req domain.ScanRequest, target domain.Target) (domain.ScanRecord, error) {
	init := domain.ScanRecord{
		ID:        uuid.NewString(),
		WebsiteID: req.WebsiteID,
		UserID:    req.UserID,
		URL:       target.URL.String(),
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	rec, err := s.scans.CreateScanRecord(ctx, init)
	if err != nil {
		return init, err
	}
	return rec, nil
}

// execute fans out the probes, scores the outcomes and writes the final
// record. Panics outside the probe harness are reported as a failed scan.
func (s *Service) execute(ctx context.Context, rec domain.ScanRecord, target domain.Target, start time.Time) (final domain.ScanRecord) {
	ctx, span := s.tracer.Start(ctx, "scan", trace.WithAttributes(
		attribute.String("scan.id", rec.ID),
		attribute.String("scan.host", target.Host),
	))
	defer span.End()

	log := s.log.WithScanID(rec.ID).WithContext(ctx)
	log.Infow("scan started", "website_id", rec.WebsiteID, "url", rec.URL)

	// Writes after the fan-out must land even if the caller has gone away.
	writeCtx := context.WithoutCancel(ctx)

	var results *domain.ProbeResults
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scan aborted: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			final = s.fail(writeCtx, rec, start, results, err)
		}
	}()

	// A scan is not cancellable once started; only the scan deadline
	// bounds the fan-out.
	results = s.runProbes(writeCtx, target)
	score, level := scoring.Evaluate(results)

	completedAt := time.Now().UTC()
	duration := time.Since(start).Seconds()
	patch := domain.ScanPatch{
		Status:          domain.StatusCompleted,
		CompletedAt:     &completedAt,
		DurationSeconds: &duration,
		OverallScore:    &score,
		ThreatLevel:     &level,
		ProbeResults:    results,
	}
	if err := s.scans.UpdateScanRecord(writeCtx, rec.ID, patch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "final write failed")
		return s.fail(writeCtx, rec, start, results, fmt.Errorf("save scan result: %w", err))
	}

	degraded := results.Degraded()
	span.SetAttributes(attribute.Int("scan.score", score), attribute.String("scan.threat_level", string(level)))
	log.Infow("scan completed",
		"score", score,
		"threat_level", level,
		"duration_seconds", duration,
		"degraded_probes", degraded,
	)
	return patch.Apply(rec)
}

// fail writes status failed with whatever outcomes were gathered. A failure
// to write is logged; the returned record reflects the intended state.
func (s *Service) fail(ctx context.Context, rec domain.ScanRecord, start time.Time, results *domain.ProbeResults, cause error) domain.ScanRecord {
	msg := cause.Error()
	completedAt := time.Now().UTC()
	duration := time.Since(start).Seconds()
	patch := domain.ScanPatch{
		Status:          domain.StatusFailed,
		CompletedAt:     &completedAt,
		DurationSeconds: &duration,
		ProbeResults:    results,
		ErrorMessage:    &msg,
	}

	log := s.log.WithScanID(rec.ID)
	log.LogError(ctx, cause, "scan.execute", "website_id", rec.WebsiteID)
	if err := s.scans.UpdateScanRecord(ctx, rec.ID, patch); err != nil {
		log.LogError(ctx, err, "scan.mark_failed")
	}
	return patch.Apply(rec)
}

// runProbes runs every probe concurrently and waits for all of them or the
// scan deadline, whichever comes first. Probes still running at the deadline
// get their fallback outcome and their late results are dropped.
func (s *Service) runProbes(ctx context.Context, target domain.Target) *domain.ProbeResults {
	if s.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	outcomes := make(chan domain.Outcome, len(s.probes))
	var g errgroup.Group
	for _, p := range s.probes {
		g.Go(func() error {
			outcomes <- s.runProbe(ctx, p, target)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	results := &domain.ProbeResults{}
collect:
	for {
		select {
		case o, ok := <-outcomes:
			if !ok {
				break collect
			}
			results.Set(o)
		case <-ctx.Done():
			for {
				select {
				case o, ok := <-outcomes:
					if !ok {
						break collect
					}
					results.Set(o)
				default:
					break collect
				}
			}
		}
	}

	if missing := results.Missing(); len(missing) > 0 {
		cause := errNotRun
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cause = errDeadline
		}
		s.log.Warnw("probes did not report", "probes", missing, "cause", cause)
		results.FillMissing(cause)
	}
	return results
}

// runProbe shields the scan from a misbehaving probe: a panic or a nil
// outcome becomes the probe's fallback.
func (s *Service) runProbe(ctx context.Context, p ports.Probe, target domain.Target) (out domain.Outcome) {
	name := p.Name()
	ctx, span := s.tracer.Start(ctx, "probe."+string(name))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("probe panicked: %v", r)
			s.log.Errorw("probe panicked", "probe", name, "panic", r)
			span.RecordError(err)
			out = domain.Fallback(name, err)
		}
		// Probes log their own degraded outcomes.
		if out != nil && out.Degraded() {
			span.SetStatus(codes.Error, "degraded")
		}
	}()

	out = p.Run(ctx, target)
	if out == nil {
		s.log.Warnw("probe returned no outcome", "probe", name)
		out = domain.Fallback(name, errors.New("probe returned no outcome"))
	}
	return out
}
