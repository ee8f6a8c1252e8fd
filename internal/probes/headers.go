package probes

import (
	"context"
	"fmt"
	"time"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
)

type Headers struct {
	fetch   *Fetcher
	timeout time.Duration
	log     *logger.Logger
}

func NewHeaders(fetch *Fetcher, timeout time.Duration, log *logger.Logger) *Headers {
	return &Headers{fetch: fetch, timeout: timeout, log: log.WithProbe(string(domain.ProbeHeaders))}
}

func (p *Headers) Name() domain.ProbeName { return domain.ProbeHeaders }

// Run issues one HEAD request and records which hardening headers are set.
// Header values are not validated.
func (p *Headers) Run(ctx context.Context, t domain.Target) domain.Outcome {
	return run(ctx, domain.ProbeHeaders, p.timeout, p.log, func(ctx context.Context) (domain.Outcome, error) {
		page, err := p.fetch.Head(ctx, t.URL.String())
		if err != nil {
			return nil, fmt.Errorf("head request: %w", err)
		}
		has := func(name string) bool { return page.Header.Get(name) != "" }
		return &domain.HeaderOutcome{
			XFrameOptions:           has("X-Frame-Options"),
			XContentTypeOptions:     has("X-Content-Type-Options"),
			XXSSProtection:          has("X-XSS-Protection"),
			StrictTransportSecurity: has("Strict-Transport-Security"),
			ContentSecurityPolicy:   has("Content-Security-Policy"),
			ReferrerPolicy:          has("Referrer-Policy"),
			PermissionsPolicy:       has("Permissions-Policy"),
		}, nil
	})
}
