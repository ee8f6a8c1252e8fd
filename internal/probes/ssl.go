package probes

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

// Grades reported when the grading service has no answer.
const (
	gradeReachable = "B"
	gradeNoHTTPS   = "F"
)

const (
	sourceGrader       = "ssllabs"
	sourceReachability = "reachability"
)

// M is a certificate name mismatch.
var knownGrades = map[string]bool{
	"A+": true, "A": true, "A-": true, "B": true, "C": true, "D": true, "E": true, "F": true, "M": true,
}

var errIncomplete = errors.New("assessment incomplete")

type SSL struct {
	grader       ports.CertificateGrader
	pollInterval time.Duration
	maxAttempts  int
	dialTimeout  time.Duration
	timeout      time.Duration
	log          *logger.Logger
}

func NewSSL(grader ports.CertificateGrader, pollInterval time.Duration, maxAttempts int, dialTimeout, timeout time.Duration, log *logger.Logger) *SSL {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &SSL{
		grader:       grader,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		dialTimeout:  dialTimeout,
		timeout:      timeout,
		log:          log.WithProbe(string(domain.ProbeSSL)),
	}
}

func (p *SSL) Name() domain.ProbeName { return domain.ProbeSSL }

func (p *SSL) Run(ctx context.Context, t domain.Target) domain.Outcome {
	return run(ctx, domain.ProbeSSL, p.timeout, p.log, func(ctx context.Context) (domain.Outcome, error) {
		if p.grader != nil {
			out, err := p.gradedWithin(ctx, t.Host)
			if err == nil {
				return out, nil
			}
			p.log.Debugw("grading unavailable, checking reachability", "host", t.Host, "error", err)
		}
		return p.reachability(ctx, t), nil
	})
}

// gradedWithin leaves enough of ctx's budget for the reachability dial.
func (p *SSL) gradedWithin(ctx context.Context, host string) (*domain.SSLOutcome, error) {
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline.Add(-p.dialTimeout))
		defer cancel()
	}
	return p.graded(ctx, host)
}

// graded submits host and polls until a grade is ready or attempts run out.
func (p *SSL) graded(ctx context.Context, host string) (*domain.SSLOutcome, error) {
	if err := p.grader.Submit(ctx, host); err != nil {
		return nil, err
	}

	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		rep, err := p.grader.Report(ctx, host)
		if err != nil {
			return nil, err
		}
		switch rep.Status {
		case ports.CertReady:
			if rep.Grade == "" {
				return nil, errIncomplete
			}
			return gradedOutcome(rep), nil
		case ports.CertError:
			return nil, fmt.Errorf("grader rejected %s", host)
		}
		timer.Reset(p.pollInterval)
	}
	return nil, errIncomplete
}

func gradedOutcome(rep ports.CertReport) *domain.SSLOutcome {
	grade := rep.Grade
	if !knownGrades[grade] {
		grade = domain.GradeIncomplete
	}
	protocols := rep.Protocols
	if protocols == nil {
		protocols = []string{}
	}
	return &domain.SSLOutcome{
		Grade:          grade,
		CertExpiryDays: daysUntil(rep.NotAfter),
		Warnings:       rep.HasWarnings,
		Protocols:      protocols,
		Source:         sourceGrader,
	}
}

// reachability dials the TLS endpoint directly. A completed handshake earns
// a conservative B; no HTTPS at all is graded F with zero lifetime.
func (p *SSL) reachability(ctx context.Context, t domain.Target) *domain.SSLOutcome {
	port := "443"
	if t.URL.Scheme == "https" && t.URL.Port() != "" {
		port = t.URL.Port()
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.dialTimeout},
		Config: &tls.Config{
			ServerName: t.Host,
			// Verification is done below so an invalid chain still yields an expiry.
			InsecureSkipVerify: true,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.Host, port))
	if err != nil {
		p.log.Debugw("tls dial failed", "host", t.Host, "error", err)
		return &domain.SSLOutcome{Grade: gradeNoHTTPS, Protocols: []string{}, Source: sourceReachability}
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	out := &domain.SSLOutcome{
		Grade:     gradeReachable,
		Protocols: []string{tls.VersionName(state.Version)},
		Source:    sourceReachability,
	}
	if len(state.PeerCertificates) == 0 {
		out.Warnings = true
		return out
	}

	leaf := state.PeerCertificates[0]
	out.CertExpiryDays = daysUntil(leaf.NotAfter)

	intermediates := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{DNSName: t.Host, Intermediates: intermediates}); err != nil {
		out.Warnings = true
	}
	return out
}

func daysUntil(t time.Time) int {
	if t.IsZero() {
		return 0
	}
	return int(time.Until(t).Hours() / 24)
}
