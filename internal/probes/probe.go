// Package probes implements the seven independent security checks run
// against a website. A probe never returns an error: every failure is folded
// into its fallback outcome.
package probes

import (
	"context"
	"time"

	"sitewarden/internal/config"
	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
	"sitewarden/internal/signals"
)

// NewSet builds the full battery in domain.AllProbes order. Nil members of
// sig disable the matching optional path.
func NewSet(cfg config.ScanConfig, sig signals.Set, log *logger.Logger) []ports.Probe {
	fetch := NewFetcher(cfg)
	timeout := cfg.ProbeTimeout

	return []ports.Probe{
		NewMalware(fetch, sig.Verdicts, timeout, log),
		NewBlacklist(fetch, sig.Resolver, cfg.BlacklistZones, timeout, log),
		NewVulnerability(fetch, sig.Feed, sig.VulnDB, timeout, log),
		NewHeaders(fetch, timeout, log),
		NewSSL(sig.Grader, cfg.SSLPollInterval, cfg.SSLMaxAttempts, cfg.RequestTimeout, sslTimeout(cfg), log),
		NewFileIntegrity(fetch, timeout, log),
		NewBasicHardening(fetch, timeout, log),
	}
}

// sslTimeout stretches the probe timeout to cover the full poll schedule
// plus the reachability fallback.
func sslTimeout(cfg config.ScanConfig) time.Duration {
	budget := cfg.SSLPollInterval*time.Duration(cfg.SSLMaxAttempts) + 2*cfg.RequestTimeout
	if budget > cfg.ProbeTimeout {
		return budget
	}
	return cfg.ProbeTimeout
}

// run bounds fn by timeout and maps an error to name's fallback outcome.
func run(ctx context.Context, name domain.ProbeName, timeout time.Duration, log *logger.Logger, fn func(ctx context.Context) (domain.Outcome, error)) domain.Outcome {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := fn(ctx)
	log.LogDuration(ctx, "probe.run", start, "probe", string(name))
	if err != nil {
		log.Warnw("probe degraded", "probe", name, "error", err)
		return domain.Fallback(name, err)
	}
	return out
}
