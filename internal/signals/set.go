package signals

import (
	"github.com/redis/go-redis/v9"

	"sitewarden/internal/config"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

// Set is the collection of signal clients handed to the probes. A nil
// member means the service is not configured and the probe skips it.
type Set struct {
	VulnDB   ports.VulnerabilityDB
	Verdicts ports.MalwareVerdicts
	Grader   ports.CertificateGrader
	Resolver ports.BlacklistResolver
	Feed     ports.UpdateFeed
}

// NewSet builds the clients cfg enables. rdb may be nil, in which case
// nothing is cached.
func NewSet(cfg config.Config, rdb redis.Cmdable, log *logger.Logger) Set {
	var set Set
	base := Options{Timeout: cfg.Scan.RequestTimeout, UserAgent: cfg.Scan.UserAgent}

	var cache *Cache
	if rdb != nil {
		cache = NewCache(rdb, cfg.Redis.CacheTTL, log)
	}

	if cfg.Signals.WPScanToken != "" {
		opts := base
		opts.BaseURL = cfg.Signals.WPScanBaseURL
		opts.Token = cfg.Signals.WPScanToken
		opts.RPS = cfg.Signals.WPScanRPS
		set.VulnDB = NewWPScan(opts)
		if cache != nil {
			set.VulnDB = NewCachedVulnerabilityDB(set.VulnDB, cache)
		}
	}

	if cfg.Signals.VirusTotalKey != "" {
		opts := base
		opts.BaseURL = cfg.Signals.VirusTotalBaseURL
		opts.Token = cfg.Signals.VirusTotalKey
		opts.RPS = cfg.Signals.VirusTotalRPS
		set.Verdicts = NewVirusTotal(opts)
		if cache != nil {
			set.Verdicts = NewCachedMalwareVerdicts(set.Verdicts, cache)
		}
	}

	if !cfg.Signals.SSLLabsDisabled {
		opts := base
		opts.BaseURL = cfg.Signals.SSLLabsBaseURL
		opts.RPS = cfg.Signals.SSLLabsRPS
		set.Grader = NewSSLLabs(opts)
	}

	if cfg.Scan.DNSResolver != "" {
		set.Resolver = NewDNSBL(cfg.Scan.DNSResolver, cfg.Scan.DNSTimeout, 0)
	}

	set.Feed = NewSiteFeed(cfg.Scan.UpdateFeedPath, base)
	return set
}
