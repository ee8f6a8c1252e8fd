package probes

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

const (
	serviceContent = "content"
	serviceTLD     = "tld"
)

var warningMarkers = [][]byte{
	[]byte("this site may be hacked"),
	[]byte("deceptive site ahead"),
	[]byte("reported attack page"),
	[]byte("reported phishing site"),
	[]byte("suspected phishing site"),
}

var suspiciousTLDs = map[string]bool{
	"tk": true, "ml": true, "ga": true, "cf": true, "gq": true,
	"xyz": true, "top": true, "work": true, "click": true, "zip": true,
}

type Blacklist struct {
	fetch    *Fetcher
	resolver ports.BlacklistResolver
	zones    []string
	timeout  time.Duration
	log      *logger.Logger
}

func NewBlacklist(fetch *Fetcher, resolver ports.BlacklistResolver, zones []string, timeout time.Duration, log *logger.Logger) *Blacklist {
	return &Blacklist{
		fetch:    fetch,
		resolver: resolver,
		zones:    zones,
		timeout:  timeout,
		log:      log.WithProbe(string(domain.ProbeBlacklist)),
	}
}

func (p *Blacklist) Name() domain.ProbeName { return domain.ProbeBlacklist }

func (p *Blacklist) Run(ctx context.Context, t domain.Target) domain.Outcome {
	return run(ctx, domain.ProbeBlacklist, p.timeout, p.log, func(ctx context.Context) (domain.Outcome, error) {
		return p.check(ctx, t)
	})
}

func (p *Blacklist) check(ctx context.Context, t domain.Target) (domain.Outcome, error) {
	out := &domain.BlacklistOutcome{ServicesChecked: []string{}, FlaggedBy: []string{}}

	var zoneErrs []error
	answered := 0
	if p.resolver != nil {
		for _, zone := range p.zones {
			out.ServicesChecked = append(out.ServicesChecked, zone)
			listed, err := p.resolver.Listed(ctx, t.Domain, zone)
			if err != nil {
				zoneErrs = append(zoneErrs, err)
				continue
			}
			answered++
			if listed {
				out.FlaggedBy = append(out.FlaggedBy, zone)
			}
		}
	}

	page, fetchErr := p.fetch.Get(ctx, t.URL.String())
	if fetchErr == nil {
		out.ServicesChecked = append(out.ServicesChecked, serviceContent)
		if hasWarningMarker(page) {
			out.FlaggedBy = append(out.FlaggedBy, serviceContent)
		}
	}

	if answered == 0 && fetchErr != nil {
		return nil, errors.Join(append(zoneErrs, fetchErr)...)
	}

	out.ServicesChecked = append(out.ServicesChecked, serviceTLD)
	if suspiciousTLDs[topLevel(t.Domain)] {
		out.FlaggedBy = append(out.FlaggedBy, serviceTLD)
	}

	out.Status = domain.BlacklistClean
	if len(out.FlaggedBy) > 0 {
		out.Status = domain.BlacklistBlacklisted
	}
	return out, nil
}

func hasWarningMarker(page Page) bool {
	if page.Header.Get("X-Blacklist") != "" {
		return true
	}
	body := bytes.ToLower(page.Body)
	for _, m := range warningMarkers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}

func topLevel(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
