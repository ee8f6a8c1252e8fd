package probes

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

// LatestKnownWordPress is compared against scraped versions when a site has
// no update feed. Bump it with each WordPress release.
const LatestKnownWordPress = "6.8.3"

var (
	generatorVersion = regexp.MustCompile(`(?i)wordpress\s+(\d+(?:\.\d+)*)`)
	assetPath        = regexp.MustCompile(`/wp-content/(plugins|themes)/([a-z0-9_-]+)/`)
)

type Vulnerability struct {
	fetch   *Fetcher
	feed    ports.UpdateFeed
	db      ports.VulnerabilityDB
	timeout time.Duration
	log     *logger.Logger
}

func NewVulnerability(fetch *Fetcher, feed ports.UpdateFeed, db ports.VulnerabilityDB, timeout time.Duration, log *logger.Logger) *Vulnerability {
	return &Vulnerability{
		fetch:   fetch,
		feed:    feed,
		db:      db,
		timeout: timeout,
		log:     log.WithProbe(string(domain.ProbeVulnerability)),
	}
}

func (p *Vulnerability) Name() domain.ProbeName { return domain.ProbeVulnerability }

func (p *Vulnerability) Run(ctx context.Context, t domain.Target) domain.Outcome {
	return run(ctx, domain.ProbeVulnerability, p.timeout, p.log, func(ctx context.Context) (domain.Outcome, error) {
		return p.assess(ctx, t)
	})
}

func (p *Vulnerability) assess(ctx context.Context, t domain.Target) (domain.Outcome, error) {
	var feedErr error
	if p.feed != nil && t.APIKey != "" {
		updates, err := p.feed.PendingUpdates(ctx, t.Origin(), t.APIKey)
		if err == nil {
			return p.fromFeed(ctx, updates), nil
		}
		feedErr = err
		p.log.Debugw("update feed unavailable, scraping", "error", err)
	}

	out, err := p.fromScrape(ctx, t)
	if err != nil {
		return nil, errors.Join(feedErr, err)
	}
	return out, nil
}

// fromFeed counts each outdated component. With a vulnerability database
// the count is the number of known issues, otherwise one per component.
func (p *Vulnerability) fromFeed(ctx context.Context, u ports.Updates) *domain.VulnerabilityOutcome {
	out := &domain.VulnerabilityOutcome{OutdatedSoftware: []string{}, Source: domain.SourceFeed}
	if u.Core.Current != "" {
		v := u.Core.Current
		out.WordPressVersion = &v
	}

	if u.Core.Outdated() {
		out.OutdatedSoftware = append(out.OutdatedSoftware, fmt.Sprintf("wordpress %s -> %s", u.Core.Current, u.Core.Latest))
		out.CoreVulnerabilities = p.count(ctx, ports.KindCore, "", u.Core.Current)
	}
	for _, pl := range u.Plugins {
		if pl.Outdated() {
			out.OutdatedSoftware = append(out.OutdatedSoftware, fmt.Sprintf("plugin %s %s -> %s", pl.Slug, pl.Current, pl.Latest))
			out.PluginVulnerabilities += p.count(ctx, ports.KindPlugin, pl.Slug, pl.Current)
		}
	}
	for _, th := range u.Themes {
		if th.Outdated() {
			out.OutdatedSoftware = append(out.OutdatedSoftware, fmt.Sprintf("theme %s %s -> %s", th.Slug, th.Current, th.Latest))
			out.ThemeVulnerabilities += p.count(ctx, ports.KindTheme, th.Slug, th.Current)
		}
	}
	return out
}

func (p *Vulnerability) count(ctx context.Context, kind ports.ComponentKind, slug, version string) int {
	if p.db == nil {
		return 1
	}
	n, err := p.db.Lookup(ctx, kind, slug, version)
	if err != nil {
		p.log.Debugw("vulnerability lookup failed", "kind", kind, "slug", slug, "error", err)
		return 1
	}
	return n
}

// fromScrape reads the generator meta tag and asset paths of the homepage.
// The result is approximate: the latest version is a compiled-in constant.
func (p *Vulnerability) fromScrape(ctx context.Context, t domain.Target) (*domain.VulnerabilityOutcome, error) {
	page, err := p.fetch.Get(ctx, t.URL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	doc, err := page.Document()
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	out := &domain.VulnerabilityOutcome{
		OutdatedSoftware: []string{},
		Source:           domain.SourceScrape,
		Approximate:      true,
	}

	generator, _ := doc.Find(`meta[name="generator"]`).Attr("content")
	if m := generatorVersion.FindStringSubmatch(generator); m != nil {
		version := m[1]
		out.WordPressVersion = &version
		if domain.CompareVersions(version, LatestKnownWordPress) < 0 {
			out.OutdatedSoftware = append(out.OutdatedSoftware, fmt.Sprintf("wordpress %s -> %s", version, LatestKnownWordPress))
			out.CoreVulnerabilities = p.count(ctx, ports.KindCore, "", version)
		}
	}

	if p.db == nil {
		return out, nil
	}
	for _, c := range scrapeComponents(doc) {
		n, err := p.db.Lookup(ctx, c.kind, c.slug, c.version)
		if err != nil {
			p.log.Debugw("vulnerability lookup failed", "kind", c.kind, "slug", c.slug, "error", err)
			continue
		}
		if n == 0 {
			continue
		}
		out.OutdatedSoftware = append(out.OutdatedSoftware, fmt.Sprintf("%s %s %s", c.kind, c.slug, c.version))
		if c.kind == ports.KindPlugin {
			out.PluginVulnerabilities += n
		} else {
			out.ThemeVulnerabilities += n
		}
	}
	return out, nil
}

type component struct {
	kind    ports.ComponentKind
	slug    string
	version string
}

// scrapeComponents collects plugin and theme slugs from asset URLs, taking
// the version from a ver query parameter when one is present.
func scrapeComponents(doc *goquery.Document) []component {
	seen := map[string]component{}
	doc.Find("script[src], link[href]").Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("src")
		if !ok {
			ref, _ = s.Attr("href")
		}
		m := assetPath.FindStringSubmatch(ref)
		if m == nil {
			return
		}
		kind := ports.KindPlugin
		if m[1] == "themes" {
			kind = ports.KindTheme
		}
		key := m[1] + "/" + m[2]
		c := seen[key]
		c.kind, c.slug = kind, m[2]
		if c.version == "" {
			if u, err := url.Parse(ref); err == nil {
				c.version = u.Query().Get("ver")
			}
		}
		seen[key] = c
	})

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]component, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}
