package probes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
)

func TestVulnerability_FromFeed(t *testing.T) {
	feed := fakeFeed{updates: ports.Updates{
		Core: ports.ComponentUpdate{Current: "6.2", Latest: "6.4.2"},
		Plugins: []ports.ComponentUpdate{
			{Slug: "akismet", Current: "5.0", Latest: "5.3"},
			{Slug: "jetpack", Current: "13.1", Latest: "13.1"},
			{Slug: "woocommerce", Current: "8.0", Latest: "8.5"},
		},
		Themes: []ports.ComponentUpdate{{Slug: "astra", Current: "4.0", Latest: "4.6"}},
	}}
	db := fakeVulnDB(func(kind ports.ComponentKind, slug, version string) (int, error) {
		switch {
		case kind == ports.KindCore:
			return 2, nil
		case slug == "akismet":
			return 1, nil
		case slug == "woocommerce":
			return 0, errors.New("rate limited")
		}
		return 0, nil
	})

	p := NewVulnerability(testFetcher(), feed, db, time.Second, nop)
	out := p.Run(context.Background(), mustTarget(t, "https://example.com", "site-key")).(*domain.VulnerabilityOutcome)

	assert.Equal(t, domain.SourceFeed, out.Source)
	assert.False(t, out.Approximate)
	assert.Equal(t, 2, out.CoreVulnerabilities)
	assert.Equal(t, 2, out.PluginVulnerabilities, "akismet=1, failed lookup counts as 1")
	assert.Equal(t, 0, out.ThemeVulnerabilities)
	assert.Len(t, out.OutdatedSoftware, 4)
	require.NotNil(t, out.WordPressVersion)
	assert.Equal(t, "6.2", *out.WordPressVersion)
}

func TestVulnerability_FeedWithoutDatabaseCountsOutdated(t *testing.T) {
	feed := fakeFeed{updates: ports.Updates{
		Core:    ports.ComponentUpdate{Current: "6.4.2", Latest: "6.4.2"},
		Plugins: []ports.ComponentUpdate{{Slug: "akismet", Current: "5.0", Latest: "5.3"}},
		Themes:  []ports.ComponentUpdate{{Slug: "astra", Current: "4.0", Latest: "4.6"}},
	}}

	out := NewVulnerability(testFetcher(), feed, nil, time.Second, nop).
		Run(context.Background(), mustTarget(t, "https://example.com", "k")).(*domain.VulnerabilityOutcome)

	assert.Equal(t, 0, out.CoreVulnerabilities)
	assert.Equal(t, 1, out.PluginVulnerabilities)
	assert.Equal(t, 1, out.ThemeVulnerabilities)
	assert.Equal(t, 2, out.Total())
}

const wordpressPage = `<html><head>
<meta name="generator" content="WordPress 5.8.1" />
<link rel="stylesheet" href="/wp-content/themes/twentytwenty/style.css?ver=1.2" />
<script src="/wp-content/plugins/contact-form-7/includes/js/index.js?ver=5.4"></script>
<script src="/wp-content/plugins/contact-form-7/includes/js/other.js"></script>
</head><body></body></html>`

func TestVulnerability_ScrapeFallback(t *testing.T) {
	srv := serve(wordpressPage)
	defer srv.Close()

	var lookups []string
	db := fakeVulnDB(func(kind ports.ComponentKind, slug, version string) (int, error) {
		lookups = append(lookups, string(kind)+":"+slug+":"+version)
		switch kind {
		case ports.KindCore:
			return 4, nil
		case ports.KindPlugin:
			return 2, nil
		}
		return 0, nil
	})
	feed := fakeFeed{err: errors.New("401 unauthorized")}

	out := NewVulnerability(testFetcher(), feed, db, time.Second, nop).
		Run(context.Background(), mustTarget(t, srv.URL, "bad-key")).(*domain.VulnerabilityOutcome)

	assert.Equal(t, domain.SourceScrape, out.Source)
	assert.True(t, out.Approximate)
	require.NotNil(t, out.WordPressVersion)
	assert.Equal(t, "5.8.1", *out.WordPressVersion)
	assert.Equal(t, 4, out.CoreVulnerabilities)
	assert.Equal(t, 2, out.PluginVulnerabilities)
	assert.Equal(t, 0, out.ThemeVulnerabilities)
	assert.Equal(t, []string{
		"core::5.8.1",
		"plugin:contact-form-7:5.4",
		"theme:twentytwenty:1.2",
	}, lookups)
}

func TestVulnerability_NotWordPress(t *testing.T) {
	srv := serve(`<html><head><meta name="generator" content="Hugo 0.120"></head></html>`)
	defer srv.Close()

	out := NewVulnerability(testFetcher(), nil, nil, time.Second, nop).
		Run(context.Background(), mustTarget(t, srv.URL, "")).(*domain.VulnerabilityOutcome)

	assert.Zero(t, out.Total())
	assert.Nil(t, out.WordPressVersion)
	assert.Equal(t, []string{}, out.OutdatedSoftware)
	assert.False(t, out.Degraded())
}

func TestVulnerability_FeedAndScrapeFail(t *testing.T) {
	out := NewVulnerability(testFetcher(), fakeFeed{err: errors.New("feed down")}, nil, time.Second, nop).
		Run(context.Background(), mustTarget(t, closedURL(t), "k")).(*domain.VulnerabilityOutcome)

	assert.True(t, out.Degraded())
	assert.Contains(t, out.Error, "feed down")
	assert.Equal(t, domain.SourceNone, out.Source)
}
