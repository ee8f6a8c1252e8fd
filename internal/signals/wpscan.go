package signals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"sitewarden/internal/domain"
	"sitewarden/internal/ports"
)

// WPScan queries the WPScan v3 API.
type WPScan struct {
	baseURL string
	token   string
	api     apiClient
}

var _ ports.VulnerabilityDB = (*WPScan)(nil)

func NewWPScan(opts Options) *WPScan {
	return &WPScan{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		api:     newAPIClient(opts),
	}
}

type wpscanVuln struct {
	Title   string  `json:"title"`
	FixedIn *string `json:"fixed_in"`
}

type wpscanEntry struct {
	LatestVersion   string       `json:"latest_version"`
	Vulnerabilities []wpscanVuln `json:"vulnerabilities"`
}

// Lookup counts vulnerabilities that are unfixed or fixed in a release newer
// than version. An unknown component yields zero.
func (w *WPScan) Lookup(ctx context.Context, kind ports.ComponentKind, slug, version string) (int, error) {
	var endpoint string
	switch kind {
	case ports.KindCore:
		if version == "" {
			return 0, nil
		}
		endpoint = "/wordpresses/" + url.PathEscape(strings.ReplaceAll(version, ".", ""))
	case ports.KindPlugin:
		endpoint = "/plugins/" + url.PathEscape(slug)
	case ports.KindTheme:
		endpoint = "/themes/" + url.PathEscape(slug)
	default:
		return 0, fmt.Errorf("unknown component kind %q", kind)
	}

	header := http.Header{}
	header.Set("Authorization", "Token token="+w.token)

	var body map[string]wpscanEntry
	if err := w.api.getJSON(ctx, w.baseURL+endpoint, header, &body); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("wpscan %s %s: %w", kind, slug, err)
	}

	count := 0
	for _, entry := range body {
		for _, v := range entry.Vulnerabilities {
			if affects(v, version) {
				count++
			}
		}
	}
	return count, nil
}

// affects reports whether v applies to installed. With an unknown version
// only unfixed vulnerabilities count.
func affects(v wpscanVuln, installed string) bool {
	if v.FixedIn == nil || *v.FixedIn == "" {
		return true
	}
	if installed == "" {
		return false
	}
	return domain.CompareVersions(installed, *v.FixedIn) < 0
}
