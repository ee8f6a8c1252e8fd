package signals

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"sitewarden/internal/ports"
)

// KeyHeader carries a site's API key to its update feed.
const KeyHeader = "X-Sitewarden-Key"

// SiteFeed reads the pending-updates endpoint the companion plugin exposes on
// managed sites.
type SiteFeed struct {
	path string
	api  apiClient
}

var _ ports.UpdateFeed = (*SiteFeed)(nil)

func NewSiteFeed(path string, opts Options) *SiteFeed {
	return &SiteFeed{path: path, api: newAPIClient(opts)}
}

func (f *SiteFeed) PendingUpdates(ctx context.Context, siteURL, apiKey string) (ports.Updates, error) {
	header := http.Header{}
	header.Set(KeyHeader, apiKey)

	var u ports.Updates
	if err := f.api.getJSON(ctx, strings.TrimRight(siteURL, "/")+f.path, header, &u); err != nil {
		return ports.Updates{}, fmt.Errorf("update feed: %w", err)
	}
	return u, nil
}
