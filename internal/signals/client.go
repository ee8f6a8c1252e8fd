// Package signals holds the clients for the third-party services probes
// consult: the WPScan vulnerability database, VirusTotal URL verdicts, the
// SSL Labs grader, DNS reputation zones and a managed site's own update feed.
package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 4 << 20

// Options configures one HTTP signal client.
type Options struct {
	BaseURL   string
	Token     string
	RPS       float64
	Timeout   time.Duration
	UserAgent string
}

// StatusError is returned when a service answers with an unexpected code.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// newLimiter allows one request per 1/rps seconds. A non-positive rps
// disables limiting.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

type apiClient struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func newAPIClient(opts Options) apiClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return apiClient{
		http:      &http.Client{Timeout: timeout},
		limiter:   newLimiter(opts.RPS),
		userAgent: opts.UserAgent,
	}
}

// getJSON waits for the limiter, issues a GET and decodes a 200 body into
// out. Other status codes are returned as *StatusError with out untouched.
func (c apiClient) getJSON(ctx context.Context, url string, header http.Header, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &StatusError{Code: resp.StatusCode, URL: url}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
