package probes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sitewarden/internal/config"
)

const defaultMaxBody = 2 << 20

// Page is a fetched response with its body truncated to the fetcher limit.
type Page struct {
	Status   int
	Header   http.Header
	Body     []byte
	Location string
}

func (p Page) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
}

// Fetcher issues bounded HTTP requests on behalf of probes. It keeps no
// per-request state, so one value is shared by every probe.
type Fetcher struct {
	client     *http.Client
	noRedirect *http.Client
	userAgent  string
	maxBody    int64
}

func NewFetcher(cfg config.ScanConfig) *Fetcher {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		noRedirect: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.UserAgent,
		maxBody:   maxBody,
	}
}

// Get follows redirects.
func (f *Fetcher) Get(ctx context.Context, url string) (Page, error) {
	return f.do(ctx, f.client, http.MethodGet, url)
}

// GetNoRedirect returns the first response, exposing any Location header.
func (f *Fetcher) GetNoRedirect(ctx context.Context, url string) (Page, error) {
	return f.do(ctx, f.noRedirect, http.MethodGet, url)
}

func (f *Fetcher) Head(ctx context.Context, url string) (Page, error) {
	return f.do(ctx, f.client, http.MethodHead, url)
}

func (f *Fetcher) do(ctx context.Context, client *http.Client, method, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Page{}, fmt.Errorf("read body: %w", err)
	}
	return Page{
		Status:   resp.StatusCode,
		Header:   resp.Header,
		Body:     body,
		Location: resp.Header.Get("Location"),
	}, nil
}
