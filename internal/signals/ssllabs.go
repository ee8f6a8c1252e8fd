package signals

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sitewarden/internal/ports"
)

// SSLLabs drives the SSL Labs v3 assessment API.
type SSLLabs struct {
	baseURL string
	api     apiClient
}

var _ ports.CertificateGrader = (*SSLLabs)(nil)

func NewSSLLabs(opts Options) *SSLLabs {
	return &SSLLabs{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		api:     newAPIClient(opts),
	}
}

type labsHost struct {
	Status        string         `json:"status"`
	StatusMessage string         `json:"statusMessage"`
	Endpoints     []labsEndpoint `json:"endpoints"`
	Certs         []struct {
		NotAfter int64 `json:"notAfter"`
	} `json:"certs"`
}

type labsEndpoint struct {
	Grade       string `json:"grade"`
	HasWarnings bool   `json:"hasWarnings"`
	Details     struct {
		Protocols []struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"protocols"`
	} `json:"details"`
}

// Submit starts a fresh assessment of host.
func (s *SSLLabs) Submit(ctx context.Context, host string) error {
	var h labsHost
	if err := s.api.getJSON(ctx, s.analyzeURL(host, true), nil, &h); err != nil {
		return fmt.Errorf("ssllabs submit %s: %w", host, err)
	}
	if h.Status == "ERROR" {
		return fmt.Errorf("ssllabs submit %s: %s", host, h.StatusMessage)
	}
	return nil
}

// Report fetches the current state of the assessment. Only a READY report
// carries a grade.
func (s *SSLLabs) Report(ctx context.Context, host string) (ports.CertReport, error) {
	var h labsHost
	if err := s.api.getJSON(ctx, s.analyzeURL(host, false), nil, &h); err != nil {
		return ports.CertReport{}, fmt.Errorf("ssllabs report %s: %w", host, err)
	}

	switch h.Status {
	case "READY":
	case "ERROR":
		return ports.CertReport{Status: ports.CertError}, nil
	default:
		// DNS and IN_PROGRESS both mean keep polling.
		return ports.CertReport{Status: ports.CertInProgress}, nil
	}

	report := ports.CertReport{Status: ports.CertReady, Protocols: []string{}}
	for _, ep := range h.Endpoints {
		if ep.Grade == "" {
			continue
		}
		report.Grade = ep.Grade
		report.HasWarnings = ep.HasWarnings
		for _, p := range ep.Details.Protocols {
			report.Protocols = append(report.Protocols, p.Name+" "+p.Version)
		}
		break
	}
	if len(h.Certs) > 0 && h.Certs[0].NotAfter > 0 {
		report.NotAfter = time.UnixMilli(h.Certs[0].NotAfter).UTC()
	}
	return report, nil
}

func (s *SSLLabs) analyzeURL(host string, startNew bool) string {
	q := url.Values{}
	q.Set("host", host)
	q.Set("all", "done")
	if startNew {
		q.Set("startNew", "on")
	}
	return s.baseURL + "/analyze?" + q.Encode()
}
