package domain

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var ErrInvalidURL = errors.New("invalid url")

// Target is the read-only view of a website handed to every probe.
type Target struct {
	URL    *url.URL
	Host   string
	Domain string // registrable domain (eTLD+1), falls back to Host
	APIKey string
}

// NewTarget validates rawurl and derives the host and registrable domain.
// Only absolute http(s) URLs are accepted.
func NewTarget(rawurl, apiKey string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(rawurl))
	if err != nil {
		return Target{}, errors.Join(ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, ErrInvalidURL
	}
	registrable := host
	if net.ParseIP(host) == nil {
		if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			registrable = d
		}
	}
	return Target{URL: u, Host: host, Domain: registrable, APIKey: apiKey}, nil
}

// Resolve returns an absolute URL for path on the target's origin.
func (t Target) Resolve(path string) string {
	base := *t.URL
	base.Path = ""
	base.RawPath = ""
	base.RawQuery = ""
	base.Fragment = ""
	return strings.TrimRight(base.String(), "/") + path
}

// Origin is scheme://host[:port] without a trailing slash.
func (t Target) Origin() string {
	return t.Resolve("")
}
