package probes

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
)

// securityPlugins maps a plugin name to the markup fingerprints that reveal it.
var securityPlugins = []struct {
	name    string
	markers []string
}{
	{"wordfence", []string{"wordfence"}},
	{"sucuri", []string{"sucuri"}},
	{"ithemes-security", []string{"ithemes-security", "better-wp-security"}},
	{"all-in-one-wp-security", []string{"all-in-one-wp-security"}},
	{"jetpack", []string{"/wp-content/plugins/jetpack/"}},
	{"cerber", []string{"wp-cerber"}},
	{"defender-security", []string{"defender-security", "wpmudev-defender"}},
}

var captchaMarkers = [][]byte{
	[]byte("g-recaptcha"),
	[]byte("h-captcha"),
	[]byte("cf-turnstile"),
	[]byte("captcha"),
}

type BasicHardening struct {
	fetch   *Fetcher
	timeout time.Duration
	log     *logger.Logger
}

func NewBasicHardening(fetch *Fetcher, timeout time.Duration, log *logger.Logger) *BasicHardening {
	return &BasicHardening{fetch: fetch, timeout: timeout, log: log.WithProbe(string(domain.ProbeBasicHardening))}
}

func (p *BasicHardening) Name() domain.ProbeName { return domain.ProbeBasicHardening }

func (p *BasicHardening) Run(ctx context.Context, t domain.Target) domain.Outcome {
	return run(ctx, domain.ProbeBasicHardening, p.timeout, p.log, func(ctx context.Context) (domain.Outcome, error) {
		return p.inspect(ctx, t)
	})
}

func (p *BasicHardening) inspect(ctx context.Context, t domain.Target) (domain.Outcome, error) {
	home, err := p.fetch.Get(ctx, t.URL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	doc, err := home.Document()
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	generator, _ := doc.Find(`meta[name="generator"]`).Attr("content")
	out := &domain.BasicHardeningOutcome{
		AdminUserSecure:       true,
		VersionHidden:         !strings.Contains(strings.ToLower(generator), "wordpress"),
		ActiveSecurityPlugins: detectSecurityPlugins(home),
	}

	login, err := p.fetch.GetNoRedirect(ctx, t.Resolve("/wp-login.php"))
	if err != nil {
		p.log.Debugw("login page check failed", "error", err)
	} else {
		switch login.Status {
		case http.StatusTooManyRequests, http.StatusForbidden:
			out.LoginRateLimited = true
		case http.StatusOK:
			if !hasLoginForm(login) {
				out.AdminUserSecure = false
			}
			if hasCaptcha(login.Body) {
				out.LoginRateLimited = true
			}
		}
	}

	author, err := p.fetch.GetNoRedirect(ctx, t.Resolve("/?author=1"))
	if err != nil {
		p.log.Debugw("author enumeration check failed", "error", err)
	} else if author.Status >= 300 && author.Status < 400 &&
		strings.Contains(strings.ToLower(author.Location), "/author/admin") {
		out.AdminUserSecure = false
	}

	return out, nil
}

func hasLoginForm(page Page) bool {
	doc, err := page.Document()
	if err != nil {
		return false
	}
	return doc.Find(`form#loginform, form[name="loginform"], input[name="pwd"], input[type="password"]`).Length() > 0
}

func hasCaptcha(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, m := range captchaMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

func detectSecurityPlugins(home Page) []string {
	found := []string{}
	lower := strings.ToLower(string(home.Body))
	for _, sp := range securityPlugins {
		hit := false
		for _, m := range sp.markers {
			if strings.Contains(lower, m) {
				hit = true
				break
			}
		}
		if sp.name == "sucuri" && home.Header.Get("X-Sucuri-ID") != "" {
			hit = true
		}
		if hit {
			found = append(found, sp.name)
		}
	}
	return found
}
