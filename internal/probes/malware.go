package probes

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
)

type signature struct {
	name string
	re   *regexp.Regexp
}

// codeSignatures match obfuscation and web-shell markers in served text.
var codeSignatures = []signature{
	{"eval_base64_decode", regexp.MustCompile(`(?i)eval\s*\(\s*base64_decode\s*\(`)},
	{"eval_gzinflate", regexp.MustCompile(`(?i)eval\s*\(\s*gzinflate\s*\(`)},
	{"eval_str_rot13", regexp.MustCompile(`(?i)eval\s*\(\s*str_rot13\s*\(`)},
	{"document_write_unescape", regexp.MustCompile(`(?i)document\.write\s*\(\s*unescape\s*\(`)},
	{"fromcharcode_chain", regexp.MustCompile(`(?i)String\.fromCharCode\s*\(\s*\d+(?:\s*,\s*\d+){9,}`)},
	{"c99shell", regexp.MustCompile(`(?i)c99shell`)},
	{"r57shell", regexp.MustCompile(`(?i)r57shell`)},
	{"filesman", regexp.MustCompile(`(?i)FilesMan`)},
	{"wso_shell", regexp.MustCompile(`(?i)wso\s*shell`)},
}

var minerHosts = []string{"coinhive", "cryptoloot", "jsecoin"}

var hiddenStyle = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)

type Malware struct {
	fetch    *Fetcher
	verdicts ports.MalwareVerdicts
	timeout  time.Duration
	log      *logger.Logger
}

func NewMalware(fetch *Fetcher, verdicts ports.MalwareVerdicts, timeout time.Duration, log *logger.Logger) *Malware {
	return &Malware{fetch: fetch, verdicts: verdicts, timeout: timeout, log: log.WithProbe(string(domain.ProbeMalware))}
}

func (p *Malware) Name() domain.ProbeName { return domain.ProbeMalware }

func (p *Malware) Run(ctx context.Context, t domain.Target) domain.Outcome {
	return run(ctx, domain.ProbeMalware, p.timeout, p.log, func(ctx context.Context) (domain.Outcome, error) {
		return p.scan(ctx, t)
	})
}

func (p *Malware) scan(ctx context.Context, t domain.Target) (domain.Outcome, error) {
	page, err := p.fetch.Get(ctx, t.URL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	evidence := matchSignatures(page)
	out := &domain.MalwareOutcome{Evidence: evidence, ThreatsDetected: len(evidence)}

	malicious := 0
	if p.verdicts != nil {
		v, err := p.verdicts.URLVerdict(ctx, t.URL.String())
		if err != nil {
			p.log.Debugw("verdict lookup failed", "error", err)
		} else {
			malicious = v.Malicious
			engines, total := v.Malicious, v.Total
			out.EnginesDetected = &engines
			out.TotalEngines = &total
			if malicious > 0 {
				out.ThreatsDetected += malicious
				out.Evidence = append(out.Evidence, fmt.Sprintf("flagged by %d/%d engines", malicious, total))
			}
		}
	}

	out.Status = malwareStatus(out.ThreatsDetected, malicious)
	return out, nil
}

func malwareStatus(threats, engines int) domain.MalwareStatus {
	switch {
	case threats == 0:
		return domain.MalwareClean
	case threats >= 3 || engines >= 2:
		return domain.MalwareInfected
	default:
		return domain.MalwareSuspicious
	}
}

// matchSignatures returns the names of every signature found in the page.
// Markup checks only run when the body parses as HTML.
func matchSignatures(page Page) []string {
	evidence := []string{}
	for _, sig := range codeSignatures {
		if sig.re.Match(page.Body) {
			evidence = append(evidence, sig.name)
		}
	}

	doc, err := page.Document()
	if err != nil {
		return evidence
	}

	hiddenIframe := false
	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		w, _ := s.Attr("width")
		h, _ := s.Attr("height")
		style, _ := s.Attr("style")
		if strings.TrimSpace(w) == "0" || strings.TrimSpace(h) == "0" || hiddenStyle.MatchString(style) {
			hiddenIframe = true
		}
	})
	if hiddenIframe {
		evidence = append(evidence, "hidden_iframe")
	}

	var ipScript, minerScript bool
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		u, err := url.Parse(strings.TrimSpace(src))
		if err != nil || u.Host == "" {
			return
		}
		if net.ParseIP(u.Hostname()) != nil {
			ipScript = true
		}
		host := strings.ToLower(u.Hostname())
		for _, m := range minerHosts {
			if strings.Contains(host, m) {
				minerScript = true
			}
		}
	})
	if ipScript {
		evidence = append(evidence, "script_from_ip")
	}
	if minerScript {
		evidence = append(evidence, "cryptominer_script")
	}
	return evidence
}
