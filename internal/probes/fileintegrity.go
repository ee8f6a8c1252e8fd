package probes

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
)

type pathKind int

const (
	kindConfig pathKind = iota
	kindFile
	kindDir
)

var sensitivePaths = []struct {
	path string
	kind pathKind
}{
	{"/wp-config.php.bak", kindConfig},
	{"/wp-config.php~", kindConfig},
	{"/wp-config.old", kindConfig},
	{"/.env", kindConfig},
	{"/.git/config", kindConfig},
	{"/.htaccess", kindConfig},
	{"/wp-content/debug.log", kindFile},
	{"/backup.sql", kindFile},
	{"/phpinfo.php", kindFile},
	{"/wp-content/uploads/", kindDir},
	{"/wp-includes/", kindDir},
	{"/wp-content/plugins/", kindDir},
}

var backdoorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)move_uploaded_file\s*\(`),
	regexp.MustCompile(`(?i)eval\s*\(\s*\$_(?:POST|GET|REQUEST|COOKIE)`),
	regexp.MustCompile(`(?i)base64_decode\s*\(\s*\$_(?:POST|GET|REQUEST|COOKIE)`),
	regexp.MustCompile(`(?i)\b(?:c99|r57|b374k|wso)(?:shell)?\.php\b`),
	regexp.MustCompile(`(?i)assert\s*\(\s*\$_(?:POST|GET|REQUEST)`),
}

// Soft-404 detection path. Sites answering 200 for it serve a catch-all page.
const canaryPath = "/sitewarden-canary-7f3a9c.txt"

const pathConcurrency = 4

type FileIntegrity struct {
	fetch   *Fetcher
	timeout time.Duration
	log     *logger.Logger
}

func NewFileIntegrity(fetch *Fetcher, timeout time.Duration, log *logger.Logger) *FileIntegrity {
	return &FileIntegrity{fetch: fetch, timeout: timeout, log: log.WithProbe(string(domain.ProbeFileIntegrity))}
}

func (p *FileIntegrity) Name() domain.ProbeName { return domain.ProbeFileIntegrity }

func (p *FileIntegrity) Run(ctx context.Context, t domain.Target) domain.Outcome {
	return run(ctx, domain.ProbeFileIntegrity, p.timeout, p.log, func(ctx context.Context) (domain.Outcome, error) {
		return p.inspect(ctx, t)
	})
}

func (p *FileIntegrity) inspect(ctx context.Context, t domain.Target) (domain.Outcome, error) {
	home, err := p.fetch.Get(ctx, t.URL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	out := &domain.FileIntegrityOutcome{SuspiciousFiles: []string{}, PermissionIssues: []string{}}
	for _, re := range backdoorPatterns {
		if re.Match(home.Body) {
			out.CoreFilesModified++
		}
	}

	var catchAll []byte
	if canary, err := p.fetch.GetNoRedirect(ctx, t.Resolve(canaryPath)); err == nil && canary.Status == http.StatusOK {
		catchAll = canary.Body
	}

	pages := make([]*Page, len(sensitivePaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pathConcurrency)
	for i, sp := range sensitivePaths {
		g.Go(func() error {
			page, err := p.fetch.GetNoRedirect(gctx, t.Resolve(sp.path))
			if err != nil {
				p.log.Debugw("path check failed", "path", sp.path, "error", err)
				return nil
			}
			pages[i] = &page
			return nil
		})
	}
	_ = g.Wait()

	for i, sp := range sensitivePaths {
		page := pages[i]
		if page == nil || page.Status != http.StatusOK {
			continue
		}
		if catchAll != nil && bytes.Equal(page.Body, catchAll) {
			continue
		}
		switch sp.kind {
		case kindConfig:
			out.ConfigFilesAccessible = true
			out.SuspiciousFiles = append(out.SuspiciousFiles, sp.path)
			out.PermissionIssues = append(out.PermissionIssues, sp.path+" is publicly readable")
		case kindFile:
			out.SuspiciousFiles = append(out.SuspiciousFiles, sp.path)
		case kindDir:
			if bytes.Contains(page.Body, []byte("Index of")) {
				out.DirectoryListingsExposed = true
				out.PermissionIssues = append(out.PermissionIssues, sp.path+" allows directory listing")
			}
		}
	}
	return out, nil
}
