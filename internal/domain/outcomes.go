package domain

type ProbeName string

const (
	ProbeMalware        ProbeName = "malware"
	ProbeBlacklist      ProbeName = "blacklist"
	ProbeVulnerability  ProbeName = "vulnerability"
	ProbeHeaders        ProbeName = "headers"
	ProbeSSL            ProbeName = "ssl"
	ProbeFileIntegrity  ProbeName = "fileIntegrity"
	ProbeBasicHardening ProbeName = "basicHardening"
)

// AllProbes is the fixed battery run for every scan.
var AllProbes = []ProbeName{
	ProbeMalware,
	ProbeBlacklist,
	ProbeVulnerability,
	ProbeHeaders,
	ProbeSSL,
	ProbeFileIntegrity,
	ProbeBasicHardening,
}

// Outcome is one probe's typed result. Every implementation is either a
// success value or its probe's error-fallback value; Degraded reports which.
type Outcome interface {
	ProbeName() ProbeName
	Degraded() bool
}

type MalwareStatus string

const (
	MalwareClean      MalwareStatus = "clean"
	MalwareSuspicious MalwareStatus = "suspicious"
	MalwareInfected   MalwareStatus = "infected"
	MalwareError      MalwareStatus = "error"
)

type MalwareOutcome struct {
	Status          MalwareStatus `json:"status"`
	ThreatsDetected int           `json:"threatsDetected"`
	Evidence        []string      `json:"evidence"`
	EnginesDetected *int          `json:"enginesDetected,omitempty"`
	TotalEngines    *int          `json:"totalEngines,omitempty"`
	Error           string        `json:"error,omitempty"`
}

func (o *MalwareOutcome) ProbeName() ProbeName { return ProbeMalware }
func (o *MalwareOutcome) Degraded() bool       { return o.Status == MalwareError }

type BlacklistStatus string

const (
	BlacklistClean       BlacklistStatus = "clean"
	BlacklistBlacklisted BlacklistStatus = "blacklisted"
	BlacklistError       BlacklistStatus = "error"
)

type BlacklistOutcome struct {
	Status          BlacklistStatus `json:"status"`
	ServicesChecked []string        `json:"servicesChecked"`
	FlaggedBy       []string        `json:"flaggedBy"`
	Error           string          `json:"error,omitempty"`
}

func (o *BlacklistOutcome) ProbeName() ProbeName { return ProbeBlacklist }
func (o *BlacklistOutcome) Degraded() bool       { return o.Status == BlacklistError }

// Where vulnerability counts came from.
const (
	SourceFeed   = "feed"
	SourceScrape = "scrape"
	SourceNone   = "none"
)

type VulnerabilityOutcome struct {
	CoreVulnerabilities   int      `json:"coreVulnerabilities"`
	PluginVulnerabilities int      `json:"pluginVulnerabilities"`
	ThemeVulnerabilities  int      `json:"themeVulnerabilities"`
	OutdatedSoftware      []string `json:"outdatedSoftware"`
	WordPressVersion      *string  `json:"wordpressVersion,omitempty"`
	Source                string   `json:"source"`
	// Approximate marks counts derived from scraped markup and a static
	// latest-version constant rather than the site's own update feed.
	Approximate bool   `json:"approximate"`
	Error       string `json:"error,omitempty"`
}

func (o *VulnerabilityOutcome) ProbeName() ProbeName { return ProbeVulnerability }
func (o *VulnerabilityOutcome) Degraded() bool       { return o.Error != "" }

func (o *VulnerabilityOutcome) Total() int {
	return o.CoreVulnerabilities + o.PluginVulnerabilities + o.ThemeVulnerabilities
}

// TotalHeaders is the number of hardening headers the header probe checks.
const TotalHeaders = 7

type HeaderOutcome struct {
	XFrameOptions           bool   `json:"xFrameOptions"`
	XContentTypeOptions     bool   `json:"xContentTypeOptions"`
	XXSSProtection          bool   `json:"xXssProtection"`
	StrictTransportSecurity bool   `json:"strictTransportSecurity"`
	ContentSecurityPolicy   bool   `json:"contentSecurityPolicy"`
	ReferrerPolicy          bool   `json:"referrerPolicy"`
	PermissionsPolicy       bool   `json:"permissionsPolicy"`
	Error                   string `json:"error,omitempty"`
}

func (o *HeaderOutcome) ProbeName() ProbeName { return ProbeHeaders }
func (o *HeaderOutcome) Degraded() bool       { return o.Error != "" }

func (o *HeaderOutcome) Present() int {
	n := 0
	for _, ok := range []bool{
		o.XFrameOptions,
		o.XContentTypeOptions,
		o.XXSSProtection,
		o.StrictTransportSecurity,
		o.ContentSecurityPolicy,
		o.ReferrerPolicy,
		o.PermissionsPolicy,
	} {
		if ok {
			n++
		}
	}
	return n
}

// GradeIncomplete is reported when no grade could be obtained.
const GradeIncomplete = "T"

type SSLOutcome struct {
	Grade          string   `json:"grade"`
	CertExpiryDays int      `json:"certExpiryDays"`
	Warnings       bool     `json:"warnings"`
	Protocols      []string `json:"protocols"`
	Source         string   `json:"source"`
	Error          string   `json:"error,omitempty"`
}

func (o *SSLOutcome) ProbeName() ProbeName { return ProbeSSL }
func (o *SSLOutcome) Degraded() bool       { return o.Error != "" }

type FileIntegrityOutcome struct {
	CoreFilesModified        int      `json:"coreFilesModified"`
	SuspiciousFiles          []string `json:"suspiciousFiles"`
	PermissionIssues         []string `json:"permissionIssues"`
	DirectoryListingsExposed bool     `json:"directoryListingsExposed"`
	ConfigFilesAccessible    bool     `json:"configFilesAccessible"`
	Error                    string   `json:"error,omitempty"`
}

func (o *FileIntegrityOutcome) ProbeName() ProbeName { return ProbeFileIntegrity }
func (o *FileIntegrityOutcome) Degraded() bool       { return o.Error != "" }

type BasicHardeningOutcome struct {
	AdminUserSecure       bool     `json:"adminUserSecure"`
	VersionHidden         bool     `json:"versionHidden"`
	LoginRateLimited      bool     `json:"loginRateLimited"`
	ActiveSecurityPlugins []string `json:"activeSecurityPlugins"`
	Error                 string   `json:"error,omitempty"`
}

func (o *BasicHardeningOutcome) ProbeName() ProbeName { return ProbeBasicHardening }
func (o *BasicHardeningOutcome) Degraded() bool       { return o.Error != "" }

// Fallback returns the fully-populated error-fallback outcome for a probe.
// Every slice is non-nil so the persisted JSON never carries nulls.
func Fallback(name ProbeName, err error) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	switch name {
	case ProbeMalware:
		return &MalwareOutcome{Status: MalwareError, Evidence: []string{}, Error: msg}
	case ProbeBlacklist:
		return &BlacklistOutcome{Status: BlacklistError, ServicesChecked: []string{}, FlaggedBy: []string{}, Error: msg}
	case ProbeVulnerability:
		return &VulnerabilityOutcome{OutdatedSoftware: []string{}, Source: SourceNone, Error: msg}
	case ProbeHeaders:
		return &HeaderOutcome{Error: msg}
	case ProbeSSL:
		return &SSLOutcome{Grade: GradeIncomplete, Protocols: []string{}, Source: SourceNone, Error: msg}
	case ProbeFileIntegrity:
		return &FileIntegrityOutcome{SuspiciousFiles: []string{}, PermissionIssues: []string{}, Error: msg}
	case ProbeBasicHardening:
		return &BasicHardeningOutcome{ActiveSecurityPlugins: []string{}, Error: msg}
	}
	return nil
}

// ProbeResults maps each probe to its outcome. A nil slot means the probe
// had not reported when the record was written.
type ProbeResults struct {
	Malware        *MalwareOutcome        `json:"malware,omitempty"`
	Blacklist      *BlacklistOutcome      `json:"blacklist,omitempty"`
	Vulnerability  *VulnerabilityOutcome  `json:"vulnerability,omitempty"`
	Headers        *HeaderOutcome         `json:"headers,omitempty"`
	SSL            *SSLOutcome            `json:"ssl,omitempty"`
	FileIntegrity  *FileIntegrityOutcome  `json:"fileIntegrity,omitempty"`
	BasicHardening *BasicHardeningOutcome `json:"basicHardening,omitempty"`
}

// Set stores o in its slot. Unknown outcome types are ignored.
func (r *ProbeResults) Set(o Outcome) {
	switch v := o.(type) {
	case *MalwareOutcome:
		r.Malware = v
	case *BlacklistOutcome:
		r.Blacklist = v
	case *VulnerabilityOutcome:
		r.Vulnerability = v
	case *HeaderOutcome:
		r.Headers = v
	case *SSLOutcome:
		r.SSL = v
	case *FileIntegrityOutcome:
		r.FileIntegrity = v
	case *BasicHardeningOutcome:
		r.BasicHardening = v
	}
}

// Get returns the outcome stored for name, or nil.
func (r *ProbeResults) Get(name ProbeName) Outcome {
	switch name {
	case ProbeMalware:
		if r.Malware != nil {
			return r.Malware
		}
	case ProbeBlacklist:
		if r.Blacklist != nil {
			return r.Blacklist
		}
	case ProbeVulnerability:
		if r.Vulnerability != nil {
			return r.Vulnerability
		}
	case ProbeHeaders:
		if r.Headers != nil {
			return r.Headers
		}
	case ProbeSSL:
		if r.SSL != nil {
			return r.SSL
		}
	case ProbeFileIntegrity:
		if r.FileIntegrity != nil {
			return r.FileIntegrity
		}
	case ProbeBasicHardening:
		if r.BasicHardening != nil {
			return r.BasicHardening
		}
	}
	return nil
}

// Missing lists probes without an outcome, in AllProbes order.
func (r *ProbeResults) Missing() []ProbeName {
	var out []ProbeName
	for _, name := range AllProbes {
		if r.Get(name) == nil {
			out = append(out, name)
		}
	}
	return out
}

// FillMissing stores the fallback outcome for every empty slot.
func (r *ProbeResults) FillMissing(err error) {
	for _, name := range r.Missing() {
		r.Set(Fallback(name, err))
	}
}

// Degraded lists probes whose outcome is an error-fallback value.
func (r *ProbeResults) Degraded() []ProbeName {
	var out []ProbeName
	for _, name := range AllProbes {
		if o := r.Get(name); o != nil && o.Degraded() {
			out = append(out, name)
		}
	}
	return out
}
