package signals

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"sitewarden/internal/ports"
)

// VirusTotal reads the last URL analysis held by VirusTotal v3.
type VirusTotal struct {
	baseURL string
	key     string
	api     apiClient
}

var _ ports.MalwareVerdicts = (*VirusTotal)(nil)

func NewVirusTotal(opts Options) *VirusTotal {
	return &VirusTotal{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		key:     opts.Token,
		api:     newAPIClient(opts),
	}
}

type vtURLObject struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats map[string]int `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// URLVerdict returns the engine counts for rawurl. A URL VirusTotal has never
// seen is reported as a zero verdict.
func (v *VirusTotal) URLVerdict(ctx context.Context, rawurl string) (ports.Verdict, error) {
	id := base64.RawURLEncoding.EncodeToString([]byte(rawurl))

	header := http.Header{}
	header.Set("x-apikey", v.key)

	var obj vtURLObject
	if err := v.api.getJSON(ctx, v.baseURL+"/urls/"+id, header, &obj); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return ports.Verdict{}, nil
		}
		return ports.Verdict{}, fmt.Errorf("virustotal url verdict: %w", err)
	}

	stats := obj.Data.Attributes.LastAnalysisStats
	verdict := ports.Verdict{
		Malicious:  stats["malicious"],
		Suspicious: stats["suspicious"],
	}
	for _, n := range stats {
		verdict.Total += n
	}
	return verdict, nil
}
