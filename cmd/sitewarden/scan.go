package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sitewarden/internal/domain"
)

func newScanCmd(a *app) *cobra.Command {
	var output, apiKey, userID string
	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Scan a website once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := buildServices(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer svc.Close()

			var key *string
			if apiKey != "" {
				key = &apiKey
			}
			site, err := svc.websites.Register(ctx, args[0], userID, key)
			if err != nil {
				return err
			}
			rec, err := svc.scanner.Scan(ctx, domain.ScanRequest{WebsiteID: site.ID, UserID: userID})
			if err != nil {
				return err
			}
			if err := render(cmd.OutOrStdout(), rec, output); err != nil {
				return err
			}
			if rec.Status == domain.StatusFailed {
				return errors.New("scan failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "site API key for the pending-updates feed")
	cmd.Flags().StringVar(&userID, "user", "cli", "owner recorded on the website and scan")
	return cmd
}

func render(w io.Writer, rec domain.ScanRecord, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "yaml":
		// Round-trip through JSON so YAML keys match the API field names.
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		renderText(w, rec)
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}

func renderText(w io.Writer, rec domain.ScanRecord) {
	fmt.Fprintf(w, "Scan %s  %s\n", rec.ID, colorStatus(rec.Status))
	fmt.Fprintf(w, "URL:      %s\n", rec.URL)
	if rec.DurationSeconds != nil {
		fmt.Fprintf(w, "Duration: %.1fs\n", *rec.DurationSeconds)
	}
	if rec.OverallScore != nil && rec.ThreatLevel != nil {
		fmt.Fprintf(w, "Score:    %d/100\n", *rec.OverallScore)
		fmt.Fprintf(w, "Threat:   %s\n", colorThreat(*rec.ThreatLevel))
	}
	if rec.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:    %s\n", color.RedString(*rec.ErrorMessage))
	}
	if rec.ProbeResults == nil {
		return
	}
	fmt.Fprintln(w, "Probes:")
	for _, name := range domain.AllProbes {
		o := rec.ProbeResults.Get(name)
		if o == nil {
			continue
		}
		mark := color.GreenString("✓")
		if o.Degraded() {
			mark = color.YellowString("!")
		}
		fmt.Fprintf(w, "  %s %-15s %s\n", mark, name, describe(o))
	}
}

func describe(o domain.Outcome) string {
	switch v := o.(type) {
	case *domain.MalwareOutcome:
		return withError(fmt.Sprintf("%s, %d threats %s", v.Status, v.ThreatsDetected, list(v.Evidence)), v.Error)
	case *domain.BlacklistOutcome:
		return withError(fmt.Sprintf("%s, flagged by %s", v.Status, list(v.FlaggedBy)), v.Error)
	case *domain.VulnerabilityOutcome:
		return withError(fmt.Sprintf("core %d, plugins %d, themes %d, outdated %s (%s)",
			v.CoreVulnerabilities, v.PluginVulnerabilities, v.ThemeVulnerabilities, list(v.OutdatedSoftware), v.Source), v.Error)
	case *domain.HeaderOutcome:
		return withError(fmt.Sprintf("%d/%d headers present", v.Present(), domain.TotalHeaders), v.Error)
	case *domain.SSLOutcome:
		return withError(fmt.Sprintf("grade %s, certificate expires in %d days", v.Grade, v.CertExpiryDays), v.Error)
	case *domain.FileIntegrityOutcome:
		return withError(fmt.Sprintf("%d modified, exposed %s", v.CoreFilesModified, list(v.SuspiciousFiles)), v.Error)
	case *domain.BasicHardeningOutcome:
		return withError(fmt.Sprintf("admin secure %t, version hidden %t, login rate limited %t, plugins %s",
			v.AdminUserSecure, v.VersionHidden, v.LoginRateLimited, list(v.ActiveSecurityPlugins)), v.Error)
	}
	return ""
}

func withError(s, errMsg string) string {
	if errMsg == "" {
		return s
	}
	return s + " " + color.YellowString("("+errMsg+")")
}

func list(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	return "[" + strings.Join(items, ", ") + "]"
}

func colorStatus(s domain.ScanStatus) string {
	switch s {
	case domain.StatusCompleted:
		return color.New(color.FgGreen).Sprint("✓ " + string(s))
	case domain.StatusRunning:
		return color.New(color.FgYellow).Sprint("⟳ " + string(s))
	case domain.StatusFailed:
		return color.New(color.FgRed).Sprint("✗ " + string(s))
	}
	return string(s)
}

func colorThreat(t domain.ThreatLevel) string {
	label := strings.ToUpper(string(t))
	switch t {
	case domain.ThreatCritical:
		return color.New(color.FgRed, color.Bold).Sprint(label)
	case domain.ThreatHigh:
		return color.New(color.FgRed).Sprint(label)
	case domain.ThreatMedium:
		return color.New(color.FgYellow).Sprint(label)
	case domain.ThreatLow:
		return color.New(color.FgGreen).Sprint(label)
	}
	return label
}
