// Package doctor validates printbridge configuration and, on request, checks
// that the printer and the order server can be reached.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/printbridge/internal/config"
	"github.com/mattjoyce/printbridge/internal/printer"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// PrinterProber reads printer status. *printer.Link satisfies it.
type PrinterProber interface {
	Probe(ctx context.Context) (printer.Status, error)
}

// Doctor validates a loaded config.
type Doctor struct {
	cfg     *config.Config
	printer PrinterProber
	client  *http.Client
}

// Option configures connectivity checks.
type Option func(*Doctor)

// WithPrinter enables the printer reachability check.
func WithPrinter(p PrinterProber) Option {
	return func(d *Doctor) { d.printer = p }
}

// WithHTTPClient enables the order server reachability check.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Doctor) { d.client = c }
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config, opts ...Option) *Doctor {
	d := &Doctor{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Validate runs the static checks.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateIdentity(r)
	d.validateSiteURL(r)
	d.validateAPIConfig(r)
	d.warnIntervals(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

// Check runs Validate and then the connectivity checks that were enabled.
func (d *Doctor) Check(ctx context.Context) *Result {
	r := d.Validate()
	if !r.Valid {
		return r
	}
	if d.printer != nil {
		d.checkPrinter(ctx, r)
	}
	if d.client != nil {
		d.checkServer(ctx, r)
	}
	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateIdentity reports every setting the bridge cannot start without.
func (d *Doctor) validateIdentity(r *Result) {
	required := []struct{ field, value string }{
		{"printer.id", d.cfg.Printer.ID},
		{"printer.ip", d.cfg.Printer.IP},
		{"printer.port", d.cfg.Printer.Port},
		{"printer.name", d.cfg.Printer.Name},
		{"client_id", d.cfg.ClientID},
		{"site_url", d.cfg.SiteURL},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			d.addError(r, "identity", f.field, f.field+" is required")
		}
	}
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
}

func (d *Doctor) validateSiteURL(r *Result) {
	if d.cfg.SiteURL == "" {
		return
	}
	u, err := url.Parse(d.cfg.SiteURL)
	if err != nil || u.Host == "" {
		d.addError(r, "server", "site_url", fmt.Sprintf("site_url %q is not an absolute URL", d.cfg.SiteURL))
		return
	}
	if u.Scheme != "https" && !isLoopback(u.Hostname()) {
		d.addWarning(r, "server", "site_url", "site_url is not https; client id and job payloads travel in clear text")
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	if d.cfg.API.Auth.APIKey == "" {
		host, _, err := net.SplitHostPort(d.cfg.API.Listen)
		if err != nil || !isLoopback(host) {
			d.addWarning(r, "api", "api.auth.api_key", "API listens beyond loopback without an api_key")
		}
	}
}

// warnIntervals flags cadences that would hammer the server or the printer.
func (d *Doctor) warnIntervals(r *Result) {
	s := d.cfg.Service
	if s.RefreshInterval > 0 && s.RefreshInterval < time.Second {
		d.addWarning(r, "intervals", "service.refresh_interval",
			fmt.Sprintf("refresh interval %s is very short (< 1s)", s.RefreshInterval))
	}
	if s.StatusInterval > 0 && s.StatusInterval < time.Second {
		d.addWarning(r, "intervals", "service.status_interval",
			fmt.Sprintf("status interval %s is very short (< 1s)", s.StatusInterval))
	}
	if s.LoopResolution > s.RefreshInterval || s.LoopResolution > s.StatusInterval {
		d.addWarning(r, "intervals", "service.loop_resolution",
			"loop resolution is coarser than a polling interval; polls will run late")
	}
	if s.HTTPTimeout > s.RefreshInterval {
		d.addWarning(r, "intervals", "service.http_timeout",
			"http timeout exceeds the refresh interval; a slow server delays every cycle")
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars warns about ${VAR} references that were left unexpanded.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := []struct{ field, value string }{
		{"client_id", d.cfg.ClientID},
		{"printer.id", d.cfg.Printer.ID},
		{"api.auth.api_key", d.cfg.API.Auth.APIKey},
		{"state.path", d.cfg.State.Path},
	}
	for _, f := range fields {
		for _, m := range envVarRe.FindAllStringSubmatch(f.value, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", f.field, fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

// checkPrinter probes both status classes.
func (d *Doctor) checkPrinter(ctx context.Context, r *Result) {
	field := "printer"
	st, err := d.printer.Probe(ctx)
	if err != nil {
		d.addError(r, "printer", field, fmt.Sprintf("printer %s did not answer: %v", d.cfg.Printer.Address(), err))
		return
	}
	if st.CoverOpen == printer.True {
		d.addWarning(r, "printer", field, "cover is open")
	}
	if st.PaperOut == printer.True {
		d.addWarning(r, "printer", field, "paper is out")
	} else if st.PaperLow == printer.True {
		d.addWarning(r, "printer", field, "paper is low")
	}
}

// checkServer only proves the site answers HTTP; it never checks in, so no jobs are pulled.
func (d *Doctor) checkServer(ctx context.Context, r *Result) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.cfg.SiteURL, nil)
	if err != nil {
		d.addError(r, "server", "site_url", fmt.Sprintf("build request: %v", err))
		return
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.addError(r, "server", "site_url", fmt.Sprintf("order server unreachable: %v", err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		d.addWarning(r, "server", "site_url", fmt.Sprintf("order server answered %d", resp.StatusCode))
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
