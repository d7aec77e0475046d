package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mattjoyce/printbridge/internal/config"
	"github.com/mattjoyce/printbridge/internal/printer"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.ClientID = "client-1"
	cfg.SiteURL = "https://orders.example.com/"
	cfg.Printer = config.PrinterConfig{ID: "p1", Name: "Kitchen", IP: "10.0.0.20", Port: "9100"}
	return cfg
}

type stubPrinter struct {
	status printer.Status
	err    error
}

func (s stubPrinter) Probe(context.Context) (printer.Status, error) { return s.status, s.err }

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingIdentity(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.ClientID = ""
	cfg.Printer.IP = " "
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "identity", "client_id")
	assertHasError(t, r, "identity", "printer.ip")
	if len(r.Errors) != 2 {
		t.Fatalf("expected 2 errors, got: %v", r.Errors)
	}
}

func TestValidate_PlaintextSiteURL(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.SiteURL = "http://orders.example.com/"
	assertHasWarning(t, New(cfg).Validate(), "server", "clear text")

	cfg.SiteURL = "http://127.0.0.1:5000/"
	if r := New(cfg).Validate(); len(r.Warnings) != 0 {
		t.Fatalf("loopback http should not warn: %v", r.Warnings)
	}
}

func TestValidate_APIWithoutKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.Listen = "0.0.0.0:8686"
	assertHasWarning(t, New(cfg).Validate(), "api", "without an api_key")

	cfg.API.Listen = "127.0.0.1:8686"
	if r := New(cfg).Validate(); len(r.Warnings) != 0 {
		t.Fatalf("loopback API should not warn: %v", r.Warnings)
	}

	cfg.API.Listen = ""
	assertHasError(t, New(cfg).Validate(), "api", "api.listen")
}

func TestValidate_ShortIntervals(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Service.RefreshInterval = cfg.Service.LoopResolution / 2
	r := New(cfg).Validate()
	assertHasWarning(t, r, "intervals", "very short")
	assertHasWarning(t, r, "intervals", "coarser")
	assertHasWarning(t, r, "intervals", "http timeout")
}

func TestValidate_UnresolvedEnvVar(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Auth.APIKey = "${PB_DOCTOR_UNSET_KEY}"
	assertHasWarning(t, New(cfg).Validate(), "env_vars", "PB_DOCTOR_UNSET_KEY")
}

func TestCheck_PrinterUnreachable(t *testing.T) {
	t.Parallel()
	d := New(validConfig(), WithPrinter(stubPrinter{err: printer.ErrPrinterUnreachable}))
	r := d.Check(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "printer", "did not answer")
}

func TestCheck_PrinterWarnings(t *testing.T) {
	t.Parallel()
	st := printer.Status{Online: printer.True, CoverOpen: printer.True, PaperOut: printer.False, PaperLow: printer.True}
	r := New(validConfig(), WithPrinter(stubPrinter{status: st})).Check(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "printer", "cover is open")
	assertHasWarning(t, r, "printer", "paper is low")
}

func TestCheck_Server(t *testing.T) {
	t.Parallel()
	var method string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cfg := validConfig()
	cfg.SiteURL = ts.URL + "/"
	r := New(cfg, WithHTTPClient(ts.Client())).Check(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	if method != http.MethodHead {
		t.Fatalf("method = %s, want HEAD", method)
	}
	assertHasWarning(t, r, "server", "503")

	ts.Close()
	r = New(cfg, WithHTTPClient(ts.Client())).Check(context.Background())
	assertHasError(t, r, "server", "unreachable")
}

func TestCheck_SkipsProbesWhenInvalid(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.ClientID = ""
	probed := false
	d := New(cfg, WithPrinter(probeFunc(func() error { probed = true; return errors.New("x") })))
	d.Check(context.Background())
	if probed {
		t.Fatal("printer probed despite invalid config")
	}
}

type probeFunc func() error

func (f probeFunc) Probe(context.Context) (printer.Status, error) { return printer.Status{}, f() }

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bad thing") {
		t.Fatalf("expected JSON to contain error message, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken") {
		t.Fatalf("expected error in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && (strings.Contains(e.Message, substring) || e.Field == substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
