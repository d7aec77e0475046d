package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/printbridge/internal/config"
	"github.com/mattjoyce/printbridge/internal/doctor"
	"github.com/mattjoyce/printbridge/internal/journal"
	"github.com/mattjoyce/printbridge/internal/lock"
	"github.com/mattjoyce/printbridge/internal/printer"
	"github.com/mattjoyce/printbridge/internal/storage"
	"github.com/mattjoyce/printbridge/internal/tui/watch"
)

type statusCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	ActivePID int    `json:"active_pid,omitempty"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Running bool          `json:"running"`
	Checks  []statusCheck `json:"checks"`
}

// runSystemStatus reports whether the bridge could start: config loads and is
// complete, the state database opens, and whether an instance already runs.
func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := statusReport{Healthy: true}
	add := func(c statusCheck) {
		report.Checks = append(report.Checks, c)
		if !c.OK {
			report.Healthy = false
		}
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		add(statusCheck{Name: "config_load", Detail: err.Error()})
		add(statusCheck{Name: "config_ready", Detail: "skipped: config not loaded"})
		add(statusCheck{Name: "state_db", Detail: "skipped: config not loaded"})
		add(statusCheck{Name: "instance", Detail: "skipped: config not loaded"})
		return printStatusReport(report, *jsonOut)
	}
	add(statusCheck{Name: "config_load", OK: true})
	add(configLockCheck(*configPath))

	if err := cfg.Ready(); err != nil {
		add(statusCheck{Name: "config_ready", Detail: err.Error()})
	} else {
		add(statusCheck{Name: "config_ready", OK: true})
	}

	pid, held, err := lock.Holder(getPIDLockPath(cfg))
	switch {
	case err != nil:
		add(statusCheck{Name: "instance", Detail: err.Error()})
	case held:
		report.Running = true
		add(statusCheck{Name: "instance", OK: true, Detail: "running", ActivePID: pid})
	default:
		add(statusCheck{Name: "instance", OK: true, Detail: "not running"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if db, err := storage.OpenSQLite(ctx, cfg.State.Path); err != nil {
		add(statusCheck{Name: "state_db", Detail: err.Error()})
	} else {
		_ = db.Close()
		add(statusCheck{Name: "state_db", OK: true, Detail: cfg.State.Path})
	}

	return printStatusReport(report, *jsonOut)
}

func configLockCheck(configPath string) statusCheck {
	c := statusCheck{Name: "config_lock", OK: true}
	path, err := resolveConfigPath(configPath)
	if err == nil {
		path, err = config.ResolveConfigFile(path)
	}
	if err != nil {
		c.OK, c.Detail = false, err.Error()
		return c
	}
	switch err := config.VerifyLocked(path); {
	case err == nil:
		c.Detail = "locked"
	case errors.Is(err, config.ErrNotLocked):
		c.Detail = "not locked"
	default:
		c.OK, c.Detail = false, err.Error()
	}
	return c
}

func printStatusReport(report statusReport, jsonOut bool) int {
	if jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		for _, c := range report.Checks {
			result := "OK"
			if !c.OK {
				result = "FAIL"
			}
			line := fmt.Sprintf("%s: %s", c.Name, result)
			if c.Detail != "" {
				line += " (" + c.Detail + ")"
			}
			if c.ActivePID > 0 {
				line += fmt.Sprintf(" pid %d", c.ActivePID)
			}
			fmt.Println(line)
		}
	}
	if !report.Healthy {
		return 1
	}
	return 0
}

func runDoctor(args []string) int {
	var configPath string
	var strict, jsonOut, offline bool

	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	fs.BoolVar(&offline, "offline", false, "Skip printer and server probes")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	var opts []doctor.Option
	if !offline {
		link := printer.NewLink(cfg.Printer.Address(), cfg.Service.PrinterTimeout)
		defer link.Close()
		opts = append(opts,
			doctor.WithPrinter(link),
			doctor.WithHTTPClient(&http.Client{Timeout: cfg.Service.HTTPTimeout}),
		)
	}

	format := "human"
	if jsonOut {
		format = "json"
	}
	result := doctor.New(cfg, opts...).Check(context.Background())
	return printDoctorResult(result, format, strict)
}

func runJobList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Number of entries to show")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be positive")
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := journal.New(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	if len(entries) == 0 {
		fmt.Println("No jobs recorded.")
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tJOB\tOUTCOME\tBYTES\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			e.RecordedAt.Local().Format(time.DateTime), e.JobID, e.Outcome, e.Bytes, e.Error)
	}
	_ = tw.Flush()
	return 0
}

func printerFromConfig(configPath string) (*config.Config, *printer.Link, error) {
	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Printer.IP == "" {
		return nil, nil, fmt.Errorf("%w: printer.ip is empty", config.ErrNotConfigured)
	}
	return cfg, printer.NewLink(cfg.Printer.Address(), cfg.Service.PrinterTimeout), nil
}

func runPrinterStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, link, err := printerFromConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer link.Close()

	st, err := link.Probe(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Printer %s: %v\n", cfg.Printer.Address(), err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("%s (%s)\n", cfg.Printer.Name, cfg.Printer.Address())
	fmt.Printf("  online:     %s\n", st.Online)
	fmt.Printf("  cover open: %s\n", st.CoverOpen)
	fmt.Printf("  paper out:  %s\n", st.PaperOut)
	fmt.Printf("  paper low:  %s\n", st.PaperLow)
	return 0
}

func runPrinterTest(args []string) int {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, link, err := printerFromConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer link.Close()

	ticket := printer.DiagnosticTicket(cfg.Printer.Name, cfg.Printer.Address(), time.Now())
	if err := link.Write(context.Background(), ticket); err != nil {
		fmt.Fprintf(os.Stderr, "Printer %s: %v\n", cfg.Printer.Address(), err)
		return 1
	}
	fmt.Printf("Sent %d byte test ticket to %s\n", len(ticket), cfg.Printer.Address())
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8686", "Bridge status API URL")
	apiKey := fs.String("api-key", os.Getenv("PRINTBRIDGE_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
