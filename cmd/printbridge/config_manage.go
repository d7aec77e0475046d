package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/printbridge/internal/config"
	"github.com/mattjoyce/printbridge/internal/doctor"
)

func runConfigInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	dir := fs.String("dir", "", "Config directory (default ~/.config/printbridge)")
	clientID := fs.String("client-id", "", "Client id issued by the order server")
	siteURL := fs.String("site-url", "", "Order server base URL")
	printerID := fs.String("printer-id", "", "Printer id registered on the order server")
	printerName := fs.String("printer-name", "", "Printer display name")
	printerIP := fs.String("printer-ip", "", "Printer IP address")
	printerPort := fs.String("printer-port", "9100", "Printer raw TCP port")
	force := fs.Bool("force", false, "Overwrite an existing config.yaml")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	target := *dir
	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot resolve home directory, use --dir: %v\n", err)
			return 1
		}
		target = filepath.Join(home, ".config", "printbridge")
	}
	path := filepath.Join(target, config.ConfigFileName)

	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists (use --force to overwrite)\n", path)
		return 1
	}

	cfg := config.Defaults()
	cfg.ClientID = *clientID
	cfg.SiteURL = *siteURL
	cfg.Printer = config.PrinterConfig{
		ID:   *printerID,
		Name: *printerName,
		IP:   *printerIP,
		Port: *printerPort,
	}
	cfg.State.Path = filepath.Join(target, "data", "state.db")
	cfg.Service.LogFile = filepath.Join(target, "data", "printbridge.log")

	if err := config.Write(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		return 1
	}

	fmt.Printf("Wrote %s\n", path)
	if err := cfg.Ready(); err != nil {
		fmt.Printf("Still to fill in: %v\n", err)
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}
	file, err := config.ResolveConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	report, err := config.LockConfig(file, dryRun, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock %s: %v\n", file, err)
		return 1
	}

	if verbose || verboseShort {
		fmt.Printf("HASH %s %s\n", report.Hash, filepath.Base(report.ConfigFile))
	}
	if report.Written {
		fmt.Printf("Locked %s\n", report.ChecksumPath)
	} else {
		fmt.Printf("Dry run: %s not written\n", report.ChecksumPath)
	}
	return 0
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool
	var format string

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	return printDoctorResult(doctor.New(cfg).Validate(), format, strict)
}

func printDoctorResult(result *doctor.Result, format string, strict bool) int {
	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if cfg.API.Auth.APIKey != "" {
		cfg.API.Auth.APIKey = "<redacted>"
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(cfg)
		fmt.Print(string(data))
	}
	return 0
}
