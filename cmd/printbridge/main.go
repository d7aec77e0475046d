package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/printbridge/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "job":
		return runJobNoun(args)
	case "printer":
		return runPrinterNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "doctor":
		return runDoctor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: printbridge version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("printbridge %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`printbridge - bridges an online ordering server to a network receipt printer

Usage:
  printbridge <noun> <action> [flags]

Core Resources (Nouns):
  system    Bridge lifecycle and health
  config    Configuration and integrity
  job       Print job history
  printer   Direct printer checks

System Commands:
  system start      Run the bridge (interactive console, or --headless)
  system status     Show config, state database and instance state
  system doctor     Validate config and probe the printer and order server
  system watch      Follow a running bridge through its status API

Config Commands:
  config init       Write a starter config.yaml
  config lock       Authorize current config (write integrity hashes)
  config check      Validate configuration
  config show       Print the resolved configuration

Job Commands:
  job list          Show recent job outcomes from the journal

Printer Commands:
  printer status    Query the printer's status bytes once
  printer test      Print a test ticket

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Console commands (while running):
  stop, set-refresh <seconds>, set-status-refresh <seconds>, help, status

Use 'printbridge <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "doctor":
		if hasHelpFlag(actionArgs) {
			printSystemDoctorHelp()
			return 0
		}
		return runDoctor(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "init":
		if hasHelpFlag(actionArgs) {
			printConfigInitHelp()
			return 0
		}
		return runConfigInit(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		if hasHelpFlag(args[1:]) {
			printJobListHelp()
			return 0
		}
		return runJobList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", args[0])
		return 1
	}
}

func runPrinterNoun(args []string) int {
	if len(args) < 1 {
		printPrinterNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printPrinterNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "status":
		if hasHelpFlag(args[1:]) {
			printPrinterStatusHelp()
			return 0
		}
		return runPrinterStatus(args[1:])
	case "test":
		if hasHelpFlag(args[1:]) {
			printPrinterTestHelp()
			return 0
		}
		return runPrinterTest(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown printer action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func loadConfigForTool(configPath string) (*config.Config, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// resolveConfigPath falls back to config discovery when no path was given.
func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DiscoverConfigDir()
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: printbridge system <action>")
	fmt.Fprintln(w, "Actions: start, status, doctor, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: printbridge config <action> [flags]")
	fmt.Fprintln(w, "Actions: init, lock, check, show")
}

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: printbridge job <action>")
	fmt.Fprintln(w, "Actions: list")
}

func printPrinterNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: printbridge printer <action>")
	fmt.Fprintln(w, "Actions: status, test")
}

func printSystemStartHelp() {
	fmt.Println("Usage: printbridge system start [--config PATH] [--headless]")
	fmt.Println("Run the bridge. Without --headless an interactive console is shown;")
	fmt.Println("with --headless logs go to stdout and SIGINT/SIGTERM stop the bridge.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: printbridge system status [--config PATH] [--json]")
	fmt.Println("Show config readiness, state database and whether a bridge instance is running.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printSystemDoctorHelp() {
	fmt.Println("Usage: printbridge system doctor [--config PATH] [--offline] [--strict] [--json]")
	fmt.Println("Validate configuration, then probe the printer and the order server.")
	fmt.Println("--offline skips the probes.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: printbridge system watch [--api-url URL] [--api-key KEY]")
	fmt.Println("Follow a running bridge through its status API (api.enabled must be true).")
	fmt.Println("The API key may also come from PRINTBRIDGE_API_KEY.")
}

func printConfigInitHelp() {
	fmt.Println("Usage: printbridge config init [--dir PATH] [--client-id ID] [--site-url URL]")
	fmt.Println("                               [--printer-id ID] [--printer-name NAME] [--printer-ip IP] [--printer-port PORT] [--force]")
	fmt.Println("Write a starter config.yaml.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: printbridge config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize the current configuration by writing BLAKE3 integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: printbridge config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate configuration without contacting the printer or the server.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: printbridge config show [--config PATH] [--json]")
	fmt.Println("Show the resolved configuration.")
}

func printJobListHelp() {
	fmt.Println("Usage: printbridge job list [--config PATH] [--limit N] [--json]")
	fmt.Println("Show recent job outcomes, newest first.")
}

func printPrinterStatusHelp() {
	fmt.Println("Usage: printbridge printer status [--config PATH] [--json]")
	fmt.Println("Connect to the printer and read its status bytes once.")
}

func printPrinterTestHelp() {
	fmt.Println("Usage: printbridge printer test [--config PATH]")
	fmt.Println("Send an ESC/POS test ticket to the printer.")
}
