package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/printbridge/internal/api"
	"github.com/mattjoyce/printbridge/internal/config"
	"github.com/mattjoyce/printbridge/internal/console"
	"github.com/mattjoyce/printbridge/internal/dispatch"
	"github.com/mattjoyce/printbridge/internal/events"
	"github.com/mattjoyce/printbridge/internal/interval"
	"github.com/mattjoyce/printbridge/internal/journal"
	"github.com/mattjoyce/printbridge/internal/lock"
	"github.com/mattjoyce/printbridge/internal/log"
	"github.com/mattjoyce/printbridge/internal/printer"
	"github.com/mattjoyce/printbridge/internal/state"
	"github.com/mattjoyce/printbridge/internal/storage"
)

// historySize bounds the in-memory event ring shared by the console and the API.
const historySize = 500

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	headless := fs.Bool("headless", false, "Run without the interactive console")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	hub := events.NewHub(historySize)
	out, closeOut, err := logOutput(cfg, *headless)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		return 1
	}
	defer closeOut()

	log.Setup(log.Options{
		Level:   cfg.Service.LogLevel,
		Format:  cfg.Service.LogFormat,
		Output:  out,
		History: hub,
	})
	logger := log.WithComponent("main")

	if err := cfg.Ready(); err != nil {
		logger.Error("System was unable to start.", "error", err)
		fmt.Fprintf(os.Stderr, "System was unable to start: %v\n", err)
		return 1
	}
	logger.Info("printbridge starting", "version", version, "config", *configPath, "headless", *headless)

	pidLockPath := getPIDLockPath(cfg)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()

	intervals := interval.NewStore(log.WithComponent("intervals"),
		interval.WithInitial(interval.Refresh, cfg.Service.RefreshInterval),
		interval.WithInitial(interval.Status, cfg.Service.StatusInterval),
		interval.WithPersistence(state.NewStore(db)),
	)
	if err := intervals.Load(ctx); err != nil {
		logger.Warn("could not restore saved intervals, using configured ones", "error", err)
	}

	jobs := journal.New(db)
	if n, err := jobs.Prune(ctx, cfg.Service.JournalRetention); err != nil {
		logger.Warn("journal prune failed", "error", err)
	} else if n > 0 {
		logger.Info("journal pruned", "removed", n, "retention", cfg.Service.JournalRetention)
	}

	link := printer.NewLink(cfg.Printer.Address(), cfg.Service.PrinterTimeout,
		printer.WithLogger(log.WithComponent("printer")))
	defer link.Close()

	server, err := dispatch.NewHTTPServer(cfg.SiteURL, cfg.Service.HTTPTimeout,
		dispatch.WithUserAgent("printbridge/"+version))
	if err != nil {
		logger.Error("System was unable to start.", "error", err)
		return 1
	}

	disp := dispatch.New(server, link, dispatch.Identity{
		ClientID:    cfg.ClientID,
		PrinterID:   cfg.Printer.ID,
		PrinterName: cfg.Printer.Name,
		SiteURL:     cfg.SiteURL,
	},
		dispatch.WithJournal(jobs),
		dispatch.WithEvents(hub),
		dispatch.WithLogger(log.WithComponent("dispatch")),
	)

	board := api.NewBoard()
	model, err := console.New(ctx, console.Config{
		PrinterID:   cfg.Printer.ID,
		PrinterName: cfg.Printer.Name,
		SiteURL:     cfg.SiteURL,
		Resolution:  cfg.Service.LoopResolution,
		Headless:    *headless,
	}, console.Deps{
		Link:       link,
		Dispatcher: disp,
		Intervals:  intervals,
		Counters:   disp.Counters(),
		History:    hub,
		Board:      board,
		Logger:     log.WithComponent("console"),
	})
	if err != nil {
		logger.Error("System was unable to start.", "error", err)
		return 1
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithoutSignalHandler()}
	if *headless {
		opts = append(opts, tea.WithInput(nil), tea.WithoutRenderer())
	} else {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(model, opts...)

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
		}, board, hub, jobs, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("API server failed", "error", err)
				p.Send(console.StopMsg{})
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			p.Send(console.StopMsg{})
		case <-ctx.Done():
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Error("console failed", "error", err)
		return 1
	}

	logger.Info("printbridge stopped")
	return 0
}

// logOutput picks the log writer: stdout when headless, otherwise the log
// file (or nowhere, since the console shows the history itself).
func logOutput(cfg *config.Config, headless bool) (io.Writer, func(), error) {
	if headless {
		return os.Stdout, func() {}, nil
	}
	if cfg.Service.LogFile == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Service.LogFile), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.Service.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// getPIDLockPath places the lock next to the state database.
func getPIDLockPath(cfg *config.Config) string {
	dbPath := cfg.State.Path
	dbDir := filepath.Dir(dbPath)
	dbBase := filepath.Base(dbPath)
	ext := filepath.Ext(dbBase)
	nameWithoutExt := dbBase[:len(dbBase)-len(ext)]
	return filepath.Join(dbDir, nameWithoutExt+".pid")
}
