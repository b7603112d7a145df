// Package main provides the CLI entrypoint for deskwatch.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/deskwatch/internal/catalog"
	"github.com/sadopc/deskwatch/internal/config"
	"github.com/sadopc/deskwatch/internal/dailylog"
	"github.com/sadopc/deskwatch/internal/presence"
	"github.com/sadopc/deskwatch/internal/stats"
	"github.com/sadopc/deskwatch/internal/store"
	"github.com/sadopc/deskwatch/internal/tracker"
	"github.com/sadopc/deskwatch/internal/tui"
)

var (
	configPath string
	dataDir    string
	verbose    bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "deskwatch",
		Short:         "Presence-aware work block tracker",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runTUICmd,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides the config file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newIntervalsCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newSyncActualCmd())
	rootCmd.AddCommand(newImportCalendarCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// env holds what every command opens. Fields stay nil until opened.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	logs    *dailylog.Store
	catalog *catalog.Store
	store   *store.Store
	closers []io.Closer
}

// openEnv resolves the config and opens the daily logs and the catalog.
// logTo receives diagnostics; nil means stderr.
func openEnv(logTo io.Writer) (*env, error) {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if logTo == nil {
		logTo = os.Stderr
	}
	e.logger = slog.New(slog.NewTextHandler(logTo, &slog.HandlerOptions{Level: level}))

	e.logs, err = dailylog.New(cfg.LogDir, e.logger)
	if err != nil {
		return nil, err
	}
	e.catalog = catalog.Open(cfg.Catalog, e.logger)
	return e, nil
}

func (e *env) openStore() (*store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	if err := os.MkdirAll(filepath.Dir(e.cfg.Database), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}
	s, err := store.New(e.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	e.store = s
	e.closers = append(e.closers, s)
	return s, nil
}

// preferences reads the stored settings, falling back to the defaults.
func (e *env) preferences() store.Preferences {
	s, err := e.openStore()
	if err != nil {
		e.logger.Warn("using default settings", "err", err)
		return store.DefaultPreferences()
	}
	p, err := s.Preferences()
	if err != nil {
		e.logger.Warn("stored settings invalid; using defaults", "err", err)
		return store.DefaultPreferences()
	}
	return p
}

func (e *env) aggregator() *stats.Aggregator {
	agg := stats.NewAggregator(e.logs, e.logger)
	agg.WeekStart = e.preferences().WeekStart
	return agg
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			logErrf("failed to close: %v\n", err)
		}
	}
}

func runTUICmd(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// The terminal belongs to the interface, so diagnostics go to a file.
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	e, err := openEnv(logFile)
	if err != nil {
		return err
	}
	defer e.close()
	st, err := e.openStore()
	if err != nil {
		return err
	}
	prefs := e.preferences()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var manual *presence.ManualSampler
	var open presence.Opener
	if len(cfg.DetectorCommand) > 0 {
		open = presence.CommandOpener(cfg.DetectorCommand[0], cfg.DetectorCommand[1:], cfg.SampleTimeout)
	} else {
		manual = presence.NewManualSampler(0)
		open = manual.Opener()
	}
	monitor := presence.NewMonitor(open, presence.MonitorOptions{
		Device:     cfg.Device,
		Alternate:  cfg.Alternate,
		MaxRetries: cfg.MaxRetries,
		Logger:     e.logger,
	})
	go func() {
		if err := monitor.Run(ctx); err != nil {
			e.logger.Error("presence monitor stopped", "err", err)
		}
	}()

	var sessions sync.WaitGroup
	newSession := func() (*tracker.Runner, error) {
		p, err := st.Preferences()
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		drain(monitor.Detections())
		m := tracker.New(tracker.Options{
			Settings: p.Tracker,
			Sink:     e.logs,
			Tasks:    e.catalog.Focus(),
			Sessions: st,
			Logger:   e.logger,
		})
		r := tracker.NewRunner(m, monitor.Detections(), e.logger)
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			if err := r.Run(ctx); err != nil {
				e.logger.Error("session stopped", "err", err)
			}
		}()
		return r, nil
	}

	agg := stats.NewAggregator(e.logs, e.logger)
	app := tui.NewApp(tui.Deps{
		NewSession:  newSession,
		Manual:      manual,
		Aggregator:  agg,
		Catalog:     e.catalog,
		Store:       st,
		Preferences: prefs,
		Categories:  cfg.Categories,
	})
	program := tea.NewProgram(app, tea.WithAltScreen())
	_, runErr := program.Run()

	// Ending the context closes a running session before the logs and the
	// database are released.
	cancel()
	sessions.Wait()

	if runErr != nil {
		return fmt.Errorf("failed to run TUI: %w", runErr)
	}
	return nil
}

// drain discards detections queued while no session was listening.
func drain(ch <-chan presence.Detection) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func logErrf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
