package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rozklad/internal/config"
	appLog "rozklad/internal/log"
)

var (
	// Version is set at build time
	Version = "dev"
	// Commit is set at build time
	Commit = "none"
)

// App holds the CLI application state.
type App struct {
	configPath string
	envFile    string
	debug      bool

	cfg  *config.Config
	root *cobra.Command
}

func newApp() *App {
	a := &App{}

	a.root = &cobra.Command{
		Use:   "rozklad",
		Short: "Course schedule publisher",
		Long: `Rozklad watches the faculty page for a new timetable workbook, decodes
its sessions and publishes them as a week view, a JSON API and an
iCalendar feed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.loadConfig()
		},
	}

	a.root.PersistentFlags().StringVar(&a.configPath, "config", "/etc/rozklad/config.yaml", "Path to config file")
	a.root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Optional KEY=VALUE file applied before ROZKLAD_* overrides")
	a.root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	a.root.AddCommand(a.versionCmd())
	a.root.AddCommand(a.serveCmd())
	a.root.AddCommand(a.updateCmd())
	a.root.AddCommand(a.decodeCmd())
	a.root.AddCommand(a.snapshotCmd())
	a.root.AddCommand(a.gcalAuthCmd())
	a.root.AddCommand(a.gcalSyncCmd())

	return a
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.root.Execute()
}

func (a *App) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("rozklad %s (commit: %s)\n", Version, Commit)
		},
	}
}

// loadConfig reads the config file (writing defaults on first run), applies
// environment overrides, validates, and configures logging.
func (a *App) loadConfig() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		if cfg == nil {
			return fmt.Errorf("loading config %s: %w", a.configPath, err)
		}
		appLog.Warn("could not write default config; using defaults", "config_path", a.configPath, "err", err)
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := appLog.ParseLevel(cfg.Log.Level)
	if a.debug {
		level = appLog.LevelDebug
	}
	if err := appLog.Setup(appLog.Options{Level: level, Format: cfg.Log.Format, Output: cfg.Log.Output}); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	a.cfg = cfg
	appLog.Debug("effective config",
		"config_path", a.configPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"data_dir", cfg.DataDir,
		"layout", cfg.Layout,
		"default_group", cfg.DefaultGroup,
		"schedule", cfg.Schedule.Specs,
		"archive", cfg.Archive.Enabled,
		"gcal", cfg.GCal.Enabled,
		"capture", cfg.Capture.Enabled,
	)
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
