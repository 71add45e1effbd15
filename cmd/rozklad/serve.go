package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	appLog "rozklad/internal/log"
	"rozklad/internal/scheduler"
	"rozklad/internal/web"
)

func (a *App) serveCmd() *cobra.Command {
	var listen string
	var once bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the week page and check for updates on schedule",
		RunE: func(_ *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			ctx, cancel := signalContext()
			defer cancel()
			return a.serve(ctx, once)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&once, "once", false, "Run one update check and exit")
	return cmd
}

func (a *App) serve(ctx context.Context, once bool) error {
	cfg := a.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	appLog.Info("rozklad starting", "version", Version, "listen", cfg.Listen, "once", once)

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	updater, closeUpdater, err := a.newUpdater(ctx, st)
	if err != nil {
		return err
	}
	defer closeUpdater()

	if once {
		out, err := updater.Check(ctx, false)
		if err != nil {
			return err
		}
		appLog.Info("update check done", "status", out.Status, "sessions", out.Sessions, "skipped", out.Skipped)
		return nil
	}

	srv, err := web.NewServer(cfg, st, updater)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.Schedule.Enabled {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		sched, err := scheduler.New(loc, cfg.Schedule.Specs, cfg.Schedule.StartupDelay, func(ctx context.Context) {
			out, err := updater.Check(ctx, false)
			if err != nil {
				appLog.Error("scheduled update failed", err)
				return
			}
			appLog.Info("scheduled update done", "status", out.Status, "sessions", out.Sessions, "skipped", out.Skipped)
		})
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	err = srv.ListenAndServe(ctx, cfg.Listen)
	// The scheduler also stops when the listener fails.
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("rozklad exiting")
	return nil
}
