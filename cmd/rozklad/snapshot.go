package main

import (
	"github.com/spf13/cobra"

	"rozklad/internal/capture"
	appLog "rozklad/internal/log"
)

func (a *App) snapshotCmd() *cobra.Command {
	var url, output string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a PNG of the week page from a running server",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			opts := a.captureOptions(url)
			if output != "" {
				opts.OutputPath = output
			}
			if err := capture.WeekPNG(ctx, opts); err != nil {
				return err
			}
			appLog.Info("snapshot written", "url", opts.URL, "path", opts.OutputPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Page to capture (default: public URL with the default group)")
	cmd.Flags().StringVar(&output, "output", "", "PNG path (default: preview.png in the data dir)")
	return cmd
}
