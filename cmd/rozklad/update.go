package main

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func (a *App) updateCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check the source page once and import a new workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

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
			out, err := updater.Check(ctx, force)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Import even if the update date and link are unchanged")
	return cmd
}
