package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"rozklad/internal/gcal"
	appLog "rozklad/internal/log"
	"rozklad/internal/store"
)

func (a *App) gcalAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gcal-auth",
		Short: "Authorize Google Calendar access and save the token",
		Long: `Print the Google consent URL, read the authorization code from stdin
and save the resulting token to gcal.token_file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			g := a.cfg.GCal
			oc, err := gcal.OAuthConfig(g.CredentialsFile)
			if err != nil {
				return err
			}

			authURL := oc.AuthCodeURL("rozklad", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
			fmt.Fprintf(cmd.OutOrStdout(), "Open this link, grant access and paste the code:\n\n%s\n\ncode: ", authURL)

			code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && strings.TrimSpace(code) == "" {
				return fmt.Errorf("reading authorization code: %w", err)
			}
			tok, err := oc.Exchange(ctx, strings.TrimSpace(code))
			if err != nil {
				return fmt.Errorf("exchanging authorization code: %w", err)
			}
			if err := gcal.SaveToken(g.TokenFile, tok); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}
			appLog.Info("google calendar token saved", "token_file", g.TokenFile)
			return nil
		},
	}
}

func (a *App) gcalSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gcal-sync",
		Short: "Push the stored sessions to Google Calendar",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			syncer, err := a.newSyncer(ctx)
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(ctx, store.Query{})
			if err != nil {
				return err
			}
			stats, err := syncer.Sync(ctx, sessions, time.Now())
			appLog.Info("google calendar sync done",
				"inserted", stats.Inserted,
				"updated", stats.Updated,
				"skipped", stats.Skipped,
				"failed", stats.Failed,
				"deleted", stats.Deleted,
			)
			return err
		},
	}
}
