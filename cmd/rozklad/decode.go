package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"rozklad/internal/decode"
	"rozklad/internal/ics"
	appLog "rozklad/internal/log"
	"rozklad/internal/model"
	"rozklad/internal/xlsx"
)

func (a *App) decodeCmd() *cobra.Command {
	var (
		layout  string
		sheet   string
		format  string
		group   int
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "decode <workbook.xlsx>",
		Short: "Decode a local workbook and print its sessions",
		Long: `Decode a local workbook with the configured layout and print the
sessions as text, JSON or iCalendar. Nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				DisableColor()
			}
			if layout != "" {
				a.cfg.Layout = layout
			}
			if sheet == "" {
				sheet = a.cfg.Sheet
			}
			dec, err := a.cfg.Decoder()
			if err != nil {
				return err
			}

			g, err := xlsx.LoadFile(args[0], xlsx.Options{Sheet: sheet})
			if err != nil {
				return err
			}
			res, err := dec.Decode(g)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}
			for _, s := range res.Skipped {
				appLog.Debug("cell skipped", "cell", s.String())
			}
			appLog.Info("workbook decoded", "path", args[0], "sessions", len(res.Sessions), "skipped", len(res.Skipped))

			sessions := filterGroup(res.Sessions, group)
			return a.writeSessions(cmd.OutOrStdout(), format, sessions, res)
		},
	}
	cmd.Flags().StringVar(&layout, "layout", "", "Workbook layout: slot_grid or text_range (default from config)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet name (default: active sheet)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or ics")
	cmd.Flags().IntVar(&group, "group", 0, "Only print this group (0 = all)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored text output")
	return cmd
}

func (a *App) writeSessions(w io.Writer, format string, sessions []model.Session, res decode.Result) error {
	switch format {
	case "json":
		type skipped struct {
			Row    int    `json:"row"`
			Col    int    `json:"col"`
			Text   string `json:"text"`
			Reason string `json:"reason"`
		}
		out := struct {
			Sessions []model.Session `json:"sessions"`
			Skipped  []skipped       `json:"skipped"`
		}{Sessions: sessions, Skipped: []skipped{}}
		for _, s := range res.Skipped {
			out.Skipped = append(out.Skipped, skipped{Row: s.Row, Col: s.Col, Text: s.Text, Reason: s.Reason})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "ics":
		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}
		return ics.Export(w, sessions, ics.Options{Name: "Rozkład zajęć", Location: loc})
	case "text":
		// Everything before the subject takes a fixed textLead cells.
		const textLead = 61
		width := textWidth(w, textLead)
		for _, s := range sessions {
			if _, err := fmt.Fprintf(w, "%s %s gr %-3d %s-%s %s %s %s\n",
				s.Date.Format("2006-01-02"), pad(s.DayName, 13), s.Group, s.StartClock(), s.EndClock(),
				formatMuted(fmt.Sprintf("(+%3d)", s.SpacingBefore)), formatCategory(s.Category, 9), fit(s.Subject, width)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func filterGroup(sessions []model.Session, group int) []model.Session {
	if group == 0 {
		return sessions
	}
	var out []model.Session
	for _, s := range sessions {
		if s.Group == group {
			out = append(out, s)
		}
	}
	return out
}
