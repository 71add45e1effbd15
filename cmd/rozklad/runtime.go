package main

import (
	"context"
	"fmt"
	"strconv"

	"rozklad/internal/archive"
	"rozklad/internal/capture"
	"rozklad/internal/gcal"
	appLog "rozklad/internal/log"
	"rozklad/internal/notify"
	"rozklad/internal/source"
	"rozklad/internal/store"
	"rozklad/internal/update"
)

func (a *App) openStore() (*store.SQLite, error) {
	st, err := store.New(a.cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

// newUpdater wires the update pipeline with the optional stages enabled in
// the config. A calendar or broker that cannot be reached is logged and
// skipped. The returned func releases the broker connection.
func (a *App) newUpdater(ctx context.Context, st *store.SQLite) (*update.Updater, func(), error) {
	cfg := a.cfg

	dec, err := cfg.Decoder()
	if err != nil {
		return nil, nil, err
	}
	fetcher := source.NewFetcher(cfg.CacheDir(), cfg.Source.Timeout, cfg.Source.UserAgent)

	u, err := update.New(update.Options{
		PageURL:      cfg.Source.PageURL,
		Match:        cfg.Source.Match,
		Exclude:      cfg.Source.Exclude,
		Sheet:        cfg.Sheet,
		WorkbookPath: cfg.WorkbookPath(),
	}, fetcher, st, dec)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Archive.Enabled {
		m, err := archive.NewMinio(archive.Options{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			Region:    cfg.Archive.Region,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		u.WithArchive(m)
	}

	if cfg.GCal.Enabled {
		syncer, err := a.newSyncer(ctx)
		if err != nil {
			appLog.Error("google calendar sync disabled", err, "token_file", cfg.GCal.TokenFile)
		} else {
			u.WithSync(syncer)
		}
	}

	if cfg.Capture.Enabled {
		opts := a.captureOptions("")
		u.WithPreview(func(ctx context.Context) error {
			return capture.WeekPNG(ctx, opts)
		})
	}

	closeFn := func() {}
	if cfg.Notify.Enabled {
		n, err := notify.NewRabbitMQ(cfg.Notify.URL, cfg.Notify.Queue)
		if err != nil {
			appLog.Error("update notifications disabled", err, "queue", cfg.Notify.Queue)
		} else {
			u.WithNotify(n)
			closeFn = func() {
				if err := n.Close(); err != nil {
					appLog.Error("closing notifier failed", err)
				}
			}
		}
	}
	return u, closeFn, nil
}

func (a *App) newSyncer(ctx context.Context) (*gcal.Syncer, error) {
	g := a.cfg.GCal
	svc, err := gcal.NewService(ctx, g.CredentialsFile, g.TokenFile)
	if err != nil {
		return nil, err
	}
	return gcal.NewSyncer(svc, gcal.Options{
		CalendarID:  g.CalendarID,
		ColorID:     g.ColorID,
		TimeZone:    g.TimeZone,
		Groups:      g.Groups,
		HorizonDays: g.HorizonDays,
	})
}

// captureOptions targets url, or the default group's week page when empty.
func (a *App) captureOptions(url string) capture.Options {
	cfg := a.cfg
	if url == "" {
		url = cfg.PublicURL + "/?group=" + strconv.Itoa(cfg.DefaultGroup)
	}
	opts := capture.Options{
		URL:        url,
		OutputPath: cfg.PreviewPath(),
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
		Timeout:    cfg.Capture.Timeout,
	}
	if cfg.BasicAuth != nil {
		opts.Username = cfg.BasicAuth.Username
		opts.Password = cfg.BasicAuth.Password
		if cfg.Capture.Password != "" {
			opts.Password = cfg.Capture.Password
		}
	}
	return opts
}
