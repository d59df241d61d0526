package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dbcal/internal/capture"
	"dbcal/internal/config"
	"dbcal/internal/ics"
	appLog "dbcal/internal/log"
	"dbcal/internal/refresh"
	"dbcal/internal/web"
)

var (
	serveListen string
	serveNoSync bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the API and calendar pages, refreshing feeds on schedule",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoSync, "no-refresh", false, "Do not import feeds or capture previews")
}

func runServe(_ *cobra.Command, _ []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if serveListen != "" {
		e.cfg.Listen = serveListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(e.cfg, e.store, e.loc)
	importer := refresh.NewImporter(e.store, e.fetcher(), e.cfg.Feeds, e.loc)

	if !serveNoSync {
		sched, err := refresh.NewScheduler(e.cfg.RefreshCron, refreshJobs(e, importer, srv)...)
		if err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		go runWhenReady(ctx, srv.Ready(), sched.RunOnce)

		if paths := importer.LocalPaths(); len(paths) > 0 {
			go func() {
				err := ics.Watch(ctx, paths, func(path string) {
					if err := importer.ImportPath(ctx, path); err != nil {
						appLog.Error("feed reload failed", err, "path", path)
						return
					}
					srv.Invalidate()
				})
				if err != nil {
					appLog.Error("feed watcher stopped", err)
				}
			}()
		}
	}

	appLog.Info("dbcal serving",
		"listen", e.cfg.Listen,
		"timezone", e.loc.String(),
		"week_start", e.cfg.WeekStart,
		"refresh", e.cfg.RefreshCron,
		"feeds", len(e.cfg.Feeds),
		"capture", e.cfg.Capture.Enabled,
	)
	err = srv.ListenAndServe(ctx)
	appLog.Info("dbcal exiting")
	return err
}

// runWhenReady calls run once ready is closed, so the first capture finds
// the server listening.
func runWhenReady(ctx context.Context, ready <-chan struct{}, run func(context.Context) error) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}
	_ = run(ctx)
}

func refreshJobs(e *env, importer *refresh.Importer, srv *web.Server) []refresh.Job {
	jobs := []refresh.Job{{
		Name: "feeds",
		Run: func(ctx context.Context) error {
			defer srv.Invalidate()
			return importer.ImportAll(ctx)
		},
	}}
	if e.cfg.Capture.Enabled {
		jobs = append(jobs, refresh.Job{
			Name: "capture",
			Run: func(ctx context.Context) error {
				_, err := capture.CalendarPNG(ctx, captureOptions(e.cfg, ""))
				return err
			},
		})
	}
	return jobs
}

func captureOptions(cfg *config.Config, output string) capture.Options {
	if output == "" {
		output = cfg.Capture.Output
	}
	return capture.Options{
		URL:    cfg.CaptureURL(),
		Output: output,
		Width:  cfg.Capture.Width,
		Height: cfg.Capture.Height,
	}
}
