package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"dbcal/internal/config"
	"dbcal/internal/ics"
	appLog "dbcal/internal/log"
	"dbcal/internal/refresh"
)

var (
	importFile       string
	importCollection string

	importCmd = &cobra.Command{
		Use:   "import [feed-id...]",
		Short: "Import configured ICS feeds, or a single .ics file",
		Long: `Import fetches the configured feeds (all of them, or only the ids given)
and replaces the items each one imported before.

With --file, a single .ics file is imported into --collection instead.`,
		RunE: runImport,
	}

	exportCollection string
	exportOutput     string

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write a collection, or the global calendar, as iCalendar",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
)

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Local .ics file to import")
	importCmd.Flags().StringVar(&importCollection, "collection", "", "Target collection id for --file")

	exportCmd.Flags().StringVar(&exportCollection, "collection", "", "Collection id (default: every dated collection)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	feeds := e.cfg.Feeds
	switch {
	case importFile != "":
		feeds, err = fileFeed(importFile, importCollection, args)
	case len(args) > 0:
		feeds, err = filterFeeds(e.cfg.Feeds, args)
	}
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		return errors.New("no feeds configured")
	}

	ctx := cmd.Context()
	importer := refresh.NewImporter(e.store, e.fetcher(), feeds, e.loc)

	var errs []error
	for _, feed := range feeds {
		n, err := importer.Import(ctx, feed)
		if err != nil {
			appLog.Error("feed import failed", err, "feed", feed.Key())
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d items -> %s\n", feed.Key(), n, feed.Collection)
	}
	return errors.Join(errs...)
}

// fileFeed describes a one-off import of path into collection. Re-importing
// the same file replaces its previous items.
func fileFeed(path, collection string, ids []string) ([]config.FeedConfig, error) {
	if len(ids) > 0 {
		return nil, errors.New("feed ids and --file are mutually exclusive")
	}
	if collection == "" {
		return nil, errors.New("--collection is required with --file")
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return []config.FeedConfig{{
		ID:         "file:" + base,
		Name:       collection,
		Path:       path,
		Collection: collection,
	}}, nil
}

func filterFeeds(feeds []config.FeedConfig, ids []string) ([]config.FeedConfig, error) {
	var out []config.FeedConfig
	for _, id := range ids {
		i := slices.IndexFunc(feeds, func(f config.FeedConfig) bool { return f.Key() == id })
		if i < 0 {
			return nil, fmt.Errorf("unknown feed %q", id)
		}
		out = append(out, feeds[i])
	}
	return out, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	src, err := e.store.CalendarSource(exportCollection, e.cfg.Calendar.DateField)
	if err != nil {
		return err
	}
	body := ics.Export(src.Items, ics.ExportOptions{
		DateKey:  src.DateKey,
		TitleKey: src.TitleKey,
		Location: e.loc,
		Name:     src.Name,
	})

	if exportOutput == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), body)
		return err
	}
	if err := os.WriteFile(exportOutput, []byte(body), 0o644); err != nil {
		return err
	}
	appLog.Info("calendar exported", "collection", src.Name, "items", len(src.Items), "output", exportOutput)
	return nil
}
