// Package refresh keeps feed-backed collections and the preview image up to
// date.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"dbcal/internal/config"
	"dbcal/internal/ics"
	appLog "dbcal/internal/log"
	"dbcal/internal/model"
	"dbcal/internal/store"
)

// Importer copies configured ICS feeds into their collections.
type Importer struct {
	store   *store.Store
	fetcher *ics.Fetcher
	feeds   []config.FeedConfig
	loc     *time.Location
}

func NewImporter(st *store.Store, fetcher *ics.Fetcher, feeds []config.FeedConfig, loc *time.Location) *Importer {
	if loc == nil {
		loc = time.Local
	}
	return &Importer{store: st, fetcher: fetcher, feeds: feeds, loc: loc}
}

// ImportAll fetches every feed, then replaces the items of each one that
// was fetched. A failing feed does not stop the others; their errors are
// joined.
func (im *Importer) ImportAll(ctx context.Context) error {
	sources := make([]ics.Source, 0, len(im.feeds))
	byID := make(map[string]config.FeedConfig, len(im.feeds))
	for _, feed := range im.feeds {
		sources = append(sources, feedSource(feed))
		byID[feed.Key()] = feed
	}

	results, errs := im.fetcher.FetchAll(ctx, sources)
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		feed := byID[res.Source.ID]
		if _, err := im.apply(feed, res); err != nil {
			appLog.Error("feed import failed", err, "feed", feed.Key())
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Import replaces the items feed previously imported with its current
// events and returns how many were stored.
func (im *Importer) Import(ctx context.Context, feed config.FeedConfig) (int, error) {
	res, err := im.fetcher.Fetch(ctx, feedSource(feed))
	if err != nil {
		return 0, fmt.Errorf("feed %s: %w", feed.Key(), err)
	}
	return im.apply(feed, res)
}

func feedSource(feed config.FeedConfig) ics.Source {
	return ics.Source{ID: feed.Key(), URL: feed.URL, Path: feed.Path}
}

// apply parses a fetched feed and stores its items in the feed's collection.
func (im *Importer) apply(feed config.FeedConfig, res ics.FetchResult) (int, error) {
	items, err := ics.ParseFeed(res.Source, res.Body, im.loc)
	if err != nil {
		return 0, fmt.Errorf("feed %s: %w", feed.Key(), err)
	}

	name := feed.Name
	if name == "" {
		name = feed.Collection
	}
	coll, err := im.store.EnsureCollection(feed.Collection, name, model.FieldDate, model.FieldTitle)
	if err != nil {
		return 0, err
	}
	if err := im.store.ReplaceFeedItems(coll.ID, feed.Key(), items); err != nil {
		return 0, fmt.Errorf("feed %s: %w", feed.Key(), err)
	}

	appLog.Info("feed imported", "feed", feed.Key(), "collection", coll.ID, "items", len(items), "from_cache", res.FromCache)
	return len(items), nil
}

// LocalPaths lists the file paths of local feeds.
func (im *Importer) LocalPaths() []string {
	var out []string
	for _, f := range im.feeds {
		if f.Path != "" {
			out = append(out, f.Path)
		}
	}
	return out
}

// ImportPath imports the local feed stored at path.
func (im *Importer) ImportPath(ctx context.Context, path string) error {
	want, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	for _, f := range im.feeds {
		if f.Path == "" {
			continue
		}
		if abs, err := filepath.Abs(f.Path); err == nil && abs == want {
			_, err := im.Import(ctx, f)
			return err
		}
	}
	return fmt.Errorf("no feed configured for %s", path)
}
