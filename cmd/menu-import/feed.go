package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tableside/internal/domain/menu"
)

const (
	bloomFPR      = 0.001
	maxLineBytes  = 1 << 20
	maxFiles      = 64
	progressEvery = 1_000
	reportDupes   = 10
)

type options struct {
	workers        int
	allowOverrides bool
}

// feed is one parsed input file together with a bloom filter of its item ids.
type feed struct {
	path   string
	items  []menu.Item
	filter *bloom.BloomFilter
}

// upserter is the part of the menu repository the importer writes through.
type upserter interface {
	Upsert(ctx context.Context, it *menu.Item) error
}

// prepare parses every file and merges the items into one list. An id that
// appears in more than one file is an error unless overrides are allowed, in
// which case the last file wins.
func prepare(ctx context.Context, files []string, opts options) ([]menu.Item, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files per run, got %d", maxFiles, len(files))
	}

	// Pass 1: parse files and build bloom filters concurrently.
	slog.Info("pass 1: parsing feed files", slog.Int("files", len(files)))

	feeds, err := loadFeeds(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "load feeds")
	}

	// Pass 2: find ids shared between files.
	slog.Info("pass 2: checking for ids shared between files")

	dupes, err := findSharedIDs(ctx, feeds)
	if err != nil {
		return nil, errors.Wrap(err, "find shared ids")
	}
	if len(dupes) > 0 {
		if !opts.allowOverrides {
			shown := dupes[:min(len(dupes), reportDupes)]
			return nil, errors.Errorf("%d item ids appear in more than one file: %s",
				len(dupes), strings.Join(shown, ", "))
		}
		slog.Warn("later files override earlier items", slog.Int("ids", len(dupes)))
	}

	return merge(feeds), nil
}

func loadFeeds(ctx context.Context, files []string) ([]feed, error) {
	feeds := make([]feed, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			items, err := readFeed(ctx, path)
			if err != nil {
				return err
			}

			filter := bloom.NewWithEstimates(uint(max(len(items), 1)), bloomFPR)
			for j := range items {
				filter.AddString(items[j].ID)
			}

			slog.Info("pass 1 complete", slog.String("file", path), slog.Int("items", len(items)))
			feeds[i] = feed{path: path, items: items, filter: filter}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return feeds, nil
}

// readFeed opens a gzip-compressed JSON lines file of menu items. Blank lines
// are skipped; every other line must be a valid item with an id unique in the
// file.
func readFeed(ctx context.Context, path string) ([]menu.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var (
		items []menu.Item
		seen  = make(map[string]int)
		line  int
	)

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++

		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}

		var it menu.Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, fmt.Errorf("%s:%d: decode item: %w", path, line, err)
		}
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if prev, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%s:%d: item %s already defined on line %d", path, line, it.ID, prev)
		}
		seen[it.ID] = line
		items = append(items, it)

		if len(items)%progressEvery == 0 {
			slog.Info("pass 1 progress", slog.String("file", path), slog.Int("items", len(items)))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}

	return items, nil
}

// findSharedIDs checks each file's ids against the other files' bloom filters
// and confirms the hits with a per-file bitmask. It returns the sorted ids that
// really occur in two or more files.
func findSharedIDs(ctx context.Context, feeds []feed) ([]string, error) {
	candidates := make([]map[string]uint, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i := range feeds {
		g.Go(func() error {
			found := make(map[string]uint)
			fileBit := uint(1) << uint(i)

			for _, it := range feeds[i].items {
				if err := ctx.Err(); err != nil {
					return err
				}
				for j := range feeds {
					if j != i && feeds[j].filter.TestString(it.ID) {
						found[it.ID] |= fileBit
						break
					}
				}
			}

			candidates[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, c := range candidates {
		for id, mask := range c {
			merged[id] |= mask
		}
	}

	var shared []string
	for id, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			shared = append(shared, id)
		}
	}
	slices.Sort(shared)

	return shared, nil
}

// merge flattens feeds in file order. A later item replaces an earlier one
// with the same id in place.
func merge(feeds []feed) []menu.Item {
	var out []menu.Item
	index := make(map[string]int)
	for _, f := range feeds {
		for _, it := range f.items {
			if i, ok := index[it.ID]; ok {
				out[i] = it
				continue
			}
			index[it.ID] = len(out)
			out = append(out, it)
		}
	}
	return out
}

// writeItems upserts items with up to workers concurrent writers.
func writeItems(ctx context.Context, repo upserter, items []menu.Item, workers int) error {
	slog.Info("writing menu items", slog.Int("count", len(items)), slog.Int("workers", workers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range items {
		g.Go(func() error {
			if err := repo.Upsert(ctx, &items[i]); err != nil {
				return errors.Wrapf(err, "upsert menu item %s", items[i].ID)
			}
			return nil
		})
	}

	return g.Wait()
}
