package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/tableside/internal/repository"
)

func main() {
	var (
		databaseURL    string
		workers        int
		dryRun         bool
		allowOverrides bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "concurrent database writers")
	flag.BoolVar(&dryRun, "dry-run", false, "validate the feed files without writing")
	flag.BoolVar(&allowOverrides, "allow-overrides", false, "let later files replace items with the same id")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: menu-import [flags] feed1.jsonl.gz [feed2.jsonl.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := options{workers: workers, allowOverrides: allowOverrides}
	if err := run(ctx, files, databaseURL, dryRun, opts); err != nil {
		slog.Error("menu import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("menu import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, dryRun bool, opts options) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	items, err := prepare(ctx, files, opts)
	if err != nil {
		return err
	}

	if dryRun {
		slog.Info("dry run, nothing written", slog.Int("items", len(items)))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writeItems(ctx, repository.NewMenuRepository(pool), items, opts.workers); err != nil {
		return errors.Wrap(err, "write menu items")
	}

	return nil
}
