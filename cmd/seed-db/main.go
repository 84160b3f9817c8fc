package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableside/internal/domain/auth"
	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/table"
	"github.com/xenking/tableside/internal/repository"
)

func main() {
	var (
		databaseURL  string
		menuFile     string
		tables       int
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.IntVar(&tables, "tables", 10, "number of tables to create")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or TABLESIDE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TABLESIDE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("TABLESIDE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or TABLESIDE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TABLESIDE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile, tables, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, menuFile string, tables int, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, pool, menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	if err := seedTables(ctx, pool, tables); err != nil {
		return errors.Wrap(err, "seed tables")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedMenu(ctx context.Context, pool *pgxpool.Pool, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	var items []menu.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	slog.Info("upserting menu items", slog.Int("count", len(items)))

	repo := repository.NewMenuRepository(pool)
	for i := range items {
		it := &items[i]
		if err := it.Validate(); err != nil {
			return err
		}
		if err := repo.Upsert(ctx, it); err != nil {
			return errors.Wrapf(err, "upsert menu item %s", it.ID)
		}

		slog.Info("upserted menu item", slog.String("id", it.ID), slog.String("name", it.Name))
	}

	return nil
}

func seedTables(ctx context.Context, pool *pgxpool.Pool, n int) error {
	slog.Info("seeding tables", slog.Int("count", n))

	repo := repository.NewTableRepository(pool)
	for i := 1; i <= n; i++ {
		t := &table.Table{
			ID:     strconv.Itoa(i),
			Number: i,
			Label:  "Table " + strconv.Itoa(i),
		}
		if err := repo.Upsert(ctx, t); err != nil {
			return err
		}
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding staff API key")

	info := &auth.APIKeyInfo{
		ID:      "staff",
		KeyHash: auth.HashKeyHex([]byte(pepper), apiKey),
		Name:    "Kitchen and floor staff",
		Scopes:  []string{auth.ScopeKitchen, auth.ScopeWaiter},
	}
	if err := repository.NewAPIKeyRepository(pool).Create(ctx, info); err != nil {
		return errors.Wrap(err, "upsert staff API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))

	return nil
}
