package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/auth"
	domainauth "github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/seed"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type options struct {
	databaseURL string
	catalogFile string
	jwtSecret   string
	tokenTTL    time.Duration
	parallelism int
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "HMAC secret used to mint development tokens (or STORE_JWT_SECRET env)")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of minted development tokens")
	flag.IntVar(&opts.parallelism, "parallelism", 4, "concurrent catalog writes")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("STORE_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, postgres.NewCatalogRepository(pool), opts); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if opts.jwtSecret == "" {
		slog.Info("no JWT secret configured, skipping development tokens")
		return nil
	}
	return mintTokens([]byte(opts.jwtSecret), opts.tokenTTL)
}

func seedCatalog(ctx context.Context, repo *postgres.CatalogRepository, opts options) error {
	slog.Info("reading catalog file", slog.String("path", opts.catalogFile))

	entries, err := seed.LoadCatalog(opts.catalogFile, time.Now())
	if err != nil {
		return err
	}

	slog.Info("upserting catalog entries", slog.Int("count", len(entries)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.parallelism, 1))
	for i := range entries {
		e := &entries[i]
		g.Go(func() error {
			if err := repo.Save(gctx, e); err != nil {
				return errors.Wrapf(err, "upsert entry %s", e.ID)
			}
			slog.Info("upserted entry", slog.String("id", e.ID), slog.String("name", e.Name))
			return nil
		})
	}
	return g.Wait()
}

// mintTokens prints one bearer token per role for local testing.
func mintTokens(secret []byte, ttl time.Duration) error {
	principals := []domainauth.Principal{
		{ID: "dev-customer", Role: domainauth.RoleCustomer, Name: "Dev Customer", Email: "customer@example.com"},
		{ID: "dev-operations", Role: domainauth.RoleOperations, Name: "Dev Operations", Email: "ops@example.com"},
		{ID: "dev-admin", Role: domainauth.RoleAdministrator, Name: "Dev Admin", Email: "admin@example.com"},
	}
	for _, p := range principals {
		token, err := auth.Issue(secret, p, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue %s token", p.Role)
		}
		slog.Info("minted token", slog.String("role", string(p.Role)), slog.Duration("ttl", ttl))
		fmt.Printf("%s\t%s\n", p.Role, token)
	}
	return nil
}
