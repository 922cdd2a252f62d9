// Command seed-db loads a product catalog into MongoDB. Without a catalog
// file it seeds the embedded development catalog; with one it reads plain or
// gzip-compressed JSON.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/shopfront/storefront/db"
	"github.com/shopfront/storefront/internal/domain/product"
	"github.com/shopfront/storefront/internal/storage/mongodb"
)

const upsertWorkers = 4

func main() {
	var (
		mongoURI    string
		database    string
		catalogFile string
	)

	flag.StringVar(&mongoURI, "mongo-uri", "", "MongoDB connection URI (or MONGODB_URI env)")
	flag.StringVar(&database, "database", "storefront", "database name")
	flag.StringVar(&catalogFile, "catalog-file", "", "path to a catalog JSON file (optionally .gz); embedded catalog when empty")
	flag.Parse()

	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}
	if mongoURI == "" {
		slog.Error("mongo URI is required: set --mongo-uri or MONGODB_URI")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, mongoURI, database, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, mongoURI, database, catalogFile string) error {
	products, err := loadCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("connecting to database")

	client, err := mongodb.Connect(ctx, mongoURI)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()

	repo := mongodb.NewProductRepository(client.Database(database))
	if err := repo.EnsureIndexes(ctx); err != nil {
		return errors.Wrap(err, "ensure indexes")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertWorkers)
	for _, p := range products {
		g.Go(func() error {
			if err := repo.Upsert(gctx, p); err != nil {
				return err
			}
			slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
			return nil
		})
	}
	return g.Wait()
}

// loadCatalog reads the catalog from path, transparently decompressing .gz
// files. An empty path loads the embedded development catalog.
func loadCatalog(path string) ([]product.Product, error) {
	if path == "" {
		return db.DefaultProducts()
	}

	slog.Info("reading catalog file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog file")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	return db.ParseCatalog(data)
}
