package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/prefab-storefront/internal/domain/product"
	"github.com/xenking/prefab-storefront/internal/storage/postgres"
)

const (
	defaultStock = 100
	batchSize    = 500
)

type productJSON struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	ImageURL      string          `json:"image_url"`
	StockQuantity *int            `json:"stock_quantity"`
}

func main() {
	var (
		databaseURL string
		files       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&files, "files", "db/seed/catalog.json", "comma separated catalog files (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, strings.Split(files, ",")); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	products, err := readCatalogs(ctx, files)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		slog.Info("no products to seed")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)
	written := 0
	for start := 0; start < len(products); start += batchSize {
		end := min(start+batchSize, len(products))
		n, err := repo.Upsert(ctx, products[start:end])
		written += n
		if err != nil {
			return errors.Wrap(err, "upsert products")
		}
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(products)))
	}

	return nil
}

// readCatalogs decodes every file concurrently and merges the results. A
// product name seen in several files keeps its last occurrence in file order.
func readCatalogs(ctx context.Context, files []string) ([]product.Product, error) {
	results := make([][]product.Product, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		path = strings.TrimSpace(path)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			items, err := readCatalog(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			slog.Info("read catalog", slog.String("path", path), slog.Int("products", len(items)))
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(results), nil
}

func merge(results [][]product.Product) []product.Product {
	index := make(map[string]int)
	var out []product.Product
	for _, items := range results {
		for _, p := range items {
			key := strings.ToLower(p.Name)
			if i, ok := index[key]; ok {
				out[i] = p
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	return out
}

func readCatalog(path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return decodeCatalog(r)
}

func decodeCatalog(r io.Reader) ([]product.Product, error) {
	var raw []productJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}

	out := make([]product.Product, 0, len(raw))
	for i, p := range raw {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, errors.Errorf("product %d has no name", i)
		}
		if p.Price.IsNegative() {
			return nil, errors.Errorf("product %q has a negative price", name)
		}
		stock := defaultStock
		if p.StockQuantity != nil {
			stock = *p.StockQuantity
		}
		out = append(out, product.Product{
			Name:          name,
			Description:   p.Description,
			Price:         p.Price,
			Category:      p.Category,
			ImageURL:      p.ImageURL,
			StockQuantity: stock,
		})
	}
	return out, nil
}
