package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/prefab-storefront/internal/domain/product"
)

const (
	productColumns = `id::text, name, description, price, category, image_url, stock_quantity`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at, name`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (name, description, price, category, image_url, stock_quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url,
			stock_quantity = EXCLUDED.stock_quantity`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the whole catalog in insertion order.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product. A malformed id reads as not found.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	rows, err := r.pool.Query(ctx, getProductByIDSQL, key)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns the products matching any of ids. Malformed ids match
// nothing.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	keys := parseIDs(ids)
	if len(keys) == 0 {
		return []product.Product{}, nil
	}
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, keys)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts products, replacing rows with the same name. It returns the
// number of rows written.
func (r *ProductRepository) Upsert(ctx context.Context, products []product.Product) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL, p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.StockQuantity)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range products {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("upserting product %q: %w", products[i].Name, err)
		}
	}
	return len(products), nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageURL, &p.StockQuantity)
	return p, err
}
