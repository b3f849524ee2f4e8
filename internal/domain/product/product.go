package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// PlaceholderImage is served when a product has no image of its own.
const PlaceholderImage = "/placeholder.svg"

// Product is a prefabricated structure offered in the catalog.
type Product struct {
	ID            string
	Name          string
	Description   string
	Price         decimal.Decimal
	Category      string
	ImageURL      string
	StockQuantity int
}

// Image returns the product image URL, falling back to PlaceholderImage.
func (p Product) Image() string {
	if p.ImageURL == "" {
		return PlaceholderImage
	}
	return p.ImageURL
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
