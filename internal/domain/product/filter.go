package product

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// PerPage is the number of products shown on one catalog page.
const PerPage = 6

// DefaultPriceMax is the upper bound of the price slider when none is given.
var DefaultPriceMax = decimal.NewFromInt(100000)

// Filter narrows the catalog. The zero value matches every product priced
// between 0 and DefaultPriceMax. A set PriceMax, zero included, replaces
// the default.
type Filter struct {
	PriceMin   decimal.Decimal
	PriceMax   decimal.NullDecimal
	Search     string
	Categories []string
}

// Match reports whether p passes the filter.
func (f Filter) Match(p Product) bool {
	maxPrice := DefaultPriceMax
	if f.PriceMax.Valid {
		maxPrice = f.PriceMax.Decimal
	}
	if p.Price.LessThan(f.PriceMin) || p.Price.GreaterThan(maxPrice) {
		return false
	}

	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
	}

	if len(f.Categories) > 0 && !slices.Contains(f.Categories, p.Category) {
		return false
	}
	return true
}

// Apply returns the products that pass the filter, preserving order.
func (f Filter) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Page is one page of catalog results.
type Page struct {
	Items      []Product
	Page       int
	TotalPages int
	Total      int
}

// Paginate slices products into 1-based pages of perPage items. Out of range
// pages are clamped to the nearest valid page.
func Paginate(products []Product, page, perPage int) Page {
	if perPage <= 0 {
		perPage = PerPage
	}
	total := len(products)
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		return Page{Items: []Product{}, Page: 1, TotalPages: 0, Total: 0}
	}

	page = min(max(page, 1), totalPages)
	start := (page - 1) * perPage
	end := min(start+perPage, total)

	return Page{
		Items:      products[start:end],
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
	}
}

// Categories returns the distinct categories of products in first-seen order.
func Categories(products []Product) []string {
	var out []string
	for _, p := range products {
		if p.Category != "" && !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	return out
}

// Catalog serves the read-only shop views on top of a Repository.
type Catalog struct {
	products Repository
}

// NewCatalog creates a Catalog backed by products.
func NewCatalog(products Repository) *Catalog {
	return &Catalog{products: products}
}

// Browse lists the catalog, applies the filter and returns the requested page.
func (c *Catalog) Browse(ctx context.Context, f Filter, page int) (Page, error) {
	all, err := c.products.List(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("list products: %w", err)
	}
	return Paginate(f.Apply(all), page, PerPage), nil
}

// Get returns a single product or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (*Product, error) {
	return c.products.GetByID(ctx, id)
}
