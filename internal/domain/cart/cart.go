// Package cart holds the per-session shopping cart.
//
// A Store is owned by exactly one browser session. Every operation is total:
// quantities that would drop to zero or below remove the line item, so the
// cart never contains an item with a non-positive quantity.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/prefab-storefront/internal/domain/product"
)

// Item is a single cart line.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// Subtotal is UnitPrice multiplied by Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Store is an in-memory cart with line selection for partial checkout.
// It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	items    []Item
	selected map[string]struct{}
}

// NewStore returns an empty cart.
func NewStore() *Store {
	return &Store{selected: make(map[string]struct{})}
}

// AddToCart adds delta units of p. An existing line has delta added to its
// quantity and is removed if the result is not positive. A new line starts
// at max(1, delta).
func (s *Store) AddToCart(p product.Product, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(p.ID); i >= 0 {
		q := s.items[i].Quantity + delta
		if q <= 0 {
			s.removeAt(i)
			return
		}
		s.items[i].Quantity = q
		return
	}

	s.items = append(s.items, Item{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Image:     p.Image(),
		Quantity:  max(1, delta),
	})
}

// UpdateQuantity sets the exact quantity of a line. A quantity of zero or
// less removes the line. Unknown products are ignored.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(productID)
	if i < 0 {
		return
	}
	if quantity <= 0 {
		s.removeAt(i)
		return
	}
	s.items[i].Quantity = quantity
}

// RemoveFromCart drops the line for productID if present.
func (s *Store) RemoveFromCart(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(productID); i >= 0 {
		s.removeAt(i)
	}
}

// ClearCart removes every line.
func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	clear(s.selected)
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items)
}

// Quantity returns the quantity of productID, or zero if it is not in the cart.
func (s *Store) Quantity(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(productID); i >= 0 {
		return s.items[i].Quantity
	}
	return 0
}

// TotalItems returns the sum of all quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// TotalPrice returns the sum of unit price times quantity over all lines.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sum(s.items)
}

// IsEmpty reports whether the cart has no lines.
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items) == 0
}

func (s *Store) index(productID string) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ProductID == productID })
}

// removeAt deletes line i and its selection. Caller must hold s.mu.
func (s *Store) removeAt(i int) {
	delete(s.selected, s.items[i].ProductID)
	s.items = slices.Delete(s.items, i, i+1)
}

func sum(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
