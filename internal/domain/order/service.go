package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/prefab-storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrMissingCustomer = fmt.Errorf("customer required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// LineRequest is one requested line.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID          string
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	City            string
	State           string
	ZipCode         string
	Lines           []LineRequest
}

// Service encapsulates order placement and history.
type Service struct {
	products product.Repository
	orders   Repository
}

// NewService creates an order Service with the required domain dependencies.
func NewService(products product.Repository, orders Repository) *Service {
	return &Service{
		products: products,
		orders:   orders,
	}
}

// PlaceOrder validates lines, prices them against the catalog in a single
// batch and persists the order with status Pending.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if req.UserID == "" {
		return nil, ErrMissingCustomer
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, len(req.Lines))
	total := decimal.Zero
	for i, line := range req.Lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		items[i] = Item{
			ProductID:       p.ID,
			Quantity:        line.Quantity,
			PriceAtPurchase: p.Price,
			ProductName:     p.Name,
			ProductImage:    p.Image(),
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	o := &Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   req.CustomerEmail,
		ShippingAddress: req.ShippingAddress,
		City:            req.City,
		State:           req.State,
		ZipCode:         req.ZipCode,
		TotalAmount:     total.Round(2),
		Status:          StatusPending,
		Items:           items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return o, nil
}

// History returns the user's orders, newest first, narrowed by query.
func (s *Service) History(ctx context.Context, userID, query string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return Search(orders, query), nil
}

// Search keeps orders whose id or any product name contains q, ignoring case.
// An empty q keeps everything.
func Search(orders []Order, q string) []Order {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return orders
	}

	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if matches(o, q) {
			out = append(out, o)
		}
	}
	return out
}

func matches(o Order, q string) bool {
	if strings.Contains(strings.ToLower(o.ID), q) {
		return true
	}
	for _, it := range o.Items {
		if strings.Contains(strings.ToLower(it.ProductName), q) {
			return true
		}
	}
	return false
}

// ShortID is the prefix of the order id shown to customers.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
