package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfilment status stored on an order row.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// Normalize maps free-form stored statuses onto the lower-case set used by
// the order history view. Unknown values read as "pending".
func (s Status) Normalize() string {
	switch v := strings.ToLower(strings.TrimSpace(string(s))); v {
	case "pending", "processing", "completed", "cancelled":
		return v
	case "canceled":
		return "cancelled"
	case "complete", "delivered":
		return "completed"
	default:
		return "pending"
	}
}

// Order is a placed order as persisted by the external store.
type Order struct {
	ID              string
	UserID          string
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	City            string
	State           string
	ZipCode         string
	TotalAmount     decimal.Decimal
	Status          Status
	CreatedAt       time.Time
	Items           []Item
}

// Item is an order line. ProductName and ProductImage are only filled when
// reading order history.
type Item struct {
	ProductID       string
	Quantity        int
	PriceAtPurchase decimal.Decimal
	ProductName     string
	ProductImage    string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order row and then its item rows.
	Create(ctx context.Context, order *Order) error
	// ListByUser returns the user's orders with items, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
