package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/prefab-storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, customer_name, customer_email, shipping_address, city, state, zip_code, total_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4)`

	listOrdersByUserSQL = `SELECT id::text, user_id::text, customer_name, customer_email, shipping_address,
			city, state, zip_code, total_amount, status, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC`

	listOrderItemsByUserSQL = `SELECT oi.order_id::text, oi.product_id::text, oi.quantity, oi.price_at_purchase,
			COALESCE(p.name, ''), COALESCE(p.image_url, '')
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.user_id = $1
		ORDER BY oi.id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order and its lines in one transaction. CreatedAt is
// set from the database.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, o.CustomerName, o.CustomerEmail, o.ShippingAddress,
		o.City, o.State, o.ZipCode, o.TotalAmount, string(o.Status),
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(insertOrderItemSQL, o.ID, it.ProductID, it.Quantity, it.PriceAtPurchase)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating items of order %q: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// ListByUser returns the user's orders, newest first, with their lines. A
// malformed user id has no orders.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	key, ok := parseID(userID)
	if !ok {
		return []order.Order{}, nil
	}
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, key)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	rows, err = r.pool.Query(ctx, listOrderItemsByUserSQL, key)
	if err != nil {
		return nil, fmt.Errorf("listing order items of %q: %w", userID, err)
	}
	items, err := pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("listing order items of %q: %w", userID, err)
	}

	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		byID[o.ID] = i
	}
	for _, it := range items {
		if i, ok := byID[it.orderID]; ok {
			orders[i].Items = append(orders[i].Items, it.Item)
		}
	}
	return orders, nil
}

type orderItemRow struct {
	order.Item
	orderID string
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.CustomerName, &o.CustomerEmail, &o.ShippingAddress,
		&o.City, &o.State, &o.ZipCode, &o.TotalAmount, &status, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (orderItemRow, error) {
	var it orderItemRow
	err := row.Scan(&it.orderID, &it.ProductID, &it.Quantity, &it.PriceAtPurchase, &it.ProductName, &it.ProductImage)
	return it, err
}
