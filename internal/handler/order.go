package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/prefab-storefront/internal/domain/order"
)

type orderItemView struct {
	ProductID       string          `json:"productId"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`
	ProductName     string          `json:"productName,omitempty"`
	ProductImage    string          `json:"productImage,omitempty"`
}

type orderView struct {
	ID              string          `json:"id"`
	ShortID         string          `json:"shortId"`
	CustomerName    string          `json:"customerName"`
	CustomerEmail   string          `json:"customerEmail"`
	ShippingAddress string          `json:"shippingAddress"`
	City            string          `json:"city"`
	State           string          `json:"state"`
	ZipCode         string          `json:"zipCode"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	Items           []orderItemView `json:"items"`
}

func viewOrder(o order.Order) orderView {
	v := orderView{
		ID:              o.ID,
		ShortID:         order.ShortID(o.ID),
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		ShippingAddress: o.ShippingAddress,
		City:            o.City,
		State:           o.State,
		ZipCode:         o.ZipCode,
		TotalAmount:     o.TotalAmount,
		Status:          o.Status.Normalize(),
		CreatedAt:       o.CreatedAt,
		Items:           make([]orderItemView, len(o.Items)),
	}
	for i, it := range o.Items {
		v.Items[i] = orderItemView{
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase,
			ProductName:     it.ProductName,
			ProductImage:    it.ProductImage,
		}
	}
	return v
}

// ListOrders serves the order history of the signed-in customer, filtered
// by q.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.history.History(r.Context(), signedIn(r).ID, r.URL.Query().Get("q"))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]orderView, len(orders))
	for i, o := range orders {
		out[i] = viewOrder(o)
	}
	writeJSON(w, http.StatusOK, out)
}
