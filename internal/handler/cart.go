package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/prefab-storefront/internal/domain/cart"
)

type cartItemView struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Selected  bool            `json:"selected"`
}

type cartView struct {
	Items         []cartItemView  `json:"items"`
	TotalItems    int             `json:"totalItems"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	SelectedCount int             `json:"selectedCount"`
	SelectedTotal decimal.Decimal `json:"selectedTotal"`
}

func viewCart(c *cart.Store) cartView {
	items := c.Items()
	v := cartView{
		Items:         make([]cartItemView, len(items)),
		TotalItems:    c.TotalItems(),
		TotalPrice:    c.TotalPrice(),
		SelectedCount: c.SelectedCount(),
		SelectedTotal: c.SelectedTotal(),
	}
	for i, it := range items {
		v.Items[i] = cartItemView{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Image:     it.Image,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal(),
			Selected:  c.IsSelected(it.ProductID),
		}
	}
	return v
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewCart(s.Cart))
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
}

// AddToCart adds quantity units (default 1) of a catalog product. Negative
// quantities decrement the line.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	var req addToCartRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	p, err := h.catalog.Get(r.Context(), req.ProductID)
	if err != nil {
		fail(w, r, err)
		return
	}
	delta := 1
	if req.Quantity != nil {
		delta = *req.Quantity
	}
	s.Cart.AddToCart(*p, delta)
	writeJSON(w, http.StatusOK, viewCart(s.Cart))
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets the quantity of a line. Zero or less removes it.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}
	s.Cart.UpdateQuantity(chi.URLParam(r, "id"), req.Quantity)
	writeJSON(w, http.StatusOK, viewCart(s.Cart))
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	s.Cart.RemoveFromCart(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, viewCart(s.Cart))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	s.Cart.ClearCart()
	writeJSON(w, http.StatusOK, viewCart(s.Cart))
}

type selectRequest struct {
	ProductID string `json:"productId"`
	All       bool   `json:"all"`
	Selected  bool   `json:"selected"`
}

// SelectCartItems marks one line, or every line with all, for partial
// checkout.
func (h *Handler) SelectCartItems(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	switch {
	case req.All:
		s.Cart.SelectAll(req.Selected)
	case req.ProductID != "":
		s.Cart.Select(req.ProductID, req.Selected)
	default:
		writeError(w, http.StatusBadRequest, "productId or all is required")
		return
	}
	writeJSON(w, http.StatusOK, viewCart(s.Cart))
}

func (h *Handler) RemoveSelected(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	s.Cart.RemoveSelected()
	writeJSON(w, http.StatusOK, viewCart(s.Cart))
}
