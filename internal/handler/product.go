package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/prefab-storefront/internal/domain/product"
)

type productView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	ImageURL      string          `json:"imageUrl"`
	StockQuantity int             `json:"stockQuantity"`
}

type productPage struct {
	Items      []productView `json:"items"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
	Total      int           `json:"total"`
}

// ListProducts serves one page of the filtered catalog. Query: q, category
// (repeatable), priceMin, priceMax, page.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	res, err := h.catalog.Browse(r.Context(), f, max(page, 1))
	if err != nil {
		fail(w, r, err)
		return
	}

	out := productPage{
		Items:      make([]productView, len(res.Items)),
		Page:       res.Page,
		TotalPages: res.TotalPages,
		Total:      res.Total,
	}
	for i, p := range res.Items {
		out.Items[i] = h.productView(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct serves a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.productView(*p))
}

func parseFilter(r *http.Request) (product.Filter, error) {
	q := r.URL.Query()
	f := product.Filter{Search: q.Get("q")}
	for _, c := range q["category"] {
		if c = strings.TrimSpace(c); c != "" && c != "All" {
			f.Categories = append(f.Categories, c)
		}
	}

	var err error
	if v := q.Get("priceMin"); v != "" {
		if f.PriceMin, err = decimal.NewFromString(v); err != nil {
			return f, errors.Errorf("invalid priceMin %q", v)
		}
	}
	if v := q.Get("priceMax"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errors.Errorf("invalid priceMax %q", v)
		}
		f.PriceMax = decimal.NewNullDecimal(d)
	}
	return f, nil
}

// productView prefixes relative image paths with the configured base URL.
func (h *Handler) productView(p product.Product) productView {
	img := p.Image()
	if h.cfg.ImageBaseURL != "" && strings.HasPrefix(img, "/") {
		img = strings.TrimRight(h.cfg.ImageBaseURL, "/") + img
	}
	return productView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		Category:      p.Category,
		ImageURL:      img,
		StockQuantity: p.StockQuantity,
	}
}
