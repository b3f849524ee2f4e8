package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/prefab-storefront/internal/domain/checkout"
)

type checkoutView struct {
	checkout.State
	Title      string           `json:"title"`
	Progress   float64          `json:"progress"`
	Submitting bool             `json:"submitting"`
	Validation *checkout.Result `json:"validation,omitempty"`
}

func viewCheckout(c *checkout.Coordinator, res *checkout.Result) checkoutView {
	st := c.State()
	return checkoutView{
		State:      st,
		Title:      st.CurrentStep.Title(),
		Progress:   c.Progress(),
		Submitting: c.Submitting(),
		Validation: res,
	}
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	res := s.Checkout.Validate()
	writeJSON(w, http.StatusOK, viewCheckout(s.Checkout, &res))
}

// UpdateCheckoutStep merges a partial payload into one step. The step is
// customer, payment or contract.
func (h *Handler) UpdateCheckoutStep(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}

	switch chi.URLParam(r, "step") {
	case "customer":
		var p checkout.CustomerPatch
		if !decode(w, r, &p) {
			return
		}
		s.Checkout.UpdateCustomer(p)
	case "payment":
		var p checkout.PaymentPatch
		if !decode(w, r, &p) {
			return
		}
		s.Checkout.UpdatePayment(p)
	case "contract":
		var p checkout.ContractPatch
		if !decode(w, r, &p) {
			return
		}
		s.Checkout.UpdateContract(p)
	default:
		writeError(w, http.StatusNotFound, "unknown checkout step")
		return
	}
	writeJSON(w, http.StatusOK, viewCheckout(s.Checkout, nil))
}

// NextStep advances when the current step validates.
func (h *Handler) NextStep(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	res := s.Checkout.Next()
	if !res.OK {
		writeInvalid(w, "step is incomplete", res)
		return
	}
	writeJSON(w, http.StatusOK, viewCheckout(s.Checkout, &res))
}

func (h *Handler) PreviousStep(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	s.Checkout.Previous()
	writeJSON(w, http.StatusOK, viewCheckout(s.Checkout, nil))
}

// SubmitOrder places the order of the session cart.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	o, err := s.Checkout.Submit(r.Context(), s.Cart, s.Customer)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOrder(*o))
}
