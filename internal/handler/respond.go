package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/checkout"
	"github.com/xenking/prefab-storefront/internal/domain/order"
	"github.com/xenking/prefab-storefront/internal/domain/product"
	"github.com/xenking/prefab-storefront/internal/domain/upload"
)

// maxBody bounds JSON request bodies.
const maxBody = 1 << 20

// apiError is the JSON error body of every failed request.
type apiError struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Errors  []checkout.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Code: status, Message: msg})
}

func writeInvalid(w http.ResponseWriter, msg string, res checkout.Result) {
	writeJSON(w, http.StatusUnprocessableEntity, apiError{
		Code:    http.StatusUnprocessableEntity,
		Message: msg,
		Errors:  res.Errors,
	})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// fail maps a domain error onto a response.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid   *checkout.ValidationError
		noProduct *order.ProductNotFoundError
		badQty    *order.InvalidQuantityError
	)
	switch {
	case errors.As(err, &invalid):
		writeInvalid(w, invalid.Error(), invalid.Result)
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.As(err, &noProduct):
		writeError(w, http.StatusUnprocessableEntity, noProduct.Error())
	case errors.As(err, &badQty):
		writeError(w, http.StatusUnprocessableEntity, badQty.Error())
	case errors.Is(err, order.ErrEmptyItems), errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, checkout.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, "Please log in to place an order.")
	case errors.Is(err, checkout.ErrSubmitInFlight), errors.Is(err, checkout.ErrNotFinalStep):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, upload.ErrEmptyFile), errors.Is(err, upload.ErrNoCustomer):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
