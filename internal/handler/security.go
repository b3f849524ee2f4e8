package handler

import (
	"context"
	"net/http"

	"github.com/xenking/prefab-storefront/internal/domain/customer"
	"github.com/xenking/prefab-storefront/internal/session"
)

type customerKey struct{}

// RequireCustomer rejects requests whose session has no signed-in customer
// and exposes the customer to the next handler.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := session.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		c, ok := s.Customer.Customer()
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), customerKey{}, c)))
	})
}

func signedIn(r *http.Request) customer.Customer {
	c, _ := r.Context().Value(customerKey{}).(customer.Customer)
	return c
}
