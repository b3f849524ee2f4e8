package handler

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/notify"
)

// Notifier delivers a notification to the sessions of a customer.
type Notifier interface {
	NotifyCustomer(customerID string, n notify.Notification) int
}

type staffNotification struct {
	CustomerID string      `json:"customerId"`
	OrderID    string      `json:"orderId"`
	Status     string      `json:"status"`
	Message    string      `json:"message"`
	Type       notify.Type `json:"type"`
}

type deliveryView struct {
	Delivered int `json:"delivered"`
}

// requireRole lets through signed-in customers holding one of roles. It must
// run after RequireCustomer.
func requireRole(roles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, signedIn(r).Role) {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NotifyCustomer sends a personnel notification to every live session of a
// customer.
func (h *Handler) NotifyCustomer(w http.ResponseWriter, r *http.Request) {
	var req staffNotification
	if !decode(w, r, &req) {
		return
	}
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Message = strings.TrimSpace(req.Message)
	if req.Type == "" {
		req.Type = notify.TypeOrderUpdate
	}
	switch {
	case req.CustomerID == "":
		writeError(w, http.StatusBadRequest, "customerId is required")
		return
	case req.Message == "":
		writeError(w, http.StatusBadRequest, "message is required")
		return
	case !req.Type.Valid():
		writeError(w, http.StatusBadRequest, "unknown notification type")
		return
	}

	staff := signedIn(r)
	n := notify.Notification{
		OrderID:       req.OrderID,
		Status:        req.Status,
		Message:       req.Message,
		Type:          req.Type,
		FromPersonnel: staff.DisplayName,
	}
	delivered := h.notifier.NotifyCustomer(req.CustomerID, n)
	zctx.From(r.Context()).Info("Personnel notification sent",
		zap.String("staff_id", staff.ID),
		zap.String("customer_id", req.CustomerID),
		zap.String("type", string(req.Type)),
		zap.Int("delivered", delivered),
	)
	writeJSON(w, http.StatusAccepted, deliveryView{Delivered: delivered})
}
