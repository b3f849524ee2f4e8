// Package handler serves the storefront JSON API on chi.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/prefab-storefront/internal/domain/consent"
	"github.com/xenking/prefab-storefront/internal/domain/order"
	"github.com/xenking/prefab-storefront/internal/domain/product"
	"github.com/xenking/prefab-storefront/internal/domain/upload"
	"github.com/xenking/prefab-storefront/internal/session"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// MaxUploadSize bounds multipart upload bodies.
	MaxUploadSize int64
	// Heartbeat is the keep-alive interval of event streams.
	Heartbeat time.Duration
	// EventBuffer is the backlog of one event stream.
	EventBuffer int
	// ConsentCookie names the long-lived browser cookie consent is keyed on.
	ConsentCookie string
	// SecureCookies marks cookies set by the handler Secure.
	SecureCookies bool
	// LoginGuard wraps the login route, typically with a per-IP rate limit.
	LoginGuard []func(http.Handler) http.Handler
	// StaffRoles may send personnel notifications.
	StaffRoles []string
}

// History lists the orders of a customer.
type History interface {
	History(ctx context.Context, userID, query string) ([]order.Order, error)
}

// Handler serves the API of the session attached to each request.
type Handler struct {
	catalog  *product.Catalog
	history  History
	consent  *consent.Service
	uploads  *upload.Service
	notifier Notifier
	cfg      Config
}

// New creates a Handler. uploads may be nil when no object storage is
// configured.
func New(cfg Config, catalog *product.Catalog, history History, consent *consent.Service, uploads *upload.Service, notifier Notifier) *Handler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = 10 << 20
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}
	if cfg.ConsentCookie == "" {
		cfg.ConsentCookie = DefaultConsentCookie
	}
	if len(cfg.StaffRoles) == 0 {
		cfg.StaffRoles = []string{"staff", "admin"}
	}
	return &Handler{
		catalog:  catalog,
		history:  history,
		consent:  consent,
		uploads:  uploads,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Routes registers the API on r. Requests must carry a session, see
// session.Manager.Middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddToCart)
		r.Put("/items/{id}", h.UpdateCartItem)
		r.Delete("/items/{id}", h.RemoveCartItem)
		r.Post("/select", h.SelectCartItems)
		r.Delete("/selected", h.RemoveSelected)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Get("/", h.GetCheckout)
		r.Patch("/{step}", h.UpdateCheckoutStep)
		r.Post("/next", h.NextStep)
		r.Post("/previous", h.PreviousStep)
		r.Post("/submit", h.SubmitOrder)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetIdentity)
		r.With(h.cfg.LoginGuard...).Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	r.Get("/notifications", h.ListNotifications)
	r.Post("/notifications/{id}/read", h.MarkNotificationRead)
	r.Get("/events", h.Events)

	r.Route("/consent", func(r chi.Router) {
		r.Get("/", h.GetConsent)
		r.Put("/", h.SaveConsent)
		r.Post("/accept-all", h.AcceptAllConsent)
		r.Post("/reject-all", h.RejectAllConsent)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireCustomer)
		r.Get("/orders", h.ListOrders)
		r.Post("/uploads", h.Upload)
		r.With(requireRole(h.cfg.StaffRoles)).Post("/staff/notifications", h.NotifyCustomer)
	})
}

// current returns the session of r. Routes are only reachable behind the
// session middleware, so a missing session is a wiring error.
func current(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "no session")
		return nil, false
	}
	return s, true
}
