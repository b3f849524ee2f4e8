package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/prefab-storefront/internal/domain/customer"
	"github.com/xenking/prefab-storefront/internal/session"
)

type identityView struct {
	SessionID       string             `json:"sessionId"`
	Authenticated   bool               `json:"authenticated"`
	Loading         bool               `json:"loading"`
	Customer        *customer.Customer `json:"customer,omitempty"`
	UnreadNotifies  int                `json:"unreadNotifications"`
	OrderFeedActive bool               `json:"orderFeedActive"`
}

func viewIdentity(s *session.Session) identityView {
	v := identityView{
		SessionID:       s.ID,
		Loading:         s.Customer.IsLoading(),
		UnreadNotifies:  s.Notifications.Unread(),
		OrderFeedActive: s.Live(),
	}
	if c, ok := s.Customer.Customer(); ok {
		v.Authenticated = true
		v.Customer = &c
	}
	return v
}

func (h *Handler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(s))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login signs the session in with email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if !s.Customer.Login(r.Context(), req.Email, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(s))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	s.Customer.Logout(r.Context())
	writeJSON(w, http.StatusOK, viewIdentity(s))
}
