package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xenking/prefab-storefront/internal/domain/consent"
)

// DefaultConsentCookie names the browser cookie consent decisions are kept
// under. It lives independently of the session cookie.
const DefaultConsentCookie = "sf_browser"

type consentView struct {
	consent.Decision
	ShowBanner bool `json:"showBanner"`
}

func writeDecision(w http.ResponseWriter, r *http.Request, d consent.Decision, err error) {
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, consentView{Decision: d, ShowBanner: d.ShowBanner()})
}

// browser returns the browser id of r, issuing one when the request has no
// valid id. The cookie is refreshed whenever save is set.
func (h *Handler) browser(w http.ResponseWriter, r *http.Request, save bool) string {
	id := ""
	if c, err := r.Cookie(h.cfg.ConsentCookie); err == nil {
		if u, err := uuid.Parse(c.Value); err == nil {
			id = u.String()
		}
	}
	if id == "" {
		id = uuid.NewString()
		save = true
	}
	if save {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cfg.ConsentCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(h.consent.Retention().Seconds()),
			HttpOnly: true,
			Secure:   h.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return id
}

// GetConsent serves the cookie consent decision of the browser.
func (h *Handler) GetConsent(w http.ResponseWriter, r *http.Request) {
	d, err := h.consent.Get(r.Context(), h.browser(w, r, false))
	writeDecision(w, r, d, err)
}

func (h *Handler) SaveConsent(w http.ResponseWriter, r *http.Request) {
	var prefs consent.Preferences
	if !decode(w, r, &prefs) {
		return
	}
	d, err := h.consent.Save(r.Context(), h.browser(w, r, true), prefs)
	writeDecision(w, r, d, err)
}

func (h *Handler) AcceptAllConsent(w http.ResponseWriter, r *http.Request) {
	d, err := h.consent.AcceptAll(r.Context(), h.browser(w, r, true))
	writeDecision(w, r, d, err)
}

func (h *Handler) RejectAllConsent(w http.ResponseWriter, r *http.Request) {
	d, err := h.consent.RejectAll(r.Context(), h.browser(w, r, true))
	writeDecision(w, r, d, err)
}
