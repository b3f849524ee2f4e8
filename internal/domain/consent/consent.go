// Package consent records a browser's cookie preferences.
package consent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/prefab-storefront/internal/kv"
)

// Storage keys, scoped per owner.
const (
	KeyPreferences = "cookieConsent"
	KeyDate        = "cookieConsentDate"
)

// Preferences are the cookie categories a visitor allows. Necessary cookies
// are always allowed.
type Preferences struct {
	Necessary  bool `json:"necessary"`
	Analytics  bool `json:"analytics"`
	Marketing  bool `json:"marketing"`
	Functional bool `json:"functional"`
}

// Decision is the stored choice of one owner.
type Decision struct {
	Decided     bool        `json:"decided"`
	Preferences Preferences `json:"preferences"`
	DecidedAt   time.Time   `json:"decidedAt,omitzero"`
}

// ShowBanner reports whether the consent banner should be displayed.
func (d Decision) ShowBanner() bool { return !d.Decided }

// DefaultRetention is how long a decision is kept when none is configured.
const DefaultRetention = 365 * 24 * time.Hour

// Service reads and writes consent decisions.
type Service struct {
	store     kv.Store
	retention time.Duration
	now       func() time.Time
}

// NewService creates a Service over store. Decisions expire after
// retention, or DefaultRetention when it is not positive.
func NewService(store kv.Store, retention time.Duration) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{store: store, retention: retention, now: time.Now}
}

// Retention is the lifetime of a stored decision.
func (s *Service) Retention() time.Duration { return s.retention }

// Get returns the decision of owner. An owner without a stored choice, or
// with an unreadable one, gets the default preferences and Decided false.
func (s *Service) Get(ctx context.Context, owner string) (Decision, error) {
	none := Decision{Preferences: Preferences{Necessary: true}}

	raw, err := s.store.Get(ctx, key(owner, KeyPreferences))
	if errors.Is(err, kv.ErrNotFound) {
		return none, nil
	}
	if err != nil {
		return Decision{}, errors.Wrap(err, "get preferences")
	}

	var prefs Preferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return none, nil
	}
	prefs.Necessary = true

	d := Decision{Decided: true, Preferences: prefs}
	if rawDate, err := s.store.Get(ctx, key(owner, KeyDate)); err == nil {
		if at, err := time.Parse(time.RFC3339, string(rawDate)); err == nil {
			d.DecidedAt = at
		}
	}
	return d, nil
}

// AcceptAll allows every category.
func (s *Service) AcceptAll(ctx context.Context, owner string) (Decision, error) {
	return s.Save(ctx, owner, Preferences{Analytics: true, Marketing: true, Functional: true})
}

// RejectAll allows only necessary cookies.
func (s *Service) RejectAll(ctx context.Context, owner string) (Decision, error) {
	return s.Save(ctx, owner, Preferences{})
}

// Save stores prefs with Necessary forced on, stamped with the current time.
func (s *Service) Save(ctx context.Context, owner string, prefs Preferences) (Decision, error) {
	prefs.Necessary = true
	raw, err := json.Marshal(prefs)
	if err != nil {
		return Decision{}, errors.Wrap(err, "marshal preferences")
	}

	at := s.now().UTC().Truncate(time.Second)
	if err := s.store.Set(ctx, key(owner, KeyPreferences), raw, s.retention); err != nil {
		return Decision{}, errors.Wrap(err, "set preferences")
	}
	if err := s.store.Set(ctx, key(owner, KeyDate), []byte(at.Format(time.RFC3339)), s.retention); err != nil {
		return Decision{}, errors.Wrap(err, "set decision date")
	}
	return Decision{Decided: true, Preferences: prefs, DecidedAt: at}, nil
}

func key(owner, name string) string {
	return "consent:" + owner + ":" + name
}
