// Package customer maps the external auth session onto the storefront's
// Customer view model and exposes login and logout.
package customer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
	"github.com/xenking/prefab-storefront/internal/domain/notify"
)

// SnapshotName is the session-scoped key holding the signed-in customer.
const SnapshotName = "customerAuthenticated"

// Snapshots is session-scoped storage for the customer snapshot.
type Snapshots interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Snapshot is the serialized customer kept in session storage.
type Snapshot struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Options configure a Store. Every field is optional.
type Options struct {
	Snapshots   Snapshots
	SnapshotKey string
	SnapshotTTL time.Duration
	Toaster     notify.Toaster
	Logger      *zap.Logger
	// ResolveTimeout bounds profile lookups triggered by session changes.
	ResolveTimeout time.Duration
}

// Store tracks the customer of one browser session. Provider and storage
// failures are logged and surfaced as toasts; they never escape the Store.
type Store struct {
	provider  auth.Provider
	profiles  ProfileRepository
	snapshots Snapshots
	key       string
	ttl       time.Duration
	toaster   notify.Toaster
	lg        *zap.Logger
	timeout   time.Duration

	mu          sync.RWMutex
	customer    *Customer
	loading     bool
	baseCtx     context.Context
	unsubscribe func()
}

// NewStore creates a Store. Call Mount before use and Close when the owning
// session ends.
func NewStore(provider auth.Provider, profiles ProfileRepository, opts Options) *Store {
	s := &Store{
		provider:  provider,
		profiles:  profiles,
		snapshots: opts.Snapshots,
		key:       opts.SnapshotKey,
		ttl:       opts.SnapshotTTL,
		toaster:   opts.Toaster,
		lg:        opts.Logger,
		timeout:   opts.ResolveTimeout,
		loading:   true,
	}
	if s.key == "" {
		s.key = SnapshotName
	}
	if s.toaster == nil {
		s.toaster = notify.Discard
	}
	if s.lg == nil {
		s.lg = zap.NewNop()
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	return s
}

// Mount resolves the current session and subscribes to session changes.
// Calling Mount again is a no-op.
func (s *Store) Mount(ctx context.Context) {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.baseCtx = context.WithoutCancel(ctx)
	s.unsubscribe = s.provider.OnSessionChange(s.onChange)
	s.mu.Unlock()

	sess, err := s.provider.GetSession(ctx)
	if err != nil {
		s.lg.Warn("Get session failed", zap.Error(err))
		sess = nil
	}
	s.apply(ctx, sess)
}

// Close releases the session change subscription.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = func() {}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Customer returns the signed-in customer.
func (s *Store) Customer() (Customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.customer == nil {
		return Customer{}, false
	}
	return *s.customer, true
}

// IsAuthenticated reports whether a customer is signed in.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Customer()
	return ok
}

// IsLoading reports whether the initial session has not been resolved yet.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loading
}

// Login signs in with email and password. It reports success; failures are
// shown as a "Login Failed" toast.
func (s *Store) Login(ctx context.Context, email, password string) bool {
	sess, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.lg.Info("Login failed", zap.String("email", email), zap.Error(err))
		s.toaster.Toast(notify.Toast{
			Title:       "Login Failed",
			Description: loginMessage(err),
			Variant:     notify.VariantDestructive,
		})
		return false
	}

	// The customer is set when Login returns, before SIGNED_IN arrives.
	s.apply(ctx, sess)
	return true
}

// Logout signs out and clears the customer.
func (s *Store) Logout(ctx context.Context) {
	if err := s.provider.SignOut(ctx); err != nil {
		s.lg.Warn("Logout failed", zap.Error(err))
		s.toaster.Toast(notify.Toast{
			Title:       "Logout Failed",
			Description: err.Error(),
			Variant:     notify.VariantDestructive,
		})
		return
	}

	s.apply(ctx, nil)
	s.toaster.Toast(notify.Toast{Title: "Logged out successfully", Variant: notify.VariantDefault})
}

func (s *Store) onChange(ch auth.Change) {
	s.mu.RLock()
	base := s.baseCtx
	s.mu.RUnlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()

	s.lg.Debug("Session changed", zap.String("event", string(ch.Event)))
	s.apply(ctx, ch.Session)
}

// apply sets or clears the customer for sess and mirrors it to the snapshot.
func (s *Store) apply(ctx context.Context, sess *auth.Session) {
	if sess == nil {
		s.mu.Lock()
		s.customer = nil
		s.loading = false
		s.mu.Unlock()

		s.deleteSnapshot(ctx)
		return
	}

	c := FromUser(sess.User, s.lookupProfile(ctx, sess.User.ID))

	s.mu.Lock()
	s.customer = &c
	s.loading = false
	s.mu.Unlock()

	s.writeSnapshot(ctx, c)
}

func (s *Store) lookupProfile(ctx context.Context, userID string) *Profile {
	if s.profiles == nil {
		return nil
	}
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			s.lg.Warn("Profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	return p
}

func (s *Store) writeSnapshot(ctx context.Context, c Customer) {
	if s.snapshots == nil {
		return
	}
	data, err := json.Marshal(Snapshot{ID: c.ID, Email: c.Email, FirstName: c.FirstName, LastName: c.LastName})
	if err != nil {
		s.lg.Error("Marshal customer snapshot", zap.Error(err))
		return
	}
	if err := s.snapshots.Set(ctx, s.key, data, s.ttl); err != nil {
		s.lg.Warn("Write customer snapshot", zap.Error(err))
	}
}

func (s *Store) deleteSnapshot(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.Delete(ctx, s.key); err != nil {
		s.lg.Warn("Delete customer snapshot", zap.Error(err))
	}
}

func loginMessage(err error) string {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return "Invalid email or password."
	}
	return err.Error()
}
