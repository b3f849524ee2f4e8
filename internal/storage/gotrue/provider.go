package gotrue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
)

// refreshMargin is how long before expiry GetSession refreshes the token.
const refreshMargin = 30 * time.Second

var _ auth.Provider = (*Provider)(nil)

// Provider holds the auth session of one browser session.
type Provider struct {
	client *Client
	lg     *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	session   *auth.Session
	listeners map[uint64]func(auth.Change)
	next      uint64
}

// NewProvider creates a signed-out Provider.
func NewProvider(client *Client, lg *zap.Logger) *Provider {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Provider{
		client:    client,
		lg:        lg,
		now:       time.Now,
		listeners: map[uint64]func(auth.Change){},
	}
}

// Restore adopts a session obtained elsewhere, such as a verified access
// token carried by the request. No change is announced.
func (p *Provider) Restore(s *auth.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

// GetSession returns the current session, refreshing it when it is about to
// expire. A failed refresh signs the session out.
func (p *Provider) GetSession(ctx context.Context) (*auth.Session, error) {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()

	if s == nil {
		return nil, nil
	}
	if s.ExpiresAt.IsZero() || p.now().Add(refreshMargin).Before(s.ExpiresAt) {
		return s, nil
	}
	if s.RefreshToken == "" {
		if s.Expired(p.now()) {
			p.set(nil, auth.EventSignedOut)
			return nil, nil
		}
		return s, nil
	}

	fresh, err := p.client.RefreshGrant(ctx, s.RefreshToken)
	if err != nil {
		p.lg.Info("Token refresh failed", zap.String("user_id", s.User.ID), zap.Error(err))
		if s.Expired(p.now()) {
			p.set(nil, auth.EventSignedOut)
			return nil, nil
		}
		return s, nil
	}
	p.set(fresh, auth.EventTokenRefreshed)
	return fresh, nil
}

func (p *Provider) OnSessionChange(fn func(auth.Change)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	s, err := p.client.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, err
	}
	p.set(s, auth.EventSignedIn)
	return s, nil
}

// SignOut revokes the session. Signing out while signed out is a no-op.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := p.client.Logout(ctx, s.AccessToken); err != nil {
		return err
	}
	p.set(nil, auth.EventSignedOut)
	return nil
}

// set swaps the session and notifies listeners outside the lock.
func (p *Provider) set(s *auth.Session, ev auth.Event) {
	p.mu.Lock()
	p.session = s
	fns := make([]func(auth.Change), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	ch := auth.Change{Event: ev, Session: s}
	for _, fn := range fns {
		fn(ch)
	}
}
