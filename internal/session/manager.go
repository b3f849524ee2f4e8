package session

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
	"github.com/xenking/prefab-storefront/internal/domain/cart"
	"github.com/xenking/prefab-storefront/internal/domain/checkout"
	"github.com/xenking/prefab-storefront/internal/domain/customer"
	"github.com/xenking/prefab-storefront/internal/domain/notify"
	"github.com/xenking/prefab-storefront/internal/domain/relay"
	"github.com/xenking/prefab-storefront/internal/kv"
	"github.com/xenking/prefab-storefront/pkg/httpmiddleware"
)

// DefaultCookie names the session cookie.
const DefaultCookie = "sf_session"

// ErrTooManySessions is returned when a client opens new sessions faster
// than the admission limiter allows.
var ErrTooManySessions = errors.New("too many new sessions")

// Config tunes a Manager. Zero values take defaults.
type Config struct {
	Cookie          string
	Secure          bool
	IdleTTL         time.Duration
	JanitorInterval time.Duration
	SnapshotTTL     time.Duration
	// FeedBuffer is the per-session backlog of undelivered order events.
	FeedBuffer int
}

func (c *Config) setDefaults() {
	if c.Cookie == "" {
		c.Cookie = DefaultCookie
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Minute
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = c.IdleTTL
	}
	if c.FeedBuffer <= 0 {
		c.FeedBuffer = 16
	}
}

// Restorer turns a bearer access token into an auth session.
type Restorer interface {
	SessionFromToken(token string) (*auth.Session, error)
}

// Deps are the shared collaborators of every session.
type Deps struct {
	Orders    checkout.OrderPlacer
	Profiles  customer.ProfileRepository
	Snapshots kv.Store
	// NewProvider creates the identity provider of a new session.
	NewProvider func() auth.Provider
	// Restorer, when set, adopts a bearer token sent with the first request
	// of a session.
	Restorer Restorer
	// OrderFeed, when set, relays order insert events to every session.
	OrderFeed *relay.Fanout
	// Admission, when set, limits new sessions per client IP.
	Admission httpmiddleware.Limiter

	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Manager owns the live sessions. It is safe for concurrent use.
type Manager struct {
	cfg       Config
	deps      Deps
	validator *checkout.Validator
	lg        *zap.Logger
	now       func() time.Time

	evicted metric.Int64Counter
	active  metric.Int64UpDownCounter

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	cfg.setDefaults()
	if deps.NewProvider == nil {
		return nil, errors.New("identity provider factory is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order placer is required")
	}
	if deps.Snapshots == nil {
		deps.Snapshots = kv.NewMemory()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.MeterProvider == nil {
		deps.MeterProvider = noop.NewMeterProvider()
	}

	meter := deps.MeterProvider.Meter("session")
	evicted, err := meter.Int64Counter("session.evicted",
		metric.WithDescription("Sessions evicted after idling"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create evicted counter")
	}
	active, err := meter.Int64UpDownCounter("session.active",
		metric.WithDescription("Live sessions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create active counter")
	}

	return &Manager{
		cfg:       cfg,
		deps:      deps,
		validator: checkout.NewValidator(),
		lg:        deps.Logger,
		now:       time.Now,
		evicted:   evicted,
		active:    active,
		sessions:  make(map[string]*Session),
	}, nil
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	return s, ok
}

// Live reports whether id names a live session.
func (m *Manager) Live(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// NotifyCustomer adds n to every live session signed in as customerID and
// streams it to their event subscribers. It returns how many sessions
// received it.
func (m *Manager) NotifyCustomer(customerID string, n notify.Notification) int {
	m.mu.Lock()
	targets := make([]*Session, 0, 1)
	for _, s := range m.sessions {
		if c, ok := s.Customer.Customer(); ok && c.ID == customerID {
			targets = append(targets, s)
		}
	}
	m.mu.Unlock()

	for _, s := range targets {
		s.Events.Notify(s.Notifications.Add(n))
	}
	return len(targets)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// Open returns the session with id, creating a new one under a fresh id
// when id is unknown. created reports whether a session was created.
func (m *Manager) Open(ctx context.Context, id string) (s *Session, created bool, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false, errors.New("session manager is closed")
	}
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		s.Touch(m.now())
		return s, false, nil
	}
	m.mu.Unlock()

	s, err = m.create(ctx, uuid.NewString(), nil)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (m *Manager) create(ctx context.Context, id string, bearer *auth.Session) (*Session, error) {
	lg := m.lg.With(zap.String("session_id", id))
	hub := notify.NewHub()
	provider := m.deps.NewProvider()
	if r, ok := provider.(interface{ Restore(*auth.Session) }); ok && bearer != nil {
		r.Restore(bearer)
	}

	coord, err := checkout.New(m.deps.Orders, m.validator, checkout.Options{
		Toaster: hub,
		Logger:  lg.Named("checkout"),
		Meter:   m.deps.MeterProvider.Meter("checkout"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create checkout")
	}

	s := &Session{
		ID:            id,
		Cart:          cart.NewStore(),
		Checkout:      coord,
		Notifications: notify.NewList(hub),
		Events:        hub,
		Auth:          provider,
		created:       m.now(),
		Customer: customer.NewStore(provider, m.deps.Profiles, customer.Options{
			Snapshots:   m.deps.Snapshots,
			SnapshotKey: customer.SnapshotName + ":" + id,
			SnapshotTTL: m.cfg.SnapshotTTL,
			Toaster:     hub,
			Logger:      lg.Named("customer"),
		}),
	}
	s.Touch(s.created)

	// Sessions outlive the request that opened them.
	base := context.WithoutCancel(ctx)
	s.Customer.Mount(base)

	if m.deps.OrderFeed != nil {
		s.tap = m.deps.OrderFeed.Tap(m.cfg.FeedBuffer)
		sub, err := relay.Subscribe(base, s.tap, relay.Sink{
			Notifications: notifications{list: s.Notifications, hub: hub},
			Toaster:       hub,
		}, relay.Options{
			Logger:         lg.Named("relay"),
			MeterProvider:  m.deps.MeterProvider,
			TracerProvider: m.deps.TracerProvider,
			Now:            m.now,
		})
		if err != nil {
			s.Close()
			return nil, errors.Wrap(err, "subscribe to order feed")
		}
		s.orderFeed = sub
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Close()
		return nil, errors.New("session manager is closed")
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.active.Add(ctx, 1)
	lg.Debug("Session opened")
	return s, nil
}

// Evict closes and forgets the session with id.
func (m *Manager) Evict(ctx context.Context, id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	m.active.Add(ctx, -1)
	return true
}

// Sweep evicts every session idle for longer than the idle TTL and returns
// how many were evicted.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if n := int64(len(idle)); n > 0 {
		m.active.Add(ctx, -n)
		m.evicted.Add(ctx, n)
		m.lg.Info("Evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Close closes every session and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

type ctxKey struct{}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Middleware attaches the session named by the cookie to every request,
// opening a new one and setting the cookie when needed.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(m.cfg.Cookie); err == nil {
				id = c.Value
			}

			s, created, err := m.open(r, id)
			if errors.Is(err, ErrTooManySessions) {
				http.Error(w, err.Error(), http.StatusTooManyRequests)
				return
			}
			if err != nil {
				zctx.From(r.Context()).Error("Open session", zap.Error(err))
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}
			if created {
				http.SetCookie(w, &http.Cookie{
					Name:     m.cfg.Cookie,
					Value:    s.ID,
					Path:     "/",
					HttpOnly: true,
					Secure:   m.cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := zctx.With(WithSession(r.Context(), s), zap.String("session_id", s.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *Manager) open(r *http.Request, id string) (*Session, bool, error) {
	if s, ok := m.Get(id); ok {
		s.Touch(m.now())
		return s, false, nil
	}
	if err := m.admit(r); err != nil {
		return nil, false, err
	}

	var bearer *auth.Session
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && m.deps.Restorer != nil {
		restored, err := m.deps.Restorer.SessionFromToken(token)
		if err != nil {
			zctx.From(r.Context()).Info("Ignoring bearer token", zap.Error(err))
		} else {
			bearer = restored
		}
	}

	s, err := m.create(r.Context(), uuid.NewString(), bearer)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// admit charges a new session to the client IP. The request passes when the
// limiter fails.
func (m *Manager) admit(r *http.Request) error {
	if m.deps.Admission == nil {
		return nil
	}
	ip := httpmiddleware.ClientIP(r)
	q, err := m.deps.Admission.Allow(r.Context(), ip, m.now())
	if err != nil {
		zctx.From(r.Context()).Warn("Session admission unavailable", zap.Error(err))
		return nil
	}
	if !q.Allowed {
		zctx.From(r.Context()).Info("Session admission denied", zap.String("ip", ip))
		return ErrTooManySessions
	}
	return nil
}
