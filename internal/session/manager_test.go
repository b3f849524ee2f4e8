package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
	"github.com/xenking/prefab-storefront/internal/domain/customer"
	"github.com/xenking/prefab-storefront/internal/domain/notify"
	"github.com/xenking/prefab-storefront/internal/domain/order"
	"github.com/xenking/prefab-storefront/internal/domain/product"
	"github.com/xenking/prefab-storefront/internal/domain/relay"
	"github.com/xenking/prefab-storefront/internal/kv"
	"github.com/xenking/prefab-storefront/pkg/httpmiddleware"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// --- Mock implementations ---

type fakeProvider struct {
	mu        sync.Mutex
	session   *auth.Session
	listeners int
}

func (p *fakeProvider) GetSession(context.Context) (*auth.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

func (p *fakeProvider) OnSessionChange(func(auth.Change)) func() {
	p.mu.Lock()
	p.listeners++
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.listeners--
		p.mu.Unlock()
	}
}

func (p *fakeProvider) SignInWithPassword(context.Context, string, string) (*auth.Session, error) {
	return nil, auth.ErrInvalidCredentials
}

func (p *fakeProvider) SignOut(context.Context) error { return nil }

func (p *fakeProvider) Restore(s *auth.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

func (p *fakeProvider) subscribed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listeners
}

type noOrders struct{}

func (noOrders) PlaceOrder(context.Context, order.PlaceOrderRequest) (*order.Order, error) {
	return nil, errors.New("not wired")
}

type tokenRestorer map[string]*auth.Session

func (r tokenRestorer) SessionFromToken(token string) (*auth.Session, error) {
	s, ok := r[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return s, nil
}

type chanFeed chan []byte

func (f chanFeed) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p := <-f:
		return p, nil
	}
}

// --- Helpers ---

type harness struct {
	m         *Manager
	providers []*fakeProvider
	snapshots *kv.Memory
	now       time.Time
}

func newHarness(t *testing.T, cfg Config, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{snapshots: kv.NewMemory(), now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	deps := Deps{
		Orders:    noOrders{},
		Snapshots: h.snapshots,
		NewProvider: func() auth.Provider {
			p := &fakeProvider{}
			h.providers = append(h.providers, p)
			return p
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	m, err := NewManager(cfg, deps)
	require.NoError(t, err)
	m.now = func() time.Time { return h.now }
	h.m = m
	t.Cleanup(m.Close)
	return h
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == DefaultCookie {
			return c
		}
	}
	return nil
}

// --- Tests ---

func TestNewManager_RequiresDeps(t *testing.T) {
	_, err := NewManager(Config{}, Deps{Orders: noOrders{}})
	require.ErrorContains(t, err, "identity provider")

	_, err = NewManager(Config{}, Deps{NewProvider: func() auth.Provider { return &fakeProvider{} }})
	require.ErrorContains(t, err, "order placer")
}

func TestManager_OpenReusesKnownSessions(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	s, created, err := h.m.Open(ctx, "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Customer.IsLoading(), "identity is resolved on open")

	again, created, err := h.m.Open(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s, again)

	other, created, err := h.m.Open(ctx, "forged-id")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "forged-id", other.ID, "unknown ids are never adopted")
	assert.Equal(t, 2, h.m.Len())
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	a, _, err := h.m.Open(context.Background(), "")
	require.NoError(t, err)
	b, _, err := h.m.Open(context.Background(), "")
	require.NoError(t, err)

	a.Cart.AddToCart(product.Product{ID: "p1", Name: "Cabin"}, 1)
	a.Notifications.Push(notify.Notification{Message: "hi"})

	assert.True(t, b.Cart.IsEmpty())
	assert.Empty(t, b.Notifications.Items())
	assert.NotSame(t, a.Cart, b.Cart)
	assert.NotSame(t, a.Checkout, b.Checkout)
}

func TestManager_Middleware(t *testing.T) {
	h := newHarness(t, Config{Secure: true}, nil)

	var seen []string
	handler := h.m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = append(seen, s.ID)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	c := sessionCookie(t, w)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "/", c.Path)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(c)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Nil(t, sessionCookie(t, w), "known sessions keep their cookie")

	require.Len(t, seen, 2)
	assert.Equal(t, c.Value, seen[0])
	assert.Equal(t, seen[0], seen[1])
}

func TestManager_AdmissionCapsNewSessionsPerIP(t *testing.T) {
	h := newHarness(t, Config{}, func(d *Deps) {
		d.Admission = httpmiddleware.NewMemoryLimiter(2, time.Minute)
	})
	handler := h.m.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	codes := make([]int, 0, 5)
	for i := range 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.RemoteAddr = "10.0.0.7:1234"
		req.AddCookie(&http.Cookie{Name: DefaultCookie, Value: fmt.Sprintf("forged-%d", i)})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{200, 200, 429, 429, 429}, codes)
	assert.Equal(t, 2, h.m.Len())

	h.m.mu.Lock()
	ids := make([]string, 0, len(h.m.sessions))
	for id := range h.m.sessions {
		ids = append(ids, id)
	}
	h.m.mu.Unlock()

	// Live sessions are not charged again.
	for _, id := range ids {
		assert.True(t, h.m.Live(id))
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.RemoteAddr = "10.0.0.7:1234"
		req.AddCookie(&http.Cookie{Name: DefaultCookie, Value: id})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.False(t, h.m.Live("forged-0"))
}

func TestManager_BearerTokenRestoresIdentity(t *testing.T) {
	restored := &auth.Session{
		AccessToken: "tok-1",
		User:        auth.User{ID: "u-1", Email: "maria@example.ph", Metadata: auth.Metadata{FirstName: "Maria"}},
	}
	h := newHarness(t, Config{}, func(d *Deps) {
		d.Restorer = tokenRestorer{"tok-1": restored}
	})

	var sess *Session
	handler := h.m.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		sess, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, sess)
	c, ok := sess.Customer.Customer()
	require.True(t, ok)
	assert.Equal(t, "u-1", c.ID)

	raw, err := h.snapshots.Get(context.Background(), customer.SnapshotName+":"+sess.ID)
	require.NoError(t, err)
	var snap customer.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "Maria", snap.FirstName)

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer forged")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, sess.Customer.IsAuthenticated())
}

func TestManager_SweepEvictsIdleSessions(t *testing.T) {
	h := newHarness(t, Config{IdleTTL: 10 * time.Minute}, nil)
	ctx := context.Background()

	idle, _, err := h.m.Open(ctx, "")
	require.NoError(t, err)
	h.now = h.now.Add(8 * time.Minute)
	busy, _, err := h.m.Open(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, h.providers[0].subscribed())

	h.now = h.now.Add(5 * time.Minute)
	assert.Equal(t, 1, h.m.Sweep(ctx))

	_, ok := h.m.Get(idle.ID)
	assert.False(t, ok)
	_, ok = h.m.Get(busy.ID)
	assert.True(t, ok)
	assert.Zero(t, h.providers[0].subscribed(), "eviction closes the identity subscription")
	assert.Equal(t, 1, h.providers[1].subscribed())

	h.now = h.now.Add(time.Minute)
	_, _, err = h.m.Open(ctx, busy.ID)
	require.NoError(t, err)
	h.now = h.now.Add(9 * time.Minute)
	assert.Zero(t, h.m.Sweep(ctx), "touching a session keeps it alive")
}

func TestManager_EvictAndClose(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	s, _, err := h.m.Open(ctx, "")
	require.NoError(t, err)
	assert.True(t, h.m.Evict(ctx, s.ID))
	assert.False(t, h.m.Evict(ctx, s.ID))

	_, _, err = h.m.Open(ctx, "")
	require.NoError(t, err)
	h.m.Close()
	assert.Zero(t, h.m.Len())

	_, _, err = h.m.Open(ctx, "")
	require.ErrorContains(t, err, "closed")
}

func TestManager_RunClosesSessionsOnShutdown(t *testing.T) {
	h := newHarness(t, Config{JanitorInterval: time.Millisecond}, nil)
	_, _, err := h.m.Open(context.Background(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(timeout):
		t.Fatal("Run did not return")
	}
	assert.Zero(t, h.m.Len())
	assert.Zero(t, h.providers[0].subscribed())
}

func TestManager_RelaysOrderEventsToEverySession(t *testing.T) {
	src := make(chanFeed, 4)
	fanout := relay.NewFanout(src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	h := newHarness(t, Config{}, func(d *Deps) { d.OrderFeed = fanout })
	a, _, err := h.m.Open(context.Background(), "")
	require.NoError(t, err)
	b, _, err := h.m.Open(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, a.Live())

	events, stop := a.Events.Subscribe(8)
	defer stop()

	src <- []byte(`{"id":"ord-7","status":"Pending","customer_name":"Ana"}`)

	for _, s := range []*Session{a, b} {
		require.Eventually(t, func() bool { return len(s.Notifications.Items()) == 1 }, timeout, tick)
		n := s.Notifications.Items()[0]
		assert.Equal(t, "ord-7", n.OrderID)
		assert.Equal(t, "New order from Ana", n.Message)
	}

	var kinds []notify.EventKind
	require.Eventually(t, func() bool {
		select {
		case e := <-events:
			kinds = append(kinds, e.Kind)
		default:
		}
		return len(kinds) == 2
	}, timeout, tick)
	assert.ElementsMatch(t, []notify.EventKind{notify.EventNotification, notify.EventToast}, kinds)

	require.True(t, h.m.Evict(context.Background(), a.ID))
	assert.False(t, a.Live())
	assert.True(t, b.Live())
}
