package customer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
	"github.com/xenking/prefab-storefront/internal/domain/notify"
)

// --- Mock implementations ---

type mockProvider struct {
	mu         sync.Mutex
	session    *auth.Session
	getErr     error
	signInErr  error
	signOutErr error
	listeners  map[int]func(auth.Change)
	nextID     int
	unsubs     int
}

func newMockProvider() *mockProvider {
	return &mockProvider{listeners: map[int]func(auth.Change){}}
}

func (m *mockProvider) GetSession(_ context.Context) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.getErr
}

func (m *mockProvider) OnSessionChange(fn func(auth.Change)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
		m.unsubs++
	}
}

func (m *mockProvider) SignInWithPassword(_ context.Context, email, _ string) (*auth.Session, error) {
	if m.signInErr != nil {
		return nil, m.signInErr
	}
	sess := &auth.Session{AccessToken: "tok", User: auth.User{ID: "u1", Email: email}}
	m.emit(auth.Change{Event: auth.EventSignedIn, Session: sess})
	return sess, nil
}

func (m *mockProvider) SignOut(_ context.Context) error {
	if m.signOutErr != nil {
		return m.signOutErr
	}
	m.emit(auth.Change{Event: auth.EventSignedOut})
	return nil
}

func (m *mockProvider) emit(ch auth.Change) {
	m.mu.Lock()
	m.session = ch.Session
	fns := make([]func(auth.Change), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

type mockProfiles struct {
	byID map[string]*Profile
	err  error
}

func (m *mockProfiles) GetByID(_ context.Context, id string) (*Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p, nil
}

type memSnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memSnapshots) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memSnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type recordingToaster struct {
	mu     sync.Mutex
	toasts []notify.Toast
}

func (r *recordingToaster) Toast(t notify.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recordingToaster) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.toasts))
	for i, t := range r.toasts {
		out[i] = t.Title
	}
	return out
}

// --- Tests ---

func TestFromUser(t *testing.T) {
	tests := []struct {
		name    string
		user    auth.User
		profile *Profile
		want    Customer
	}{
		{
			name:    "metadata wins over profile",
			user:    auth.User{ID: "u1", Email: "a@b.ph", Metadata: auth.Metadata{FirstName: "Ana", LastName: "Cruz"}},
			profile: &Profile{FirstName: "Anna", LastName: "Reyes", Role: "admin"},
			want:    Customer{ID: "u1", Email: "a@b.ph", FirstName: "Ana", LastName: "Cruz", DisplayName: "Ana Cruz", Role: "admin"},
		},
		{
			name:    "profile fallback",
			user:    auth.User{ID: "u1"},
			profile: &Profile{FirstName: "Anna", LastName: "Reyes"},
			want:    Customer{ID: "u1", FirstName: "Anna", LastName: "Reyes", DisplayName: "Anna Reyes", Role: "customer"},
		},
		{
			name: "placeholder name without profile",
			user: auth.User{ID: "u1"},
			want: Customer{ID: "u1", FirstName: "User", DisplayName: "User", Role: "customer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromUser(tt.user, tt.profile))
		})
	}
}

func TestStore_MountWithSession(t *testing.T) {
	p := newMockProvider()
	p.session = &auth.Session{User: auth.User{ID: "u1", Email: "ana@example.ph"}}
	profiles := &mockProfiles{byID: map[string]*Profile{"u1": {ID: "u1", FirstName: "Ana", LastName: "Cruz"}}}
	snaps := &memSnapshots{data: map[string][]byte{}}

	s := NewStore(p, profiles, Options{Snapshots: snaps, SnapshotKey: "sess1:" + SnapshotName})
	assert.True(t, s.IsLoading())

	s.Mount(context.Background())
	defer s.Close()

	c, ok := s.Customer()
	require.True(t, ok)
	assert.Equal(t, "Ana Cruz", c.DisplayName)
	assert.False(t, s.IsLoading())

	var snap Snapshot
	require.NoError(t, json.Unmarshal(snaps.data["sess1:"+SnapshotName], &snap))
	assert.Equal(t, Snapshot{ID: "u1", Email: "ana@example.ph", FirstName: "Ana", LastName: "Cruz"}, snap)
}

func TestStore_MountWithoutSession(t *testing.T) {
	s := NewStore(newMockProvider(), nil, Options{})
	s.Mount(context.Background())
	defer s.Close()

	assert.False(t, s.IsAuthenticated())
	assert.False(t, s.IsLoading())
}

func TestStore_MountProviderError(t *testing.T) {
	p := newMockProvider()
	p.getErr = errors.New("network down")

	s := NewStore(p, nil, Options{})
	s.Mount(context.Background())
	defer s.Close()

	assert.False(t, s.IsAuthenticated())
}

func TestStore_ProfileErrorFallsBack(t *testing.T) {
	p := newMockProvider()
	p.session = &auth.Session{User: auth.User{ID: "u1"}}

	s := NewStore(p, &mockProfiles{err: errors.New("timeout")}, Options{})
	s.Mount(context.Background())
	defer s.Close()

	c, ok := s.Customer()
	require.True(t, ok)
	assert.Equal(t, "User", c.FirstName)
}

func TestStore_FollowsSessionChanges(t *testing.T) {
	p := newMockProvider()
	snaps := &memSnapshots{data: map[string][]byte{}}
	s := NewStore(p, nil, Options{Snapshots: snaps})
	s.Mount(context.Background())
	defer s.Close()

	p.emit(auth.Change{Event: auth.EventSignedIn, Session: &auth.Session{User: auth.User{ID: "u9"}}})
	c, ok := s.Customer()
	require.True(t, ok)
	assert.Equal(t, "u9", c.ID)
	assert.Contains(t, snaps.data, SnapshotName)

	p.emit(auth.Change{Event: auth.EventSignedOut})
	assert.False(t, s.IsAuthenticated())
	assert.NotContains(t, snaps.data, SnapshotName)
}

func TestStore_LoginSuccess(t *testing.T) {
	rt := &recordingToaster{}
	s := NewStore(newMockProvider(), nil, Options{Toaster: rt})
	s.Mount(context.Background())
	defer s.Close()

	ok := s.Login(context.Background(), "ana@example.ph", "secret")

	assert.True(t, ok)
	assert.True(t, s.IsAuthenticated())
	assert.Empty(t, rt.titles())
}

func TestStore_LoginFailure(t *testing.T) {
	p := newMockProvider()
	p.signInErr = auth.ErrInvalidCredentials
	rt := &recordingToaster{}
	s := NewStore(p, nil, Options{Toaster: rt})
	s.Mount(context.Background())
	defer s.Close()

	ok := s.Login(context.Background(), "ana@example.ph", "wrong")

	assert.False(t, ok)
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, []string{"Login Failed"}, rt.titles())
}

func TestStore_Logout(t *testing.T) {
	p := newMockProvider()
	p.session = &auth.Session{User: auth.User{ID: "u1"}}
	rt := &recordingToaster{}
	s := NewStore(p, nil, Options{Toaster: rt})
	s.Mount(context.Background())
	defer s.Close()

	s.Logout(context.Background())

	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, []string{"Logged out successfully"}, rt.titles())
}

func TestStore_LogoutFailureKeepsCustomer(t *testing.T) {
	p := newMockProvider()
	p.session = &auth.Session{User: auth.User{ID: "u1"}}
	p.signOutErr = errors.New("provider unavailable")
	rt := &recordingToaster{}
	s := NewStore(p, nil, Options{Toaster: rt})
	s.Mount(context.Background())
	defer s.Close()

	s.Logout(context.Background())

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, []string{"Logout Failed"}, rt.titles())
}

func TestStore_CloseUnsubscribes(t *testing.T) {
	p := newMockProvider()
	s := NewStore(p, nil, Options{})
	s.Mount(context.Background())

	s.Close()
	s.Close()

	assert.Equal(t, 1, p.unsubs)
	p.emit(auth.Change{Event: auth.EventSignedIn, Session: &auth.Session{User: auth.User{ID: "u1"}}})
	assert.False(t, s.IsAuthenticated())
}
