package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/wa-connector-console/internal/credstore"
	"github.com/magabrotheeeer/wa-connector-console/internal/gateway"
	"github.com/magabrotheeeer/wa-connector-console/internal/models"
)

type AuthAPIMock struct{ mock.Mock }

func (m *AuthAPIMock) Me(ctx context.Context) (*models.UserProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *AuthAPIMock) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthResponse), args.Error(1)
}

func (m *AuthAPIMock) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthResponse), args.Error(1)
}

func (m *AuthAPIMock) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}

type RecorderMock struct{ mock.Mock }

func (m *RecorderMock) ObserveTransition(state string) {
	m.Called(state)
}

type failingStore struct{ credstore.Memory }

func (f *failingStore) Token(context.Context) (string, error) {
	return "", errors.New("keyring locked")
}

// blockingStore держит Save и Clear, пока тест не закроет release.
type blockingStore struct {
	*credstore.Memory
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore(token string) *blockingStore {
	return &blockingStore{
		Memory:  credstore.NewMemory(token),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingStore) Save(ctx context.Context, token string) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Memory.Save(ctx, token)
}

func (b *blockingStore) Clear(ctx context.Context) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Memory.Clear(ctx)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func customer() *models.UserProfile {
	return &models.UserProfile{
		ID:                 "u-1",
		Name:               "Ann",
		Email:              "ann@example.com",
		Role:               models.RoleCustomer,
		IsActive:           true,
		SubscriptionStatus: models.SubscriptionActive,
	}
}

func admin() *models.UserProfile {
	return &models.UserProfile{ID: "a-1", Name: "Root", Email: "root@example.com", Role: models.RoleAdmin, IsActive: true}
}

func httpErr(status int) error {
	return &gateway.Error{Kind: gateway.Classify(status), Method: "GET", Path: "/auth/me", Status: status}
}

func TestManager_InitialState(t *testing.T) {
	m := New(new(AuthAPIMock), credstore.NewMemory(""), newNoopLogger())
	s := m.Snapshot()
	assert.Equal(t, Unresolved, s.State)
	assert.Empty(t, s.Token)
	assert.Nil(t, s.User)
	assert.False(t, s.Loading)
}

func TestManager_Resolve_NoCredential(t *testing.T) {
	api := new(AuthAPIMock)
	m := New(api, credstore.NewMemory(""), newNoopLogger())

	s, err := m.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Anonymous, s.State)
	api.AssertNotCalled(t, "Me", mock.Anything)
}

func TestManager_Resolve_CustomerProfile(t *testing.T) {
	api := new(AuthAPIMock)
	api.On("Me", mock.Anything).Return(customer(), nil).Once()
	rec := new(RecorderMock)
	rec.On("ObserveTransition", "resolving").Once()
	rec.On("ObserveTransition", "authenticated").Once()

	m := New(api, credstore.NewMemory("tok-1"), newNoopLogger(), WithRecorder(rec))

	s, err := m.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Authenticated, s.State)
	assert.True(t, s.Authenticated())
	assert.Equal(t, "tok-1", s.Token)
	assert.False(t, s.Loading)
	require.NotNil(t, s.User)
	assert.Equal(t, models.RoleCustomer, s.User.Role)
	assert.False(t, s.User.IsAdmin())

	// повторный Resolve ничего не запрашивает
	s, err = m.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Authenticated, s.State)

	api.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestManager_Resolve_Rejected(t *testing.T) {
	for _, status := range []int{401, 403} {
		t.Run(gateway.Classify(status).String(), func(t *testing.T) {
			api := new(AuthAPIMock)
			api.On("Me", mock.Anything).Return(nil, httpErr(status)).Once()
			store := credstore.NewMemory("stale")

			m := New(api, store, newNoopLogger())
			s, err := m.Resolve(context.Background())

			require.Error(t, err)
			assert.Equal(t, Anonymous, s.State)
			assert.Nil(t, s.User)
			assert.Empty(t, s.Token)

			stored, _ := store.Token(context.Background())
			assert.Empty(t, stored)
		})
	}
}

func TestManager_Resolve_NetworkErrorKeepsCredential(t *testing.T) {
	api := new(AuthAPIMock)
	netErr := &gateway.Error{Kind: gateway.KindTransient, Err: errors.New("connection refused")}
	api.On("Me", mock.Anything).Return(nil, netErr).Once()
	api.On("Me", mock.Anything).Return(customer(), nil).Once()
	store := credstore.NewMemory("tok-1")

	m := New(api, store, newNoopLogger())
	s, err := m.Resolve(context.Background())

	require.Error(t, err)
	assert.True(t, gateway.IsTransient(err))
	assert.Equal(t, AnonymousRetryable, s.State)
	assert.Nil(t, s.User)
	assert.False(t, s.Loading)

	stored, _ := store.Token(context.Background())
	assert.Equal(t, "tok-1", stored)

	_, err = m.Gate(models.RoleCustomer)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	s, err = m.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Authenticated, s.State)
	api.AssertExpectations(t)
}

func TestManager_Resolve_StoreReadError(t *testing.T) {
	api := new(AuthAPIMock)
	m := New(api, &failingStore{}, newNoopLogger())

	s, err := m.Resolve(context.Background())
	require.Error(t, err)
	assert.Equal(t, AnonymousRetryable, s.State)
	api.AssertNotCalled(t, "Me", mock.Anything)
}

func TestManager_Resolve_ConcurrentCallsShareRequest(t *testing.T) {
	release := make(chan struct{})
	api := new(AuthAPIMock)
	api.On("Me", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(customer(), nil).Once()

	m := New(api, credstore.NewMemory("tok-1"), newNoopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Resolve(context.Background())
		}()
	}

	require.Eventually(t, func() bool { return m.Snapshot().State == Resolving }, time.Second, time.Millisecond)
	assert.True(t, m.Snapshot().Loading)
	close(release)
	wg.Wait()

	assert.Equal(t, Authenticated, m.Snapshot().State)
	api.AssertNumberOfCalls(t, "Me", 1)
}

func TestManager_Resolve_JoinsInFlightResolution(t *testing.T) {
	release := make(chan struct{})
	api := new(AuthAPIMock)
	api.On("Me", mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(customer(), nil).Once()

	m := New(api, credstore.NewMemory("tok-1"), newNoopLogger())

	first := make(chan Session, 1)
	go func() {
		s, _ := m.Resolve(context.Background())
		first <- s
	}()
	require.Eventually(t, func() bool { return m.Snapshot().State == Resolving }, time.Second, time.Millisecond)

	type result struct {
		s   Session
		err error
	}
	second := make(chan result, 1)
	go func() {
		s, err := m.Resolve(context.Background())
		second <- result{s, err}
	}()

	select {
	case r := <-second:
		t.Fatalf("resolve returned %s before the profile arrived", r.s.State)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, Authenticated, r.s.State)
	assert.False(t, r.s.Loading)
	assert.Equal(t, Authenticated, (<-first).State)
	api.AssertNumberOfCalls(t, "Me", 1)
}

func TestManager_Resolve_StaleResultDiscardedAfterLogin(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := new(AuthAPIMock)
	api.On("Me", mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(customer(), nil).Once()
	req := models.LoginRequest{Email: "root@example.com", Password: "pw"}
	api.On("Login", mock.Anything, req).Return(&models.AuthResponse{Token: "tok-admin", User: *admin()}, nil).Once()

	m := New(api, credstore.NewMemory("tok-old"), newNoopLogger())

	done := make(chan error, 1)
	go func() {
		_, err := m.Resolve(context.Background())
		done <- err
	}()
	<-started

	_, err := m.Login(context.Background(), req)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	s := m.Snapshot()
	assert.Equal(t, Authenticated, s.State)
	assert.Equal(t, "tok-admin", s.Token)
	assert.Equal(t, "a-1", s.User.ID)
}

func TestManager_Resolve_UnauthorizedViaGatewayCallback(t *testing.T) {
	api := new(AuthAPIMock)
	store := credstore.NewMemory("tok-1")
	m := New(api, store, newNoopLogger())
	api.On("Me", mock.Anything).
		Run(func(mock.Arguments) { m.Invalidate() }).
		Return(nil, &gateway.Error{Kind: gateway.KindUnauthenticated, Status: 401, Err: gateway.ErrSessionExpired}).Once()

	s, err := m.Resolve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrSessionExpired)
	assert.Equal(t, Anonymous, s.State)

	stored, _ := store.Token(context.Background())
	assert.Empty(t, stored)
}

func TestManager_LoginLogoutRoundTrip(t *testing.T) {
	api := new(AuthAPIMock)
	req := models.LoginRequest{Email: "ann@example.com", Password: "secret"}
	api.On("Login", mock.Anything, req).Return(&models.AuthResponse{Token: "tok-1", User: *customer()}, nil).Once()
	store := credstore.NewMemory("")

	m := New(api, store, newNoopLogger())
	_, err := m.Resolve(context.Background())
	require.NoError(t, err)
	before := m.Snapshot()

	user, err := m.Login(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	s := m.Snapshot()
	assert.Equal(t, Authenticated, s.State)
	assert.Equal(t, "tok-1", s.Token)
	stored, _ := store.Token(context.Background())
	assert.Equal(t, "tok-1", stored)

	m.Logout()
	assert.Equal(t, before, m.Snapshot())
	stored, _ = store.Token(context.Background())
	assert.Empty(t, stored)
	api.AssertExpectations(t)
}

func TestManager_SlowStoreDoesNotBlockSnapshot(t *testing.T) {
	api := new(AuthAPIMock)
	req := models.LoginRequest{Email: "ann@example.com", Password: "secret"}
	api.On("Login", mock.Anything, req).Return(&models.AuthResponse{Token: "tok-1", User: *customer()}, nil).Once()
	store := newBlockingStore("")

	m := New(api, store, newNoopLogger())
	_, err := m.Resolve(context.Background())
	require.NoError(t, err)

	snapshotReturns := func() bool {
		done := make(chan struct{})
		go func() {
			m.Snapshot()
			_, _ = m.Gate(models.RoleCustomer)
			close(done)
		}()
		select {
		case <-done:
			return true
		case <-time.After(time.Second):
			return false
		}
	}

	loggedIn := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), req)
		loggedIn <- err
	}()
	<-store.entered
	assert.True(t, snapshotReturns(), "snapshot blocked by credential save")
	assert.Equal(t, Anonymous, m.Snapshot().State)
	store.release <- struct{}{}
	require.NoError(t, <-loggedIn)
	assert.Equal(t, Authenticated, m.Snapshot().State)

	loggedOut := make(chan struct{})
	go func() {
		m.Logout()
		close(loggedOut)
	}()
	<-store.entered
	assert.True(t, snapshotReturns(), "snapshot blocked by credential clear")
	// сессия сброшена до того, как хранилище ответило
	assert.Equal(t, Anonymous, m.Snapshot().State)
	close(store.release)
	<-loggedOut

	stored, _ := store.Token(context.Background())
	assert.Empty(t, stored)
}

func TestManager_LoginFailureLeavesStateUnchanged(t *testing.T) {
	api := new(AuthAPIMock)
	req := models.LoginRequest{Email: "ann@example.com", Password: "wrong"}
	api.On("Login", mock.Anything, req).Return(nil, &gateway.Error{Kind: gateway.KindUnauthenticated, Status: 401, Message: "invalid credentials"}).Once()

	m := New(api, credstore.NewMemory(""), newNoopLogger())
	_, _ = m.Resolve(context.Background())

	_, err := m.Login(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.Equal(t, Anonymous, m.Snapshot().State)
}

func TestManager_Register(t *testing.T) {
	api := new(AuthAPIMock)
	req := models.RegisterRequest{Name: "Ann", Email: "ann@example.com", Password: "secret1"}
	api.On("Register", mock.Anything, req).Return(&models.AuthResponse{Token: "tok-new", User: *customer()}, nil).Once()
	store := credstore.NewMemory("")

	m := New(api, store, newNoopLogger())
	_, err := m.Register(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, Authenticated, m.Snapshot().State)
	stored, _ := store.Token(context.Background())
	assert.Equal(t, "tok-new", stored)
}

func TestManager_ForgotPassword(t *testing.T) {
	api := new(AuthAPIMock)
	api.On("ForgotPassword", mock.Anything, models.ForgotPasswordRequest{Email: "ann@example.com"}).Return(nil).Once()

	m := New(api, credstore.NewMemory(""), newNoopLogger())
	require.NoError(t, m.ForgotPassword(context.Background(), "ann@example.com"))
	assert.Equal(t, Unresolved, m.Snapshot().State)
	api.AssertExpectations(t)
}

func TestManager_RefreshProfile(t *testing.T) {
	updated := customer()
	updated.PlanType = "pro"

	tests := []struct {
		name      string
		meErr     error
		wantErr   bool
		wantState State
		wantPlan  string
		wantToken string
	}{
		{name: "replaces profile", wantState: Authenticated, wantPlan: "pro", wantToken: "tok-1"},
		{name: "unauthorized resets", meErr: httpErr(401), wantErr: true, wantState: Anonymous},
		{name: "forbidden resets", meErr: httpErr(403), wantErr: true, wantState: Anonymous},
		{name: "server error keeps session", meErr: httpErr(502), wantErr: true, wantState: Authenticated, wantToken: "tok-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(AuthAPIMock)
			api.On("Me", mock.Anything).Return(customer(), nil).Once()
			if tt.meErr != nil {
				api.On("Me", mock.Anything).Return(nil, tt.meErr).Once()
			} else {
				api.On("Me", mock.Anything).Return(updated, nil).Once()
			}
			store := credstore.NewMemory("tok-1")

			m := New(api, store, newNoopLogger())
			_, err := m.Resolve(context.Background())
			require.NoError(t, err)

			user, err := m.RefreshProfile(context.Background())
			s := m.Snapshot()
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, user)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantPlan, user.PlanType)
				assert.Equal(t, tt.wantPlan, s.User.PlanType)
			}
			assert.Equal(t, tt.wantState, s.State)
			assert.Equal(t, tt.wantToken, s.Token)
			assert.False(t, s.Loading)

			stored, _ := store.Token(context.Background())
			assert.Equal(t, tt.wantToken, stored)
		})
	}
}

func TestManager_RefreshProfile_RequiresSession(t *testing.T) {
	m := New(new(AuthAPIMock), credstore.NewMemory(""), newNoopLogger())
	_, err := m.RefreshProfile(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestManager_Gate(t *testing.T) {
	tests := []struct {
		name    string
		user    *models.UserProfile
		role    models.Role
		wantErr error
	}{
		{name: "customer on customer view", user: customer(), role: models.RoleCustomer},
		{name: "customer on admin view", user: customer(), role: models.RoleAdmin, wantErr: ErrForbiddenRole},
		{name: "admin on admin view", user: admin(), role: models.RoleAdmin},
		{name: "admin on customer view", user: admin(), role: models.RoleCustomer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(AuthAPIMock)
			api.On("Me", mock.Anything).Return(tt.user, nil).Once()
			m := New(api, credstore.NewMemory("tok"), newNoopLogger())
			_, err := m.Resolve(context.Background())
			require.NoError(t, err)

			user, err := m.Gate(tt.role)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.user.ID, user.ID)
		})
	}
}

func TestManager_Subscribe(t *testing.T) {
	api := new(AuthAPIMock)
	api.On("Me", mock.Anything).Return(customer(), nil).Once()
	m := New(api, credstore.NewMemory("tok"), newNoopLogger())

	ch, cancel := m.Subscribe()
	_, err := m.Resolve(context.Background())
	require.NoError(t, err)

	// в буфере остаётся только последнее состояние
	select {
	case s := <-ch:
		assert.Equal(t, Authenticated, s.State)
	case <-time.After(time.Second):
		t.Fatal("no session update")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unresolved", Unresolved.String())
	assert.Equal(t, "anonymous_retryable", AnonymousRetryable.String())
	assert.Equal(t, "unknown", State(42).String())
}
