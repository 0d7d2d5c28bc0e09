package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anot-platform/anot-client/internal/api"
	"github.com/anot-platform/anot-client/internal/session"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

type backend struct {
	profileCalls  atomic.Int32
	registerCalls atomic.Int32
	refreshOK     bool
	noRefresh     bool

	// loginGate, when set, holds /login/ until closed.
	loginGate chan struct{}
}

func (b *backend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/login/", func(w http.ResponseWriter, r *http.Request) {
		if b.loginGate != nil {
			<-b.loginGate
		}
		var body api.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Phone != "998900000000" || body.Password != "writer123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		if b.noRefresh {
			_, _ = io.WriteString(w, `{"access":"a1","user":{"id":999,"phone":"998900000000","name":"Test","surname":"Writer","role":"writer","language":"ru"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"access":"a1","refresh":"r1","user":{"id":999,"phone":"998900000000","name":"Test","surname":"Writer","role":"writer","language":"ru"}}`)
	})
	r.Post("/api/register/", func(w http.ResponseWriter, r *http.Request) {
		b.registerCalls.Add(1)
		var body api.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Role != api.RoleClient || body.Password == "" {
			http.Error(w, `{"role":["invalid"]}`, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	r.Get("/api/profile/", func(w http.ResponseWriter, r *http.Request) {
		b.profileCalls.Add(1)
		switch r.Header.Get("Authorization") {
		case "Bearer A", "Bearer a1", "Bearer fresh":
			_, _ = io.WriteString(w, `{"id":5,"phone":"998901112233","name":"Ali","surname":"Valiyev","role":"client","language":"uz"}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"token_not_valid"}`)
		}
	})
	r.Post("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		if !b.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Token is blacklisted"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access":"fresh"}`)
	})
	return r
}

func newManager(t *testing.T, b *backend, store tokenstore.Store, opts ...session.Option) *session.Manager {
	t.Helper()
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)
	client := api.New(srv.URL+"/api", store)
	m := session.New(client, store, opts...)
	t.Cleanup(m.Close)
	return m
}

func TestStart_NoStoredSession(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	m := newManager(t, b, store)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.State() != session.Unauthenticated || m.IsAuthenticated() {
		t.Errorf("expected unauthenticated, got %s", m.State())
	}
	if n := b.profileCalls.Load(); n != 0 {
		t.Errorf("expected no /profile/ call, got %d", n)
	}
}

func TestStart_TokenWithoutUser(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	store.Set(tokenstore.KeyAccessToken, "A")
	m := newManager(t, b, store)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.IsAuthenticated() || b.profileCalls.Load() != 0 {
		t.Error("a token without a cached profile should not restore the session")
	}
}

func TestStart_OptimisticThenValidated(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	store.Set(tokenstore.KeyAccessToken, "A")
	store.Set(tokenstore.KeyUser, `{"id":5,"phone":"998901112233","name":"Ali","role":"client","language":"uz"}`)
	m := newManager(t, b, store)

	if got := m.Restore(); got != session.Authenticated {
		t.Fatalf("expected optimistic authenticated, got %s", got)
	}
	if u := m.User(); u == nil || u.ID != "5" {
		t.Fatalf("expected cached user 5, got %+v", u)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsAuthenticated() || m.User().Surname != "Valiyev" {
		t.Errorf("expected refreshed profile, got %+v", m.User())
	}
}

func TestStart_RevokedSessionLogsOut(t *testing.T) {
	b := &backend{refreshOK: false}
	store := tokenstore.NewNotifier(tokenstore.NewMemoryStore())
	store.Set(tokenstore.KeyAccessToken, "stale")
	store.Set(tokenstore.KeyRefreshToken, "R")
	store.Set(tokenstore.KeyUser, `{"id":5,"phone":"998901112233","name":"Ali","role":"client","language":"uz"}`)

	var (
		mu     sync.Mutex
		states []session.State
	)
	var logouts atomic.Int32
	m := newManager(t, b, store,
		session.WithLogoutHandler(func() { logouts.Add(1) }),
		session.WithStateHook(func(s session.State, _ *api.User) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}),
	)

	err := m.Start(context.Background())
	if !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if len(states) == 0 || states[0] != session.Authenticated {
		t.Errorf("expected optimistic authenticated first, got %v", states)
	}
	if m.State() != session.Unauthenticated || m.User() != nil {
		t.Errorf("expected unauthenticated, got %s", m.State())
	}
	for _, k := range []string{tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken, tokenstore.KeyUser} {
		if _, ok := store.Get(k); ok {
			t.Errorf("%s should be cleared", k)
		}
	}
	if n := logouts.Load(); n != 1 {
		t.Errorf("expected one logout navigation, got %d", n)
	}
}

func TestLogin_PersistsSession(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	m := newManager(t, b, store)
	_ = m.Restore()

	u, err := m.Login(context.Background(), "998900000000", "writer123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.ID != "999" || u.Role != api.RoleWriter {
		t.Errorf("unexpected user %+v", u)
	}
	if v, _ := store.Get(tokenstore.KeyAccessToken); v != "a1" {
		t.Errorf("access token = %q", v)
	}
	if v, _ := store.Get(tokenstore.KeyRefreshToken); v != "r1" {
		t.Errorf("refresh token = %q", v)
	}
	var cached api.User
	raw, _ := store.Get(tokenstore.KeyUser)
	if err := json.Unmarshal([]byte(raw), &cached); err != nil || cached.ID != "999" {
		t.Errorf("cached user = %s (%v)", raw, err)
	}
	if !m.IsAuthenticated() {
		t.Error("expected authenticated")
	}
	if m.Language() != api.LanguageRu {
		t.Errorf("language should follow the profile, got %s", m.Language())
	}
}

func TestLogin_WithoutRefreshDropsStaleRefreshToken(t *testing.T) {
	b := &backend{noRefresh: true}
	store := tokenstore.NewMemoryStore()
	store.Set(tokenstore.KeyRefreshToken, "previous-account")
	m := newManager(t, b, store)
	_ = m.Restore()

	if _, err := m.Login(context.Background(), "998900000000", "writer123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if v, ok := store.Get(tokenstore.KeyRefreshToken); ok {
		t.Errorf("refresh token of the previous account survived: %q", v)
	}
	if v, _ := store.Get(tokenstore.KeyAccessToken); v != "a1" {
		t.Errorf("access token = %q", v)
	}
}

func TestLogin_FailureKeepsPriorState(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	m := newManager(t, b, store)
	_ = m.Restore()

	_, err := m.Login(context.Background(), "998900000000", "wrong")
	if api.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if m.State() != session.Unauthenticated {
		t.Errorf("expected unauthenticated, got %s", m.State())
	}
	if len(store.Keys()) != 0 {
		t.Errorf("nothing should be persisted, got %v", store.Keys())
	}

	if _, err := m.Login(context.Background(), "", "x"); !errors.Is(err, session.ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestAuthenticate_RejectsReentry(t *testing.T) {
	b := &backend{loginGate: make(chan struct{})}
	store := tokenstore.NewMemoryStore()
	m := newManager(t, b, store)
	_ = m.Restore()

	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), "998900000000", "writer123")
		done <- err
	}()

	for !m.IsLoading() {
		time.Sleep(time.Millisecond)
	}
	if _, err := m.Login(context.Background(), "998900000000", "writer123"); !errors.Is(err, session.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(b.loginGate)
	if err := <-done; err != nil {
		t.Fatalf("first login: %v", err)
	}
	if !m.IsAuthenticated() {
		t.Error("first login should have completed")
	}
}

func TestRegisterThenLogin(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	m := newManager(t, b, store)
	_ = m.Restore()

	u, err := m.Authenticate(context.Background(), session.RegisterThenLogin{
		Profile:  api.RegisterRequest{Name: "Test", Surname: "Writer", Phone: "998900000000"},
		Password: "writer123",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if b.registerCalls.Load() != 1 || u.ID != "999" || !m.IsAuthenticated() {
		t.Errorf("expected registered and signed in, got %+v", u)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	var logouts atomic.Int32
	m := newManager(t, b, store, session.WithLogoutHandler(func() { logouts.Add(1) }))
	_ = m.Restore()
	if _, err := m.Login(context.Background(), "998900000000", "writer123"); err != nil {
		t.Fatal(err)
	}
	store.Set(tokenstore.KeyLanguage, "uz")

	m.Logout()
	first := store.Keys()
	m.Logout()
	second := store.Keys()

	if len(first) != 1 || len(second) != 1 || first[0] != tokenstore.KeyLanguage {
		t.Errorf("expected only the language key to remain, got %v then %v", first, second)
	}
	if m.State() != session.Unauthenticated || m.User() != nil || m.IsAuthenticated() {
		t.Error("expected empty session after logout")
	}
	if logouts.Load() != 2 {
		t.Errorf("each explicit logout navigates, got %d", logouts.Load())
	}
}

func TestIsAuthenticated_TracksStore(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	m := newManager(t, b, store)
	_ = m.Restore()
	if _, err := m.Login(context.Background(), "998900000000", "writer123"); err != nil {
		t.Fatal(err)
	}

	// A plain store publishes nothing; the check still reads it live.
	store.Remove(tokenstore.KeyAccessToken)
	if m.IsAuthenticated() {
		t.Error("no access token in the store means not authenticated")
	}
}

func TestSharedStoreConverges(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewNotifier(tokenstore.NewMemoryStore())
	first := newManager(t, b, store)
	second := newManager(t, b, store)
	_ = first.Restore()
	_ = second.Restore()

	if _, err := first.Login(context.Background(), "998900000000", "writer123"); err != nil {
		t.Fatal(err)
	}
	if second.Restore() != session.Authenticated {
		t.Fatal("second session should pick up the stored login")
	}

	store.Set(tokenstore.KeyUser, `{"id":999,"name":"Renamed","role":"writer","language":"en"}`)
	if second.User().Name != "Renamed" {
		t.Errorf("profile update not observed: %+v", second.User())
	}

	first.Logout()
	if second.State() != session.Unauthenticated || second.IsAuthenticated() {
		t.Error("logout in one session should end the other")
	}
}

func TestLanguage(t *testing.T) {
	b := &backend{}
	store := tokenstore.NewMemoryStore()
	m := newManager(t, b, store)

	if m.Language() != api.LanguageEn {
		t.Errorf("default should be en, got %s", m.Language())
	}
	if err := m.SetLanguage("uz"); err != nil {
		t.Fatal(err)
	}
	if m.Language() != api.LanguageUz {
		t.Errorf("expected uz, got %s", m.Language())
	}
	if err := m.SetLanguage("de"); err == nil {
		t.Error("unsupported language should be rejected")
	}
	store.Set(tokenstore.KeyLanguage, "ru-RU")
	if m.Language() != api.LanguageRu {
		t.Errorf("regional tag should match ru, got %s", m.Language())
	}
}
