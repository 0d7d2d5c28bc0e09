package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anot-platform/anot-client/internal/api"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

// mockAPI is a REST backend whose valid access token can be rotated.
type mockAPI struct {
	mu          sync.Mutex
	validAccess string
	refreshOK   bool
	newAccess   string

	refreshCalls atomic.Int32
	profileCalls atomic.Int32
	seenAuth     []string

	// refreshGate, when set, delays the refresh response until it is closed.
	refreshGate chan struct{}
}

func (m *mockAPI) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		m.refreshCalls.Add(1)
		if m.refreshGate != nil {
			select {
			case <-m.refreshGate:
			case <-time.After(2 * time.Second):
			}
		}
		var body struct {
			Refresh string `json:"refresh"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.refreshOK || body.Refresh == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Token is invalid or expired"}`)
			return
		}
		m.validAccess = m.newAccess
		_ = json.NewEncoder(w).Encode(map[string]string{"access": m.newAccess})
	})

	r.Post("/api/login/", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "" {
			http.Error(w, "unexpected auth "+auth, http.StatusBadRequest)
			return
		}
		var body api.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "writer123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"No active account found with the given credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access":"a1","refresh":"r1","user":{"id":999,"phone":"998900000000","name":"W","surname":"R","role":"writer","language":"uz"}}`)
	})

	r.Get("/api/profile/", func(w http.ResponseWriter, r *http.Request) {
		m.profileCalls.Add(1)
		auth := r.Header.Get("Authorization")
		m.mu.Lock()
		m.seenAuth = append(m.seenAuth, auth)
		valid := auth == "Bearer "+m.validAccess
		m.mu.Unlock()
		if !valid {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Given token not valid for any token type"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":5,"phone":"998901234567","name":"Ali","surname":"Valiyev","role":"client","language":"uz"}`)
	})

	r.Delete("/api/soha-fields/{id}/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func newTestClient(t *testing.T, m *mockAPI, opts ...api.Option) (*api.Client, *tokenstore.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(m.router())
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemoryStore()
	return api.New(srv.URL+"/api/", store, opts...), store
}

func TestClient_InjectsBearerToken(t *testing.T) {
	m := &mockAPI{validAccess: "A"}
	c, store := newTestClient(t, m)
	store.Set(tokenstore.KeyAccessToken, "A")

	u, err := c.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if u.ID != "5" || u.FullName() != "Ali Valiyev" {
		t.Errorf("unexpected user %+v", u)
	}
	if got := m.seenAuth[0]; got != "Bearer A" {
		t.Errorf("expected bearer A, got %q", got)
	}
	if got := c.Authorization(); got != "Bearer A" {
		t.Errorf("Authorization() = %q", got)
	}
}

func TestClient_RefreshAndReplayOnce(t *testing.T) {
	m := &mockAPI{validAccess: "B", refreshOK: true, newAccess: "B"}
	c, store := newTestClient(t, m)
	store.Set(tokenstore.KeyAccessToken, "A")
	store.Set(tokenstore.KeyRefreshToken, "R")

	if _, err := c.Profile(context.Background()); err != nil {
		t.Fatalf("profile: %v", err)
	}
	if n := m.refreshCalls.Load(); n != 1 {
		t.Errorf("expected 1 refresh, got %d", n)
	}
	if n := m.profileCalls.Load(); n != 2 {
		t.Errorf("expected original + one replay, got %d calls", n)
	}
	if m.seenAuth[1] != "Bearer B" {
		t.Errorf("replay carried %q", m.seenAuth[1])
	}
	if v, _ := store.Get(tokenstore.KeyAccessToken); v != "B" {
		t.Errorf("stored access token = %q", v)
	}
	if v, _ := store.Get(tokenstore.KeyRefreshToken); v != "R" {
		t.Errorf("refresh token should be kept, got %q", v)
	}
}

// The replay is final even when the refreshed token is rejected too.
func TestClient_SecondUnauthorizedIsReturned(t *testing.T) {
	var profileCalls, refreshCalls atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/profile/", func(w http.ResponseWriter, r *http.Request) {
		profileCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"nope"}`)
	})
	r.Post("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		_, _ = io.WriteString(w, `{"access":"B"}`)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	store := tokenstore.NewMemoryStore()
	store.Set(tokenstore.KeyAccessToken, "A")
	store.Set(tokenstore.KeyRefreshToken, "R")
	var logouts atomic.Int32
	c := api.New(srv.URL+"/api", store, api.WithForcedLogout(func() { logouts.Add(1) }))

	_, err := c.Profile(context.Background())
	if api.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 from replay, got %v", err)
	}
	if n := profileCalls.Load(); n != 2 {
		t.Errorf("expected exactly 2 profile calls, got %d", n)
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("expected exactly 1 refresh, got %d", n)
	}
	if logouts.Load() != 0 {
		t.Error("a successful refresh must not force logout")
	}
	if v, _ := store.Get(tokenstore.KeyAccessToken); v != "B" {
		t.Errorf("refreshed token not kept: %q", v)
	}
}

func TestClient_RefreshFailureForcesLogoutOnce(t *testing.T) {
	m := &mockAPI{validAccess: "B", refreshOK: false}
	var logouts atomic.Int32
	c, store := newTestClient(t, m, api.WithForcedLogout(func() { logouts.Add(1) }))
	store.Set(tokenstore.KeyAccessToken, "A")
	store.Set(tokenstore.KeyRefreshToken, "R")
	store.Set(tokenstore.KeyUser, `{"id":5}`)
	store.Set(tokenstore.KeyLanguage, "ru")

	_, err := c.Profile(context.Background())
	if !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if api.StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("refresh failure should be wrapped, got %v", err)
	}
	for _, k := range []string{tokenstore.KeyAccessToken, tokenstore.KeyRefreshToken, tokenstore.KeyUser} {
		if _, ok := store.Get(k); ok {
			t.Errorf("%s should be cleared", k)
		}
	}
	if _, ok := store.Get(tokenstore.KeyLanguage); !ok {
		t.Error("language preference should survive a forced logout")
	}
	if n := logouts.Load(); n != 1 {
		t.Errorf("expected exactly one forced logout, got %d", n)
	}
	if c.Authorization() != "" {
		t.Errorf("authorization should be cleared, got %q", c.Authorization())
	}
}

func TestClient_NoRefreshTokenReturnsOriginal401(t *testing.T) {
	m := &mockAPI{validAccess: "B", refreshOK: true, newAccess: "B"}
	var logouts atomic.Int32
	c, store := newTestClient(t, m, api.WithForcedLogout(func() { logouts.Add(1) }))
	store.Set(tokenstore.KeyAccessToken, "A")

	_, err := c.Profile(context.Background())
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 *api.Error, got %v", err)
	}
	if apiErr.Detail != "Given token not valid for any token type" {
		t.Errorf("unexpected detail %q", apiErr.Detail)
	}
	if errors.Is(err, api.ErrSessionExpired) {
		t.Error("no refresh was attempted, session should not be marked expired")
	}
	if m.refreshCalls.Load() != 0 || logouts.Load() != 0 {
		t.Error("no refresh or logout expected without a refresh token")
	}
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	m := &mockAPI{validAccess: "B", refreshOK: true, newAccess: "B", refreshGate: make(chan struct{})}
	c, store := newTestClient(t, m)
	store.Set(tokenstore.KeyAccessToken, "A")
	store.Set(tokenstore.KeyRefreshToken, "R")

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Profile(context.Background())
			errs <- err
		}()
	}

	// Release the refresh once every request has been rejected at least once.
	deadline := time.Now().Add(2 * time.Second)
	for m.profileCalls.Load() < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(m.refreshGate)

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("profile: %v", err)
		}
	}
	if got := m.refreshCalls.Load(); got != 1 {
		t.Errorf("expected a single refresh, got %d", got)
	}
}

func TestClient_LoginIsAnonymous(t *testing.T) {
	m := &mockAPI{}
	c, store := newTestClient(t, m)
	store.Set(tokenstore.KeyAccessToken, "stale")
	store.Set(tokenstore.KeyRefreshToken, "R")

	res, err := c.Login(context.Background(), "998900000000", "writer123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Access != "a1" || res.Refresh != "r1" || res.User.ID != "999" || res.User.Role != api.RoleWriter {
		t.Errorf("unexpected login response %+v", res)
	}

	_, err = c.Login(context.Background(), "998900000000", "wrong")
	if api.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if !strings.Contains(err.Error(), "No active account") {
		t.Errorf("detail not surfaced: %v", err)
	}
	if m.refreshCalls.Load() != 0 {
		t.Error("a failed login must not trigger a refresh")
	}
}

func TestClient_NoContent(t *testing.T) {
	m := &mockAPI{validAccess: "A"}
	c, store := newTestClient(t, m)
	store.Set(tokenstore.KeyAccessToken, "A")

	if err := c.Delete(context.Background(), "/soha-fields/3/"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	m := &mockAPI{validAccess: "A"}
	c, _ := newTestClient(t, m, api.WithRateLimit(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Profile(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
