// Package session owns the authentication state of one user session and is
// the only writer of the token store outside the refresh flow.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/anot-platform/anot-client/internal/api"
	"github.com/anot-platform/anot-client/internal/i18n"
	"github.com/anot-platform/anot-client/internal/logging"
	"github.com/anot-platform/anot-client/internal/tokenstore"
)

const component = "session"

var (
	ErrBusy               = errors.New("session: another login or registration is in progress")
	ErrMissingCredentials = errors.New("session: phone and password are required")
)

type State int

const (
	Unauthenticated State = iota
	Loading
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// AccountAction is what Authenticate should do to establish a session.
type AccountAction interface {
	credentials() (phone, password string)
}

// LoginWith signs in with existing credentials.
type LoginWith struct {
	Phone    string
	Password string
}

func (a LoginWith) credentials() (string, string) { return a.Phone, a.Password }

// RegisterThenLogin creates the account and signs in with the same
// credentials. Registration never yields tokens on its own.
type RegisterThenLogin struct {
	Profile  api.RegisterRequest
	Password string
}

func (a RegisterThenLogin) credentials() (string, string) { return a.Profile.Phone, a.Password }

// subscriber is implemented by stores that publish their mutations.
type subscriber interface {
	Subscribe(fn func(tokenstore.Change)) func()
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = logging.OrNop(l) }
}

// WithLogoutHandler sets the navigation run when the session ends, the CLI
// equivalent of returning to the login page.
func WithLogoutHandler(fn func()) Option {
	return func(m *Manager) { m.onLogout = fn }
}

// WithStateHook observes every state transition.
func WithStateHook(fn func(State, *api.User)) Option {
	return func(m *Manager) { m.onChange = fn }
}

type Manager struct {
	client *api.Client
	store  tokenstore.Store
	log    *zap.Logger

	onLogout func()
	onChange func(State, *api.User)

	mu    sync.Mutex
	state State
	user  *api.User
	busy  bool

	unsubscribe func()
}

// New wires a manager to client and store. The client's forced-logout hook is
// taken over so a failed refresh ends this session.
func New(client *api.Client, store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		store:  store,
		log:    zap.NewNop(),
		state:  Loading,
	}
	for _, opt := range opts {
		opt(m)
	}

	client.SetForcedLogoutHandler(func() {
		m.log.Info("session expired, logging out")
		m.expire()
	})
	if s, ok := store.(subscriber); ok {
		m.unsubscribe = s.Subscribe(m.observe)
	}
	return m
}

// Close detaches the manager from store notifications.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Restore loads the persisted session without any network call. With both a
// token and a cached profile the session is optimistically Authenticated.
func (m *Manager) Restore() State {
	token, hasToken := m.store.Get(tokenstore.KeyAccessToken)
	user := m.cachedUser()

	if !hasToken || token == "" || user == nil {
		m.transition(Unauthenticated, nil)
		return Unauthenticated
	}
	m.transition(Authenticated, user)
	return Authenticated
}

// Start restores the persisted session and, when one exists, validates it
// against /profile/. A failed validation ends the session.
func (m *Manager) Start(ctx context.Context) error {
	if m.Restore() != Authenticated {
		return nil
	}
	return m.RefetchUser(ctx)
}

func (m *Manager) cachedUser() *api.User {
	raw, ok := m.store.Get(tokenstore.KeyUser)
	if !ok || raw == "" {
		return nil
	}
	var u api.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		logging.LogError(m.log, component, "decode cached user", err)
		return nil
	}
	return &u
}

// Authenticate runs action and, on success, persists the token pair and the
// profile. On failure nothing is persisted and the prior state is kept.
func (m *Manager) Authenticate(ctx context.Context, action AccountAction) (*api.User, error) {
	phone, password := action.credentials()
	if strings.TrimSpace(phone) == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	m.busy = true
	prior, priorUser := m.state, m.user
	if prior == Loading {
		// Not restored yet; a failed attempt leaves the session signed out.
		prior = Unauthenticated
	}
	m.mu.Unlock()
	m.transition(Loading, priorUser)

	res, err := m.authenticate(ctx, action, phone, password)
	if err != nil {
		logging.LogError(m.log, component, "authenticate", err)
		m.finish(prior, priorUser)
		return nil, err
	}

	encoded, err := json.Marshal(res.User)
	if err != nil {
		m.finish(prior, priorUser)
		return nil, fmt.Errorf("encode user: %w", err)
	}
	m.store.Set(tokenstore.KeyAccessToken, res.Access)
	if res.Refresh != "" {
		m.store.Set(tokenstore.KeyRefreshToken, res.Refresh)
	} else {
		m.store.Remove(tokenstore.KeyRefreshToken)
	}
	m.store.Set(tokenstore.KeyUser, string(encoded))

	m.finish(Authenticated, res.User)
	m.log.Info("signed in", zap.String("user_id", res.User.ID.String()), zap.String("role", string(res.User.Role)))
	return res.User, nil
}

func (m *Manager) authenticate(ctx context.Context, action AccountAction, phone, password string) (*api.LoginResponse, error) {
	if reg, ok := action.(RegisterThenLogin); ok {
		req := reg.Profile
		req.Password = password
		if req.Role == "" {
			req.Role = api.RoleClient
		}
		if err := m.client.Register(ctx, req); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
	}
	res, err := m.client.Login(ctx, phone, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return res, nil
}

func (m *Manager) finish(s State, u *api.User) {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
	m.transition(s, u)
}

func (m *Manager) Login(ctx context.Context, phone, password string) (*api.User, error) {
	return m.Authenticate(ctx, LoginWith{Phone: phone, Password: password})
}

func (m *Manager) Register(ctx context.Context, profile api.RegisterRequest, password string) (*api.User, error) {
	return m.Authenticate(ctx, RegisterThenLogin{Profile: profile, Password: password})
}

// RefetchUser replaces the cached profile with the server's. Any failure is
// treated as a revoked session.
func (m *Manager) RefetchUser(ctx context.Context) error {
	u, err := m.client.Profile(ctx)
	if err != nil {
		logging.LogError(m.log, component, "refetch user", err)
		m.clearStore()
		m.expire()
		return err
	}

	encoded, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	m.store.Set(tokenstore.KeyUser, string(encoded))
	m.transition(Authenticated, u)
	return nil
}

// Logout ends the session. It always succeeds and is idempotent.
func (m *Manager) Logout() {
	m.transition(Unauthenticated, nil)
	m.clearStore()
	if m.onLogout != nil {
		m.onLogout()
	}
}

func (m *Manager) clearStore() {
	m.store.Remove(tokenstore.KeyAccessToken)
	m.store.Remove(tokenstore.KeyRefreshToken)
	m.store.Remove(tokenstore.KeyUser)
}

// expire converges to Unauthenticated after the store was cleared elsewhere.
// Navigation happens only on the transition itself.
func (m *Manager) expire() {
	if m.transition(Unauthenticated, nil) && m.onLogout != nil {
		m.onLogout()
	}
}

// transition reports whether the state actually changed.
func (m *Manager) transition(s State, u *api.User) bool {
	m.mu.Lock()
	changed := m.state != s
	m.state, m.user = s, u
	hook := m.onChange
	m.mu.Unlock()

	if changed {
		m.log.Debug("session state", zap.Stringer("state", s))
	}
	if hook != nil {
		hook(s, u)
	}
	return changed
}

// observe keeps this session in step with writes made by other sessions
// sharing the store.
func (m *Manager) observe(c tokenstore.Change) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != Authenticated {
		return
	}

	switch c.Key {
	case tokenstore.KeyAccessToken:
		if c.Removed || c.Value == "" {
			m.expire()
		}
	case tokenstore.KeyUser:
		if c.Removed {
			return
		}
		var u api.User
		if err := json.Unmarshal([]byte(c.Value), &u); err == nil {
			m.transition(Authenticated, &u)
		}
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns a copy of the current profile, or nil.
func (m *Manager) User() *api.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// IsAuthenticated holds only while a profile is loaded and the store still
// carries an access token.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	ok := m.state == Authenticated && m.user != nil
	m.mu.Unlock()
	if !ok {
		return false
	}
	tok, has := m.store.Get(tokenstore.KeyAccessToken)
	return has && tok != ""
}

func (m *Manager) IsLoading() bool {
	return m.State() == Loading
}

// Language returns the UI language: the stored preference, then the
// profile's language, then English.
func (m *Manager) Language() api.Language {
	if code, ok := m.store.Get(tokenstore.KeyLanguage); ok {
		if lang, err := i18n.Parse(code); err == nil {
			return lang
		}
	}
	if u := m.User(); u != nil && u.Language.Valid() {
		return u.Language
	}
	return api.LanguageEn
}

func (m *Manager) SetLanguage(lang api.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q", lang)
	}
	m.store.Set(tokenstore.KeyLanguage, string(lang))
	return nil
}
