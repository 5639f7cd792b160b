package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	app "memcap/src/app"
)

const (
	msgInvalidCredentials = "Invalid email or password. Please check your credentials."
	msgEmailNotConfirmed  = "Please verify your email address before logging in."
	msgUserExists         = "An account with this email already exists. Please login instead."
	msgSessionExpired     = "Your session has expired. Please login again."
)

const subscriberBuffer = 16

// tokenVerifier is implemented by providers that can check an access token
// without the session store.
type tokenVerifier interface {
	Verify(accessToken string) (*app.User, error)
}

// Manager is the one place that knows whether a user is signed in. Every
// guarded route and the event stream go through it.
type Manager struct {
	provider      IdentityProvider
	store         SessionStore
	refreshWindow time.Duration
	log           *logrus.Entry
	now           func() time.Time

	mu   sync.Mutex
	subs map[string]map[chan app.Event]struct{}

	refreshMu  sync.Mutex
	refreshing map[string]*refreshLock
}

type refreshLock struct {
	sync.Mutex
	refs int
}

func NewManager(provider IdentityProvider, store SessionStore, refreshWindow time.Duration, log *logrus.Entry) *Manager {
	return &Manager{
		provider:      provider,
		store:         store,
		refreshWindow: refreshWindow,
		log:           log,
		now:           time.Now,
		subs:          make(map[string]map[chan app.Event]struct{}),
		refreshing:    make(map[string]*refreshLock),
	}
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*app.Session, error) {
	if err := ValidateSignIn(email, password); err != nil {
		return nil, err
	}
	session, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		m.log.WithError(err).Debug("sign in rejected")
		return nil, providerFailure(err, "Failed to login. Please try again.")
	}
	if err := m.keep(ctx, session); err != nil {
		return nil, err
	}
	m.Notify(session.User.ID, app.Event{Type: app.EventSignedIn, At: m.now()})
	return session, nil
}

func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	if err := ValidateSignUp(req); err != nil {
		return nil, err
	}
	res, err := m.provider.SignUp(ctx, req)
	if err != nil {
		m.log.WithError(err).Debug("sign up rejected")
		return nil, providerFailure(err, "Failed to create account. Please try again.")
	}
	if res.Session != nil {
		if err := m.keep(ctx, res.Session); err != nil {
			return nil, err
		}
		m.Notify(res.User.ID, app.Event{Type: app.EventSignedIn, At: m.now()})
	}
	return res, nil
}

// SignOut forgets the session. Signing out twice is not an error.
func (m *Manager) SignOut(ctx context.Context, s *app.Session) error {
	if err := m.provider.SignOut(ctx, s); err != nil {
		m.log.WithError(err).Warn("identity provider sign out failed")
	}
	if err := m.store.Delete(ctx, s.AccessToken); err != nil {
		return err
	}
	m.Notify(s.User.ID, app.Event{Type: app.EventSignedOut, At: m.now()})
	return nil
}

// Refresh trades a refresh token for a new session and drops the old one.
// A refresh token is spent once: concurrent calls with the same token run
// one at a time and all but the first find it gone.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*app.Session, error) {
	if refreshToken == "" {
		return nil, app.NewFailure(app.ErrNotAuthenticated, msgSessionExpired, nil)
	}
	defer m.lockRefresh(refreshToken)()

	old, err := m.store.ByRefreshToken(ctx, refreshToken)
	if errors.Is(err, app.ErrNotFound) {
		return nil, app.NewFailure(app.ErrNotAuthenticated, msgSessionExpired, err)
	}
	if err != nil {
		return nil, err
	}
	session, err := m.provider.Refresh(ctx, old)
	if err != nil {
		m.log.WithError(err).WithField("user_id", old.User.ID).Info("refresh rejected")
		return nil, app.NewFailure(app.ErrNotAuthenticated, msgSessionExpired, err)
	}
	if err := m.store.Delete(ctx, old.AccessToken); err != nil {
		return nil, err
	}
	if err := m.keep(ctx, session); err != nil {
		return nil, err
	}
	m.Notify(session.User.ID, app.Event{Type: app.EventRefreshed, At: m.now()})
	return session, nil
}

func (m *Manager) lockRefresh(token string) func() {
	m.refreshMu.Lock()
	l, ok := m.refreshing[token]
	if !ok {
		l = &refreshLock{}
		m.refreshing[token] = l
	}
	l.refs++
	m.refreshMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.refreshMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.refreshing, token)
		}
		m.refreshMu.Unlock()
	}
}

// Resolve returns the live session of accessToken or a NotAuthenticated failure.
func (m *Manager) Resolve(ctx context.Context, accessToken string) (*app.Session, error) {
	if accessToken == "" {
		return nil, app.NewFailure(app.ErrNotAuthenticated, "Not authenticated", nil)
	}
	if v, ok := m.provider.(tokenVerifier); ok {
		if _, err := v.Verify(accessToken); err != nil {
			return nil, app.NewFailure(app.ErrNotAuthenticated, msgSessionExpired, err)
		}
	}
	session, err := m.store.ByAccessToken(ctx, accessToken)
	if errors.Is(err, app.ErrNotFound) {
		return nil, app.NewFailure(app.ErrNotAuthenticated, "Not authenticated", err)
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(m.now()) {
		return nil, app.NewFailure(app.ErrNotAuthenticated, msgSessionExpired, nil)
	}
	return session, nil
}

// keep stores s long enough for its refresh token to outlive the access token.
func (m *Manager) keep(ctx context.Context, s *app.Session) error {
	ttl := s.ExpiresAt.Sub(m.now()) + m.refreshWindow
	if ttl <= 0 {
		return app.NewFailure(app.ErrNotAuthenticated, msgSessionExpired, nil)
	}
	return m.store.Save(ctx, s, ttl)
}

// Subscribe streams the events of userID until cancel is called. Slow
// readers miss events rather than block publishers.
func (m *Manager) Subscribe(userID string) (<-chan app.Event, func()) {
	ch := make(chan app.Event, subscriberBuffer)
	m.mu.Lock()
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[chan app.Event]struct{})
	}
	m.subs[userID][ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[userID], ch)
			if len(m.subs[userID]) == 0 {
				delete(m.subs, userID)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Notify implements app.Notifier.
func (m *Manager) Notify(userID string, event app.Event) {
	if event.At.IsZero() {
		event.At = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[userID] {
		select {
		case ch <- event:
		default:
			m.log.WithFields(logrus.Fields{"user_id": userID, "event": event.Type}).Debug("subscriber is full, event dropped")
		}
	}
}

func providerFailure(err error, fallback string) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return app.NewFailure(app.ErrNotAuthenticated, msgInvalidCredentials, err)
	case errors.Is(err, ErrEmailNotConfirmed):
		return app.NewFailure(app.ErrNotAuthenticated, msgEmailNotConfirmed, err)
	case errors.Is(err, ErrUserExists):
		return app.NewFailure(app.ErrValidation, msgUserExists, err)
	case errors.Is(err, ErrSignUpUnsupported):
		return app.NewFailure(app.ErrValidation, "Sign up is not available here. Please use your organisation account.", err)
	}
	return app.NewFailure(app.ErrNotAuthenticated, fallback, err)
}
