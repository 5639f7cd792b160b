package auth

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "memcap/src/app"
	db "memcap/src/repository"
)

func quietLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestManager(t *testing.T) (*Manager, *LocalProvider) {
	t.Helper()
	provider := NewLocalProvider(db.NewMemoryDB(), "test-secret", time.Hour)
	return NewManager(provider, db.NewInMemoryDB(), 24*time.Hour, quietLog()), provider
}

func signUpAda(t *testing.T, m *Manager) *SignUpResult {
	t.Helper()
	res, err := m.SignUp(context.Background(), SignUpRequest{Name: " Ada ", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	return res
}

func TestManagerSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	res := signUpAda(t, m)
	assert.False(t, res.ConfirmationRequired)
	require.NotNil(t, res.Session)
	assert.Equal(t, "Ada", res.User.Name)

	session, err := m.SignIn(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, session.User.ID)

	resolved, err := m.Resolve(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", resolved.User.Email)
}

func TestManagerSignUpExisting(t *testing.T) {
	m, _ := newTestManager(t)
	signUpAda(t, m)

	_, err := m.SignUp(context.Background(), SignUpRequest{Name: "Ada", Email: "ADA@example.com", Password: "another"})
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Equal(t, "An account with this email already exists. Please login instead.", app.Message(err))
}

func TestManagerWrongPasswordIsNotAValidationError(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	signUpAda(t, m)

	_, err := m.SignIn(ctx, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)
	assert.NotErrorIs(t, err, app.ErrValidation)
	wrong := app.Message(err)

	_, err = m.SignIn(ctx, "ada-at-example", "secret1")
	assert.ErrorIs(t, err, app.ErrValidation)
	assert.NotEqual(t, wrong, app.Message(err))

	_, err = m.SignIn(ctx, "nobody@example.com", "secret1")
	assert.Equal(t, wrong, app.Message(err))
}

func TestManagerResolve(t *testing.T) {
	ctx := context.Background()
	m, provider := newTestManager(t)
	session := signUpAda(t, m).Session

	_, err := m.Resolve(ctx, "")
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)

	_, err = m.Resolve(ctx, session.AccessToken+"x")
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)

	later := time.Now().Add(2 * time.Hour)
	m.now = func() time.Time { return later }
	provider.now = m.now
	_, err = m.Resolve(ctx, session.AccessToken)
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)
}

func TestManagerRefresh(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	old := signUpAda(t, m).Session

	fresh, err := m.Refresh(ctx, old.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, old.AccessToken, fresh.AccessToken)
	assert.NotEqual(t, old.RefreshToken, fresh.RefreshToken)
	assert.Equal(t, old.User.ID, fresh.User.ID)

	_, err = m.Resolve(ctx, old.AccessToken)
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)
	_, err = m.Refresh(ctx, old.RefreshToken)
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)

	_, err = m.Resolve(ctx, fresh.AccessToken)
	assert.NoError(t, err)
}

func TestManagerRefreshSpendsTokenOnce(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	old := signUpAda(t, m).Session

	const callers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Refresh(ctx, old.RefreshToken)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, app.ErrNotAuthenticated):
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(callers-1), rejected.Load())
	assert.Empty(t, m.refreshing)
}

func TestManagerSignOutAndEvents(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	session := signUpAda(t, m).Session

	events, cancel := m.Subscribe(session.User.ID)
	defer cancel()

	require.NoError(t, m.SignOut(ctx, session))
	_, err := m.Resolve(ctx, session.AccessToken)
	assert.ErrorIs(t, err, app.ErrNotAuthenticated)
	assert.NoError(t, m.SignOut(ctx, session))

	ev := <-events
	assert.Equal(t, app.EventSignedOut, ev.Type)
	assert.False(t, ev.At.IsZero())
}

func TestManagerSlowSubscriberDoesNotBlock(t *testing.T) {
	m, _ := newTestManager(t)
	events, cancel := m.Subscribe("u1")

	for i := 0; i < subscriberBuffer+5; i++ {
		m.Notify("u1", app.Event{Type: app.EventUploadProgress, Payload: i})
	}
	assert.Len(t, events, subscriberBuffer)

	cancel()
	cancel()
	m.Notify("u1", app.Event{Type: app.EventUploadProgress})
	assert.Empty(t, m.subs)
}
