package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	app "memcap/src/app"
	cfg "memcap/src/configuration"
)

// sessionStore is the contract shared by the memory and Redis stores.
type sessionStore interface {
	Save(ctx context.Context, s *app.Session, ttl time.Duration) error
	ByAccessToken(ctx context.Context, accessToken string) (*app.Session, error)
	ByRefreshToken(ctx context.Context, refreshToken string) (*app.Session, error)
	Delete(ctx context.Context, accessToken string) error
}

func testSession() *app.Session {
	return &app.Session{
		AccessToken:  "someAccessToken",
		RefreshToken: "someRefreshToken",
		ExpiresAt:    time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC),
		User:         app.User{ID: "u1", Email: "ada@example.com"},
	}
}

func exerciseSessions(t *testing.T, store sessionStore) {
	ctx := context.Background()
	session := testSession()

	t.Run("Save", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, session, time.Hour))
		assert.Error(t, store.Save(ctx, &app.Session{}, time.Hour))
	})

	t.Run("Lookup", func(t *testing.T) {
		got, err := store.ByAccessToken(ctx, "someAccessToken")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.User.ID)
		assert.Equal(t, "ada@example.com", got.User.Email)
		assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))

		got, err = store.ByRefreshToken(ctx, "someRefreshToken")
		require.NoError(t, err)
		assert.Equal(t, "someAccessToken", got.AccessToken)

		_, err = store.ByAccessToken(ctx, "unknown")
		assert.ErrorIs(t, err, app.ErrNotFound)
		_, err = store.ByRefreshToken(ctx, "unknown")
		assert.ErrorIs(t, err, app.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, session, time.Hour))
		require.NoError(t, store.Delete(ctx, "someAccessToken"))
		_, err := store.ByAccessToken(ctx, "someAccessToken")
		assert.ErrorIs(t, err, app.ErrNotFound)
		_, err = store.ByRefreshToken(ctx, "someRefreshToken")
		assert.ErrorIs(t, err, app.ErrNotFound)
		assert.NoError(t, store.Delete(ctx, "someAccessToken"))
	})
}

func TestInMemoryDB(t *testing.T) {
	ctx := context.Background()
	db := NewInMemoryDB()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	exerciseSessions(t, db)

	t.Run("Expiry", func(t *testing.T) {
		require.NoError(t, db.Save(ctx, testSession(), time.Hour))
		now = now.Add(2 * time.Hour)
		_, err := db.ByAccessToken(ctx, "someAccessToken")
		assert.ErrorIs(t, err, app.ErrNotFound)
		assert.Equal(t, 1, db.Purge())
	})
}

// Needs docker; run with TEST_INTEGRATION=1.
func TestRedisSessions(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("TEST_INTEGRATION is not set")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	store, err := NewRedis(cfg.RedisProperties{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	exerciseSessions(t, store)

	t.Run("TTL", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, testSession(), time.Minute))
		for _, key := range []string{accessPrefix + "someAccessToken", refreshPrefix + "someRefreshToken"} {
			ttl, err := store.client.TTL(ctx, key).Result()
			require.NoError(t, err)
			assert.True(t, ttl > 0 && ttl <= time.Minute, "%s ttl %s", key, ttl)
		}

		require.NoError(t, store.Save(ctx, testSession(), 2*time.Second))
		assert.Eventually(t, func() bool {
			_, err := store.ByRefreshToken(ctx, "someRefreshToken")
			return err != nil
		}, 10*time.Second, 200*time.Millisecond)
	})
}
