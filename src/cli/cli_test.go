package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "memcap/src/app"
	cfg "memcap/src/configuration"
	server "memcap/src/server"
)

type harness struct {
	t       *testing.T
	url     string
	cfgFile string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	config := &cfg.Properties{
		Auth: cfg.AuthProperties{
			Provider:               "local",
			JWTSecret:              "cli-test-secret",
			TokenTTL:               time.Hour,
			AccessTokenCookieName:  "mc_access_token",
			RefreshTokenCookieName: "mc_refresh_token",
		},
		S3:        cfg.S3Properties{Driver: "memory", Bucket: "user-uploads", SignedURLTTL: time.Hour},
		DB:        cfg.DBProperties{Driver: "memory"},
		Session:   cfg.SessionProperties{Store: "memory", RefreshWindow: time.Hour},
		Server:    cfg.HttpServerProperties{Name: "localhost", MaxUploadBytes: 1 << 20, AllowOrigins: []string{"http://localhost"}},
		Thumbnail: cfg.ThumbnailProperties{Size: 32, CacheSize: 4, CacheTTL: time.Minute},
	}
	svc, err := server.NewServices(context.Background(), config, log)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(server.NewRouter(config, svc, log))
	t.Cleanup(srv.Close)
	return &harness{t: t, url: srv.URL, cfgFile: filepath.Join(t.TempDir(), "capsule.yaml")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", h.cfgFile, "--server", h.url}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) stored(key string) string {
	h.t.Helper()
	v := viper.New()
	v.SetConfigFile(h.cfgFile)
	require.NoError(h.t, v.ReadInConfig())
	return v.GetString(key)
}

func (h *harness) signUp() {
	h.t.Helper()
	out, err := h.run("signup", "--name", "Ada Lovelace", "--email", "ada@example.com", "--password", "secret1")
	require.NoError(h.t, err)
	assert.Contains(h.t, out, "Welcome, Ada Lovelace!")
}

func TestSignUpStoresSession(t *testing.T) {
	h := newHarness(t)
	h.signUp()
	assert.NotEmpty(t, h.stored(keyAccessToken))
	assert.NotEmpty(t, h.stored(keyRefreshToken))

	info, err := os.Stat(h.cfgFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Lovelace <ada@example.com>")
}

func TestSignUpValidatesBeforeCallingServer(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("signup", "--name", "Ada", "--email", "ada@example.com", "--password", "123")
	require.Error(t, err)
	assert.Equal(t, "Password must be at least 6 characters long", app.Message(err))
}

func TestGuardedCommandsNeedLogin(t *testing.T) {
	h := newHarness(t)
	for _, args := range [][]string{{"whoami"}, {"gallery"}, {"show", "abc"}} {
		_, err := h.run(args...)
		assert.ErrorIs(t, err, errNotLoggedIn, args)
	}
}

func TestLoginWithWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.signUp()

	_, err := h.run("login", "--email", "ada@example.com", "--password", "nope-nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Unauthenticated())
	assert.Equal(t, "not_authenticated", apiErr.Kind)

	out, err := h.run("login", "--email", "ada@example.com", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ada@example.com")
}

func TestGuardRefreshesExpiredSession(t *testing.T) {
	h := newHarness(t)
	h.signUp()
	refresh := h.stored(keyRefreshToken)

	v := viper.New()
	v.SetConfigFile(h.cfgFile)
	require.NoError(t, v.ReadInConfig())
	v.Set(keyAccessToken, "stale-token")
	require.NoError(t, v.WriteConfigAs(h.cfgFile))

	out, err := h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")
	assert.NotEqual(t, "stale-token", h.stored(keyAccessToken))
	assert.NotEqual(t, refresh, h.stored(keyRefreshToken))
}

func TestGuardForgetsRejectedRefresh(t *testing.T) {
	h := newHarness(t)
	h.signUp()

	v := viper.New()
	v.SetConfigFile(h.cfgFile)
	require.NoError(t, v.ReadInConfig())
	v.Set(keyAccessToken, "stale-token")
	v.Set(keyRefreshToken, "stale-refresh")
	require.NoError(t, v.WriteConfigAs(h.cfgFile))

	_, err := h.run("gallery")
	assert.ErrorIs(t, err, errNotLoggedIn)
	assert.Empty(t, h.stored(keyAccessToken))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.signUp()

	out, err := h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	assert.Empty(t, h.stored(keyAccessToken))

	_, err = h.run("whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestUploadGalleryShowDelete(t *testing.T) {
	h := newHarness(t)
	h.signUp()

	out, err := h.run("gallery")
	require.NoError(t, err)
	assert.Contains(t, out, "No photos yet")

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	file := filepath.Join(t.TempDir(), "Beach.JPG")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0o644))

	out, err = h.run("upload", file, "--json")
	require.NoError(t, err)
	var res app.UploadResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Regexp(t, `/\d+\.jpg$`, res.StoragePath)

	out, err = h.run("gallery", "--json")
	require.NoError(t, err)
	var items []app.GalleryItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, res.PhotoID, items[0].ID)

	out, err = h.run("show", res.PhotoID)
	require.NoError(t, err)
	assert.Contains(t, out, res.StoragePath)
	assert.Contains(t, out, "status:   uploaded")

	out, err = h.run("delete", res.PhotoID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")

	_, err = h.run("show", res.PhotoID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Kind)
}

func TestUploadMissingFile(t *testing.T) {
	h := newHarness(t)
	h.signUp()
	_, err := h.run("upload", filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProgressOf(t *testing.T) {
	event := app.Event{Type: app.EventUploadProgress, Payload: map[string]any{"percent": 60, "request_id": "r1"}}
	percent, ok := progressOf(event, "r1")
	assert.True(t, ok)
	assert.Equal(t, 60, percent)

	_, ok = progressOf(event, "r2")
	assert.False(t, ok)

	_, ok = progressOf(app.Event{Type: app.EventSignedIn}, "r1")
	assert.False(t, ok)
}
