package app_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "memcap/src/app"
	db "memcap/src/repository"
)

func seed(t *testing.T, objects app.ObjectStore, photos app.PhotoStore, userID, key string, payload []byte) *app.PhotoRecord {
	t.Helper()
	ctx := context.Background()
	_, err := objects.Upload(ctx, key, payload, app.PutOptions{})
	require.NoError(t, err)
	rec, err := photos.Insert(ctx, &app.PhotoRecord{UserID: userID, StoragePath: key})
	require.NoError(t, err)
	return rec
}

func pngPayload(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestGalleryListPhotos(t *testing.T) {
	ctx := context.Background()
	objects := app.NewMemoryObjectStore("user-uploads")
	photos := db.NewMemoryDB()

	t.Run("EmptyIsNotAnError", func(t *testing.T) {
		gallery := app.NewGallery(photos, objects, nil, time.Hour, false, quietLog())
		items, err := gallery.ListPhotos(ctx, &app.User{ID: "fresh"})
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("RequiresUser", func(t *testing.T) {
		gallery := app.NewGallery(photos, objects, nil, time.Hour, false, quietLog())
		_, err := gallery.ListPhotos(ctx, nil)
		assert.ErrorIs(t, err, app.ErrNotAuthenticated)
	})

	older := seed(t, objects, photos, "U", "U/1.jpg", []byte("a"))
	time.Sleep(2 * time.Millisecond)
	newer := seed(t, objects, photos, "U", "U/2.jpg", []byte("b"))
	seed(t, objects, photos, "V", "V/1.jpg", []byte("c"))

	t.Run("NewestFirstSigned", func(t *testing.T) {
		gallery := app.NewGallery(photos, objects, nil, time.Hour, false, quietLog())
		items, err := gallery.ListPhotos(ctx, &app.User{ID: "U"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, newer.ID, items[0].ID)
		assert.Equal(t, older.ID, items[1].ID)

		u, err := url.Parse(items[0].URL)
		require.NoError(t, err)
		assert.Equal(t, "/user-uploads/U/2.jpg", u.Path)
		assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	})

	t.Run("Public", func(t *testing.T) {
		gallery := app.NewGallery(photos, objects, nil, time.Hour, true, quietLog())
		items, err := gallery.ListPhotos(ctx, &app.User{ID: "U"})
		require.NoError(t, err)
		assert.Equal(t, "http://objects.local/user-uploads/U/2.jpg", items[0].URL)
	})

	t.Run("MissingObjectKeepsTheRest", func(t *testing.T) {
		require.NoError(t, objects.Delete(ctx, "U/1.jpg"))
		gallery := app.NewGallery(photos, objects, nil, time.Hour, false, quietLog())
		items, err := gallery.ListPhotos(ctx, &app.User{ID: "U"})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.NotEmpty(t, items[0].URL)
		assert.Empty(t, items[1].URL)
	})
}

func TestGalleryThumbnail(t *testing.T) {
	ctx := context.Background()
	objects := app.NewMemoryObjectStore("b")
	photos := db.NewMemoryDB()
	thumbs := app.NewThumbnailCache(300, 8, time.Minute)
	gallery := app.NewGallery(photos, objects, thumbs, time.Hour, false, quietLog())

	rec := seed(t, objects, photos, "U", "U/1.png", pngPayload(t, 1200, 600))

	thumb, err := gallery.Thumbnail(ctx, rec.ID, &app.User{ID: "U"})
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())

	// served from the cache once the object is gone
	require.NoError(t, objects.Delete(ctx, "U/1.png"))
	cached, err := gallery.Thumbnail(ctx, rec.ID, &app.User{ID: "U"})
	require.NoError(t, err)
	assert.Equal(t, thumb, cached)

	_, err = gallery.Thumbnail(ctx, rec.ID, &app.User{ID: "V"})
	assert.ErrorIs(t, err, app.ErrNotFound)

	broken := seed(t, objects, photos, "U", "U/2.jpg", []byte("not an image"))
	_, err = gallery.Thumbnail(ctx, broken.ID, &app.User{ID: "U"})
	assert.ErrorIs(t, err, app.ErrReadFailure)
}

func TestDetails(t *testing.T) {
	ctx := context.Background()
	objects := app.NewMemoryObjectStore("user-uploads")
	photos := db.NewMemoryDB()
	invoker := &stubInvoker{}
	animator := app.NewAnimator(invoker, photos, nil, "animate-photo", time.Second, quietLog())
	details := app.NewDetails(photos, objects, animator, nil, time.Hour, quietLog())

	rec := seed(t, objects, photos, "owner", "owner/1.jpg", []byte("a"))

	t.Run("Owned", func(t *testing.T) {
		detail, err := details.GetPhotoDetail(ctx, rec.ID, &app.User{ID: "owner"})
		require.NoError(t, err)
		assert.Equal(t, rec.ID, detail.Photo.ID)
		assert.True(t, strings.Contains(detail.URL, "/user-uploads/owner/1.jpg"))
		assert.WithinDuration(t, time.Now().Add(time.Hour), detail.ExpiresAt, time.Minute)
	})

	t.Run("OtherUserGetsNotFound", func(t *testing.T) {
		detail, err := details.GetPhotoDetail(ctx, rec.ID, &app.User{ID: "intruder"})
		assert.ErrorIs(t, err, app.ErrNotFound)
		assert.Nil(t, detail)
	})

	t.Run("UnknownID", func(t *testing.T) {
		_, err := details.GetPhotoDetail(ctx, "does-not-exist", &app.User{ID: "owner"})
		assert.ErrorIs(t, err, app.ErrNotFound)
		assert.Equal(t, "Photo not found", app.Message(err))
	})

	t.Run("Animate", func(t *testing.T) {
		env, err := details.Animate(ctx, rec.ID, &app.User{ID: "owner"}, "tok")
		require.NoError(t, err)
		assert.True(t, env.Success)

		_, err = details.Animate(ctx, rec.ID, &app.User{ID: "intruder"}, "tok")
		assert.ErrorIs(t, err, app.ErrNotFound)
		assert.Len(t, invoker.calls, 1)
	})

	t.Run("DeleteOtherUserKeepsPhoto", func(t *testing.T) {
		err := details.DeletePhoto(ctx, rec.ID, &app.User{ID: "intruder"})
		assert.ErrorIs(t, err, app.ErrNotFound)
		assert.True(t, objects.Has("owner/1.jpg"))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, details.DeletePhoto(ctx, rec.ID, &app.User{ID: "owner"}))
		assert.False(t, objects.Has("owner/1.jpg"))
		_, err := details.GetPhotoDetail(ctx, rec.ID, &app.User{ID: "owner"})
		assert.ErrorIs(t, err, app.ErrNotFound)
	})
}

func TestReconcilerSweep(t *testing.T) {
	ctx := context.Background()
	objects := app.NewMemoryObjectStore("b")
	photos := db.NewMemoryDB()
	old := time.Now().Add(-time.Hour)

	seed(t, objects, photos, "U", "U/kept.jpg", []byte("a"))
	objects.Touch("U/kept.jpg", old)
	_, err := objects.Upload(ctx, "U/orphan.jpg", []byte("b"), app.PutOptions{})
	require.NoError(t, err)
	objects.Touch("U/orphan.jpg", old)
	_, err = objects.Upload(ctx, "U/in-flight.jpg", []byte("c"), app.PutOptions{})
	require.NoError(t, err)

	removed, err := app.NewReconciler(objects, photos, 10*time.Minute, quietLog()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.True(t, objects.Has("U/kept.jpg"))
	assert.False(t, objects.Has("U/orphan.jpg"))
	assert.True(t, objects.Has("U/in-flight.jpg"))
}
