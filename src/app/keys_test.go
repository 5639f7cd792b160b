package app

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"file:///data/user/0/cache/IMG_0001.PNG":  "png",
		"/tmp/photo.heic":                         "heic",
		"content://media/external/images/1234":    "jpg",
		"holiday":                                 "jpg",
		"archive.tar.gz":                          "gz",
		"C:\\Users\\me\\pic.Jpeg":                 "jpeg",
		"weird.j%20g":                             "jpg",
		"trailing.":                               "jpg",
		"photo#1.png":                             "png",
		"holiday #2.gif":                          "gif",
		"what?.webp":                              "webp",
		"https://cdn.example.com/a.PNG?w=300#top": "png",
	}
	for uri, want := range cases {
		assert.Equal(t, want, Extension(uri), uri)
	}
}

func TestStorageKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "user-1/1700000000123.png", StorageKey("user-1", at, "png"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/heic", ContentType("image/heic", "jpg"))
	assert.Equal(t, "image/jpeg", ContentType("", "jpg"))
	assert.Equal(t, "image/png", ContentType("", "png"))
}

func TestMonotonicProgress(t *testing.T) {
	var got []int
	progress := monotonic(func(p int) { got = append(got, p) })
	for _, p := range []int{10, 25, 25, 20, 40, 100, 80} {
		progress(p)
	}
	assert.Equal(t, []int{10, 25, 40, 100}, got)

	assert.NotPanics(t, func() { monotonic(nil)(10) })
}

func TestAssetMaterialize(t *testing.T) {
	t.Run("Base64DataURI", func(t *testing.T) {
		a := Base64Asset("pic.png", "", "data:image/png;base64,aGVs\nbG8=")
		assert.Equal(t, "image/png", a.MimeType)
		payload, err := a.materialize(0)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(payload))
	})

	t.Run("TooLarge", func(t *testing.T) {
		a := NewAsset("pic.jpg", "", 0, func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("0123456789")), nil
		})
		_, err := a.materialize(4)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Unreadable", func(t *testing.T) {
		a := NewAsset("pic.jpg", "", 0, func() (io.ReadCloser, error) {
			return nil, errors.New("permission denied")
		})
		_, err := a.materialize(0)
		assert.ErrorIs(t, err, ErrReadFailure)
		assert.Equal(t, "The selected image can not be read", Message(err))
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := FileAsset("/definitely/not/here.jpg", "").materialize(0)
		assert.ErrorIs(t, err, ErrReadFailure)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := Base64Asset("pic.jpg", "", "").materialize(0)
		assert.ErrorIs(t, err, ErrReadFailure)
	})
}

func TestFailureKind(t *testing.T) {
	cause := errors.New("boom")
	err := NewFailure(ErrInsertFailure, "Could not save the photo", cause)
	assert.ErrorIs(t, err, ErrInsertFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrInsertFailure, Kind(err))
	assert.Nil(t, Kind(cause))
	assert.Equal(t, "boom", Message(cause))
}
