package app

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nfnt/resize"
)

// ThumbnailCache keeps rendered thumbnails keyed by storage path.
type ThumbnailCache struct {
	cache *expirable.LRU[string, []byte]
	size  uint
}

func NewThumbnailCache(size uint, maxEntries int, ttl time.Duration) *ThumbnailCache {
	return &ThumbnailCache{
		cache: expirable.NewLRU[string, []byte](maxEntries, nil, ttl),
		size:  size,
	}
}

// Render returns the cached thumbnail of key or builds it from load.
func (t *ThumbnailCache) Render(key string, load func() ([]byte, error)) ([]byte, error) {
	if thumb, ok := t.cache.Get(key); ok {
		thumbnailHitsTotal.Inc()
		return thumb, nil
	}
	thumbnailMissesTotal.Inc()

	payload, err := load()
	if err != nil {
		return nil, err
	}
	thumb, err := makeThumbnail(payload, t.size)
	if err != nil {
		return nil, err
	}
	t.cache.Add(key, thumb)
	return thumb, nil
}

func (t *ThumbnailCache) Forget(key string) {
	t.cache.Remove(key)
}

func makeThumbnail(payload []byte, size uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	thumbnail := resize.Thumbnail(size, size, img, resize.Lanczos3)

	writer := &bytes.Buffer{}
	if err := jpeg.Encode(writer, thumbnail, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return writer.Bytes(), nil
}
