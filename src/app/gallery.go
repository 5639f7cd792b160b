package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

type GalleryItem struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status,omitempty"`
}

// Gallery lists a user's photos with displayable URLs.
type Gallery struct {
	photos    PhotoStore
	objects   ObjectStore
	thumbs    *ThumbnailCache
	signedTTL time.Duration
	public    bool
	log       *logrus.Entry
}

// NewGallery resolves URLs as signed links valid for signedTTL, or as
// permanent public links when public is set.
func NewGallery(photos PhotoStore, objects ObjectStore, thumbs *ThumbnailCache, signedTTL time.Duration, public bool, log *logrus.Entry) *Gallery {
	return &Gallery{
		photos:    photos,
		objects:   objects,
		thumbs:    thumbs,
		signedTTL: signedTTL,
		public:    public,
		log:       log,
	}
}

// ListPhotos returns the user's photos, newest first. No photos is an empty
// list, not an error.
func (g *Gallery) ListPhotos(ctx context.Context, user *User) ([]GalleryItem, error) {
	if user == nil || user.ID == "" {
		return nil, NewFailure(ErrNotAuthenticated, "Not authenticated", nil)
	}
	records, err := g.photos.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	items := make([]GalleryItem, 0, len(records))
	for _, rec := range records {
		item := GalleryItem{ID: rec.ID, CreatedAt: rec.CreatedAt, Status: rec.StatusOrEmpty()}
		url, err := g.resolve(ctx, rec.StoragePath)
		if err != nil {
			// one unresolvable object must not hide the rest of the grid
			g.log.WithError(err).WithField("photo_id", rec.ID).Warn("can not resolve photo url")
		}
		item.URL = url
		items = append(items, item)
	}
	return items, nil
}

func (g *Gallery) resolve(ctx context.Context, key string) (string, error) {
	if g.public {
		return g.objects.PublicURL(key), nil
	}
	return g.objects.SignedURL(ctx, key, g.signedTTL)
}

// Thumbnail renders a small JPEG of an owned photo.
func (g *Gallery) Thumbnail(ctx context.Context, id string, user *User) ([]byte, error) {
	if user == nil || user.ID == "" {
		return nil, NewFailure(ErrNotAuthenticated, "Not authenticated", nil)
	}
	rec, err := g.photos.GetOwned(ctx, id, user.ID)
	if err != nil {
		return nil, notFound(err)
	}
	thumb, err := g.thumbs.Render(rec.StoragePath, func() ([]byte, error) {
		return g.objects.Get(ctx, rec.StoragePath)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewFailure(ErrNotFound, "Photo not found", err)
		}
		return nil, NewFailure(ErrReadFailure, "Could not render the thumbnail", err)
	}
	return thumb, nil
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return NewFailure(ErrNotFound, "Photo not found", err)
	}
	return err
}
