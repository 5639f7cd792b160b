package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type PhotoDetail struct {
	Photo     *PhotoRecord `json:"photo"`
	URL       string       `json:"url"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Details resolves single photos owned by the caller.
type Details struct {
	photos    PhotoStore
	objects   ObjectStore
	animator  *Animator
	thumbs    *ThumbnailCache
	signedTTL time.Duration
	log       *logrus.Entry
	now       func() time.Time
}

func NewDetails(photos PhotoStore, objects ObjectStore, animator *Animator, thumbs *ThumbnailCache, signedTTL time.Duration, log *logrus.Entry) *Details {
	return &Details{
		photos:    photos,
		objects:   objects,
		animator:  animator,
		thumbs:    thumbs,
		signedTTL: signedTTL,
		log:       log,
		now:       time.Now,
	}
}

// GetPhotoDetail returns the record and a signed URL. Records of other users
// are reported exactly like missing ones.
func (d *Details) GetPhotoDetail(ctx context.Context, id string, user *User) (*PhotoDetail, error) {
	if user == nil || user.ID == "" {
		return nil, NewFailure(ErrNotAuthenticated, "Not authenticated", nil)
	}
	rec, err := d.photos.GetOwned(ctx, id, user.ID)
	if err != nil {
		return nil, notFound(err)
	}
	issued := d.now()
	url, err := d.objects.SignedURL(ctx, rec.StoragePath, d.signedTTL)
	if err != nil {
		return nil, NewFailure(ErrNotFound, "Photo not found", err)
	}
	return &PhotoDetail{Photo: rec, URL: url, ExpiresAt: issued.Add(d.signedTTL)}, nil
}

// DeletePhoto removes the record first, then the object.
func (d *Details) DeletePhoto(ctx context.Context, id string, user *User) error {
	if user == nil || user.ID == "" {
		return NewFailure(ErrNotAuthenticated, "Not authenticated", nil)
	}
	rec, err := d.photos.GetOwned(ctx, id, user.ID)
	if err != nil {
		return notFound(err)
	}
	if err := d.photos.Delete(ctx, rec.ID, user.ID); err != nil {
		return notFound(err)
	}
	if d.thumbs != nil {
		d.thumbs.Forget(rec.StoragePath)
	}
	if err := d.objects.Delete(ctx, rec.StoragePath); err != nil {
		d.log.WithError(err).WithField("key", rec.StoragePath).Warn("photo record deleted but object remains")
	}
	return nil
}

// Animate runs the remote post-processing for an owned photo and waits for it.
func (d *Details) Animate(ctx context.Context, id string, user *User, bearerToken string) (*Envelope, error) {
	if user == nil || user.ID == "" {
		return nil, NewFailure(ErrNotAuthenticated, "Not authenticated", nil)
	}
	if d.animator == nil {
		return nil, NewFailure(ErrRemoteFunction, "Animation is not configured", nil)
	}
	rec, err := d.photos.GetOwned(ctx, id, user.ID)
	if err != nil {
		return nil, notFound(err)
	}
	return d.animator.Animate(ctx, rec, bearerToken)
}
