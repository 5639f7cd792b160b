package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// UploadOptions are the per-call knobs of Uploader.Upload.
type UploadOptions struct {
	// Animate asks for remote post-processing once the record exists.
	Animate bool
	// AccessToken is forwarded as the bearer token of the remote function.
	AccessToken string
	Progress    ProgressFunc
}

type UploadResult struct {
	PhotoID     string `json:"id"`
	StoragePath string `json:"file_path"`
}

// Uploader turns one picked image into an object plus a photo record.
type Uploader struct {
	objects      ObjectStore
	photos       PhotoStore
	animator     *Animator
	maxBytes     int64
	cacheControl string
	timeout      time.Duration
	log          *logrus.Entry

	now      func() time.Time
	dispatch func(func())
}

type UploaderOption func(*Uploader)

// WithAnimator enables the optional post-processing step.
func WithAnimator(a *Animator) UploaderOption {
	return func(u *Uploader) { u.animator = a }
}

// WithClock replaces time.Now for key derivation.
func WithClock(now func() time.Time) UploaderOption {
	return func(u *Uploader) { u.now = now }
}

// WithDispatcher replaces the goroutine used for post-processing.
func WithDispatcher(dispatch func(func())) UploaderOption {
	return func(u *Uploader) { u.dispatch = dispatch }
}

// WithUploadTimeout detaches uploads from the caller's cancellation: once
// started, the transfer and the record insert run until they finish or d elapses.
func WithUploadTimeout(d time.Duration) UploaderOption {
	return func(u *Uploader) { u.timeout = d }
}

func NewUploader(objects ObjectStore, photos PhotoStore, maxBytes int64, cacheControl string, log *logrus.Entry, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		objects:      objects,
		photos:       photos,
		maxBytes:     maxBytes,
		cacheControl: cacheControl,
		log:          log,
		now:          time.Now,
		dispatch:     func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload runs the whole sequence once. Any failure is terminal for the
// attempt; nothing is retried.
func (u *Uploader) Upload(ctx context.Context, asset *Asset, user *User, opts UploadOptions) (*UploadResult, error) {
	progress := monotonic(opts.Progress)
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), u.timeout)
		defer cancel()
	}

	if asset == nil {
		uploadsTotal.WithLabelValues("validation").Inc()
		return nil, NewFailure(ErrValidation, "Please select an image first", nil)
	}
	progress(ProgressStarted)

	if user == nil || user.ID == "" {
		uploadsTotal.WithLabelValues("not_authenticated").Inc()
		return nil, NewFailure(ErrNotAuthenticated, "Not authenticated", nil)
	}
	progress(ProgressAuthenticated)

	ext := Extension(asset.URI)
	key := StorageKey(user.ID, u.now(), ext)
	contentType := ContentType(asset.MimeType, ext)
	log := u.log.WithFields(logrus.Fields{"user_id": user.ID, "key": key})
	progress(ProgressKeyDerived)

	payload, err := asset.materialize(u.maxBytes)
	if err != nil {
		uploadsTotal.WithLabelValues("read_failure").Inc()
		log.WithError(err).Debug("materialize failed")
		return nil, err
	}
	progress(ProgressRead)

	storagePath, err := u.objects.Upload(ctx, key, payload, PutOptions{ContentType: contentType, CacheControl: u.cacheControl})
	if err != nil {
		uploadsTotal.WithLabelValues("upload_failure").Inc()
		log.WithError(err).Warn("object upload failed")
		msg := "Could not upload the image"
		if errors.Is(err, ErrObjectExists) {
			msg = "An image with the same name is already being uploaded, please try again"
		}
		return nil, NewFailure(ErrUploadFailure, msg, err)
	}
	progress(ProgressUploaded)

	rec, err := u.photos.Insert(ctx, &PhotoRecord{
		UserID:      user.ID,
		StoragePath: storagePath,
		Status:      stringPtr(StatusUploaded),
	})
	if err != nil {
		uploadsTotal.WithLabelValues("insert_failure").Inc()
		log.WithError(err).Warn("record insert failed, removing object")
		u.compensate(ctx, key, log)
		return nil, NewFailure(ErrInsertFailure, "Could not save the photo", err)
	}
	progress(ProgressRecorded)
	uploadsTotal.WithLabelValues("success").Inc()

	if opts.Animate && u.animator != nil {
		detached := context.WithoutCancel(ctx)
		token := opts.AccessToken
		u.dispatch(func() {
			// the record is already committed; the error is logged by the animator
			_, _ = u.animator.Animate(detached, rec, token)
		})
	}
	return &UploadResult{PhotoID: rec.ID, StoragePath: rec.StoragePath}, nil
}

// compensate deletes the object of a failed insert. Best effort: a failure
// here leaves an orphan for the reconciliation sweep.
func (u *Uploader) compensate(ctx context.Context, key string, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	compensationsTotal.Inc()
	if err := u.objects.Delete(ctx, key); err != nil {
		log.WithError(err).Error("compensating delete failed")
	}
}
