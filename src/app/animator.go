package app

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"
)

// Animator runs the remote "animate" post-processing for one photo and
// records the outcome in the photo's status tag.
type Animator struct {
	functions Invoker
	photos    PhotoStore
	notifier  Notifier
	name      string
	timeout   time.Duration
	log       *logrus.Entry

	// set when the function wants the image itself instead of its key
	objects ObjectStore
}

type AnimatorOption func(*Animator)

// WithFileUpload sends the stored image as a multipart "image" part,
// read from objects, next to the photo_id and file_path fields.
func WithFileUpload(objects ObjectStore) AnimatorOption {
	return func(a *Animator) { a.objects = objects }
}

func NewAnimator(functions Invoker, photos PhotoStore, notifier Notifier, name string, timeout time.Duration, log *logrus.Entry, opts ...AnimatorOption) *Animator {
	a := &Animator{
		functions: functions,
		photos:    photos,
		notifier:  notifier,
		name:      name,
		timeout:   timeout,
		log:       log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type animateRequest struct {
	PhotoID  string `json:"photo_id"`
	FilePath string `json:"file_path"`
}

// Animate invokes the function. The photo record is valid either way; a
// failure only changes its status to animation_failed.
func (a *Animator) Animate(ctx context.Context, rec *PhotoRecord, bearerToken string) (*Envelope, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	log := a.log.WithFields(logrus.Fields{"photo_id": rec.ID, "function": a.name})

	env, err := a.invoke(ctx, rec, bearerToken)
	status := StatusAnimated
	if err != nil {
		status = StatusAnimationFailed
		remoteCallsTotal.WithLabelValues("failure").Inc()
		log.WithError(err).Warn("remote function failed")
	} else {
		remoteCallsTotal.WithLabelValues("success").Inc()
	}

	if serr := a.photos.SetStatus(context.WithoutCancel(ctx), rec.ID, status); serr != nil {
		log.WithError(serr).Warn("can not record animation status")
	}
	if a.notifier != nil {
		payload := map[string]any{"photo_id": rec.ID, "status": status}
		if env != nil && len(env.Payload) > 0 {
			payload["result"] = env.Payload
		}
		a.notifier.Notify(rec.UserID, Event{Type: EventPhotoAnimated, Payload: payload, At: time.Now()})
	}
	if err != nil {
		if Kind(err) == nil {
			err = NewFailure(ErrRemoteFunction, "Animation failed", err)
		}
		return env, err
	}
	return env, nil
}

func (a *Animator) invoke(ctx context.Context, rec *PhotoRecord, bearerToken string) (*Envelope, error) {
	if a.objects == nil {
		return a.functions.Invoke(ctx, a.name, bearerToken, animateRequest{PhotoID: rec.ID, FilePath: rec.StoragePath})
	}
	content, err := a.objects.Get(ctx, rec.StoragePath)
	if err != nil {
		// a missing object is the function's failure here, not a missing photo
		return nil, NewFailure(ErrRemoteFunction, "Animation failed", fmt.Errorf("read %s: %v", rec.StoragePath, err))
	}
	fields := map[string]string{"photo_id": rec.ID, "file_path": rec.StoragePath}
	file := FormFile{Field: "image", Filename: path.Base(rec.StoragePath), Content: content}
	return a.functions.InvokeMultipart(ctx, a.name, bearerToken, fields, file)
}
