package server

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	app "memcap/src/app"
	auth "memcap/src/auth"
	cfg "memcap/src/configuration"
	db "memcap/src/repository"
)

type (
	// dataStore is what every DB_DRIVER provides.
	dataStore interface {
		app.PhotoStore
		auth.AccountStore
		Close() error
	}

	// Services are the long-lived components behind the handlers.
	Services struct {
		Sessions   *auth.Manager
		Uploader   *app.Uploader
		Gallery    *app.Gallery
		Details    *app.Details
		Reconciler *app.Reconciler

		sessionStore auth.SessionStore
		closers      []func() error
		log          *logrus.Entry
	}
)

// NewServices connects every backend selected by config.
func NewServices(ctx context.Context, config *cfg.Properties, log *logrus.Entry) (*Services, error) {
	svc := &Services{log: log}

	objects, err := newObjectStore(ctx, config, log.WithField("component", "s3"))
	if err != nil {
		return nil, err
	}
	data, err := newDataStore(ctx, config, log.WithField("component", "db"))
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, data.Close)

	sessions, err := svc.newSessionStore(config)
	if err != nil {
		svc.Close()
		return nil, err
	}
	provider, err := newIdentityProvider(ctx, config, data)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.sessionStore = sessions
	svc.Sessions = auth.NewManager(provider, sessions, config.Session.RefreshWindow, log.WithField("component", "auth"))

	var animator *app.Animator
	if config.Functions.URL != "" {
		functions := app.NewFunctionClient(config.Functions.URL, config.Functions.Timeout)
		var opts []app.AnimatorOption
		if config.Functions.Multipart {
			opts = append(opts, app.WithFileUpload(objects))
		}
		animator = app.NewAnimator(functions, data, svc.Sessions, config.Functions.AnimateName,
			config.Functions.Timeout, log.WithField("component", "functions"), opts...)
	}
	thumbs := app.NewThumbnailCache(config.Thumbnail.Size, config.Thumbnail.CacheSize, config.Thumbnail.CacheTTL)
	photoLog := log.WithField("component", "photos")

	svc.Uploader = app.NewUploader(objects, data, config.Server.MaxUploadBytes, config.S3.CacheControl, photoLog,
		app.WithAnimator(animator), app.WithUploadTimeout(config.Server.UploadTimeout))
	svc.Gallery = app.NewGallery(data, objects, thumbs, config.S3.SignedURLTTL, config.S3.PublicURLs, photoLog)
	svc.Details = app.NewDetails(data, objects, animator, thumbs, config.S3.SignedURLTTL, photoLog)
	svc.Reconciler = app.NewReconciler(objects, data, config.Reconcile.Grace, log.WithField("component", "reconcile"))
	return svc, nil
}

// Start launches the background loops; they stop with ctx.
func (s *Services) Start(ctx context.Context, config *cfg.Properties) {
	if config.Reconcile.Interval > 0 {
		go s.Reconciler.Run(ctx, config.Reconcile.Interval)
	}
	if mem, ok := s.sessionStore.(*db.InMemoryDB); ok {
		go purgeSessions(ctx, mem, s.log)
	}
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.WithError(err).Warn("close failed")
		}
	}
	s.closers = nil
}

func newObjectStore(ctx context.Context, config *cfg.Properties, log *logrus.Entry) (app.ObjectStore, error) {
	if config.S3.Driver == "memory" {
		return app.NewMemoryObjectStore(config.S3.Bucket), nil
	}
	clientS3, err := app.NewMinioS3Client(
		config.S3.Host,
		config.S3.AccessKey,
		config.S3.SecretKey,
		config.S3.Bucket,
		config.S3.UseSSL,
		log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, config.S3.ReadTimeout)
	defer cancel()
	if err := clientS3.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("could not connect to minio: %w", err)
	}
	return clientS3, nil
}

func newDataStore(ctx context.Context, config *cfg.Properties, log *logrus.Entry) (dataStore, error) {
	switch config.DB.Driver {
	case "postgres":
		return db.OpenPostgres(ctx, config.DB.DSN, log)
	case "sqlite":
		return db.OpenSQLite(config.DB.SQLitePath)
	}
	return db.NewMemoryDB(), nil
}

func (s *Services) newSessionStore(config *cfg.Properties) (auth.SessionStore, error) {
	if config.Session.Store == "redis" {
		redis, err := db.NewRedis(config.Redis)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, redis.Close)
		return redis, nil
	}
	return db.NewInMemoryDB(), nil
}

func newIdentityProvider(ctx context.Context, config *cfg.Properties, accounts auth.AccountStore) (auth.IdentityProvider, error) {
	if config.Auth.Provider == "oidc" {
		ctx, cancel := context.WithTimeout(ctx, config.Auth.ReadTimeout)
		defer cancel()
		return auth.NewOIDCProvider(ctx, config.Auth.Host, config.Auth.ID, config.Auth.Secret, config.Auth.Redirect)
	}
	return auth.NewLocalProvider(accounts, config.Auth.JWTSecret, config.Auth.TokenTTL), nil
}

func purgeSessions(ctx context.Context, store *db.InMemoryDB, log *logrus.Entry) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Purge(); n > 0 {
				log.WithField("sessions", n).Debug("expired sessions purged")
			}
		}
	}
}
