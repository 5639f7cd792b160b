package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	cfg "memcap/src/configuration"
)

func RunServer(config *cfg.Properties) {
	logger := config.NewLogger()
	log := logrus.NewEntry(logger)
	log.WithFields(config.Fields()).Info("starting memcap")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := NewServices(ctx, config, log)
	if err != nil {
		log.WithError(err).Fatal("can not start services")
	}
	defer svc.Close()
	svc.Start(ctx, config)

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(config, svc, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: config.Server.ReadTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	log.WithField("addr", srv.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(config *cfg.Properties, svc *Services, log *logrus.Entry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log), Metrics())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.MaxMultipartMemory = config.Server.MaxUploadBytes
	if config.Server.Pprof {
		pprof.Register(router)
	}

	authHandler := NewAuthHandler(config, svc.Sessions)
	photoHandler := NewS3Handler(svc.Uploader, svc.Gallery, svc.Details, svc.Sessions, config.Server.MaxUploadBytes)
	externalHandler := NewExternalHandler(svc.Details)
	eventsHandler := NewEventsHandler(svc.Sessions, log)

	router.GET("/health", authHandler.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/auth/signup", authHandler.SignUp)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/refresh", authHandler.Refresh)

	guarded := router.Group("/", RequireSession(svc.Sessions, config.Auth.AccessTokenCookieName))
	guarded.POST("/auth/logout", authHandler.Logout)
	guarded.GET("/account", authHandler.Account)
	guarded.GET("/events", eventsHandler.Events)
	guarded.GET("/photos", photoHandler.GetImageList)
	guarded.POST("/photos", photoHandler.PostImage)
	guarded.POST("/photos/base64", photoHandler.PostImageBase64)
	guarded.GET("/photos/:id", photoHandler.GetImage)
	guarded.GET("/photos/:id/thumbnail", photoHandler.GetThumbnail)
	guarded.POST("/photos/:id/animate", externalHandler.Animate)
	guarded.DELETE("/photos/:id", photoHandler.DeleteImage)

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"status": "error", "kind": "not_found", "message": "Not found"})
	})
	return router
}
