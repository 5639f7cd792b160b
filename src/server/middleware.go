package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	app "memcap/src/app"
	auth "memcap/src/auth"
)

const (
	sessionKey   = "session"
	requestIDKey = "request_id"
	loginPath    = "/login"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memcap_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memcap_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RequestLogger tags every request with a ULID and logs its outcome.
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)

		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		if s, ok := c.Get(sessionKey); ok {
			entry = entry.WithField("user_id", s.(*app.Session).User.ID)
		}
		if len(c.Errors) > 0 {
			entry.WithError(c.Errors.Last()).Info("request failed")
			return
		}
		entry.Debug("request served")
	}
}

// Metrics records request counts and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RequireSession guards a route group. It runs once per request and leaves
// the resolved session in the gin context.
func RequireSession(sessions *auth.Manager, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessions.Resolve(c.Request.Context(), accessToken(c, cookieName))
		if err != nil && app.Kind(err) != app.ErrNotAuthenticated {
			respondError(c, err)
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(statusFor(err), gin.H{
				"status":   "error",
				"kind":     "not_authenticated",
				"message":  app.Message(err),
				"redirect": loginPath,
			})
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// accessToken reads the bearer header, then the cookie, then the
// access_token query parameter browsers use for websockets.
func accessToken(c *gin.Context, cookieName string) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("access_token")
}

func currentSession(c *gin.Context) *app.Session {
	return c.MustGet(sessionKey).(*app.Session)
}
