package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/auth"
	"github.com/ebogdum/flystream/config"
	"github.com/ebogdum/flystream/core/log"
	"github.com/ebogdum/flystream/metrics"
	"github.com/ebogdum/flystream/server/handlers"
	authMiddleware "github.com/ebogdum/flystream/server/middleware"
)

// NewRouter creates and configures the HTTP router. /metrics is mounted on the router
// only when serveMetrics is set; otherwise it lives on a separate listener.
func NewRouter(
	bridge handlers.Bridge,
	authenticator auth.Authenticator,
	authorizer auth.Authorizer,
	serverConfig *config.ServerConfig,
	serveMetrics bool,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(authMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware.V1SecurityHeaders())
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if serveMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.V1AuthMiddleware(authenticator, logger))
		if serverConfig.RateLimit > 0 {
			limiter := authMiddleware.NewClientLimiter(serverConfig.RateLimit, serverConfig.RateBurst)
			r.Use(authMiddleware.V1RateLimitMiddleware(limiter, logger))
		}

		r.Route("/files/{scheme}", func(r chi.Router) {
			r.Get("/*", handlers.V1GetFile(bridge, authorizer, serverConfig, logger))
			r.Head("/*", handlers.V1GetFile(bridge, authorizer, serverConfig, logger))
			r.Put("/*", handlers.V1PutFile(bridge, authorizer, serverConfig, logger))
			r.Patch("/*", handlers.V1PatchFile(bridge, authorizer, serverConfig, logger))
			r.Delete("/*", handlers.V1DeleteFile(bridge, authorizer, serverConfig, logger))
		})

		r.Route("/dirs/{scheme}", func(r chi.Router) {
			r.Get("/*", handlers.V1ListDirectory(bridge, authorizer, serverConfig, logger))
			r.Post("/*", handlers.V1CreateDirectory(bridge, authorizer, serverConfig, logger))
			r.Delete("/*", handlers.V1RemoveDirectory(bridge, authorizer, serverConfig, logger))
		})

		r.Get("/stat/{scheme}/*", handlers.V1Stat(bridge, authorizer, serverConfig, logger))
		r.Post("/rename", handlers.V1Rename(bridge, authorizer, serverConfig, logger))
	})

	logger.Info("HTTP router configured successfully")

	return r
}

// requestLogger records request metrics and logs every request. Metrics are labelled
// with the route pattern so paths do not explode label cardinality.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				log.Path("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("request_id", authMiddleware.GetRequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}
