package handler

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	metrics "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
	"github.com/zhouzirui/ai-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/ai-chat/backend/internal/handler/health"
	"github.com/zhouzirui/ai-chat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/ai-chat/backend/internal/middleware"
	chatService "github.com/zhouzirui/ai-chat/backend/internal/service/chat"
)

var (
	metricsOnce       sync.Once
	metricsMiddleware httpmetrics.Middleware
)

// httpMetrics registers the HTTP recorder with the default registry exactly once.
func httpMetrics() httpmetrics.Middleware {
	metricsOnce.Do(func() {
		metricsMiddleware = httpmetrics.New(httpmetrics.Config{
			Recorder: metrics.NewRecorder(metrics.Config{}),
		})
	})
	return metricsMiddleware
}

// NewRouter wires HTTP routes to the chat service.
func NewRouter(cfg config.ServerConfig, chatSvc *chatService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.StandardLogger(), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.AllowedOrigins))

	measured := func(handlerID string) chi.Router {
		return r.With(std.HandlerProvider(handlerID, httpMetrics()))
	}

	chat.New(chatSvc).RegisterRoutes(measured("chat"))
	health.New(chatSvc).RegisterRoutes(measured("health"))
	// /ws is registered without the metrics wrapper so the upgrade can hijack the connection.
	ws.New(chatSvc).RegisterRoutes(r)

	r.Handle("/metrics", promhttp.Handler())

	if cfg.StaticDir != "" {
		log.WithField("dir", cfg.StaticDir).Info("serving static UI")
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
