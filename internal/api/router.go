package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yegors/skytrail/pkg/logger"
)

// RouterConfig holds what the router needs beyond the handlers
type RouterConfig struct {
	AllowedOrigins []string
	StaticDir      string // empty disables static file hosting
}

// Router wires the API handlers, websocket endpoint and static files
type Router struct {
	handler   *Handler
	wsHandler http.HandlerFunc
	cfg       RouterConfig
	logger    *logger.Logger
}

// NewRouter creates a new router. wsHandler may be nil.
func NewRouter(handler *Handler, wsHandler http.HandlerFunc, cfg RouterConfig, log *logger.Logger) *Router {
	return &Router{
		handler:   handler,
		wsHandler: wsHandler,
		cfg:       cfg,
		logger:    log.Named("router"),
	}
}

// Routes builds the HTTP handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", rt.handler.GetHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/flights", rt.handler.GetFlights)
		r.Get("/flights/{icao24}", rt.handler.GetFlightDetails)
		r.Get("/status", rt.handler.GetStatus)
	})

	if rt.wsHandler != nil {
		r.Get("/ws", rt.wsHandler)
	}

	if rt.cfg.StaticDir != "" {
		r.Handle("/*", NewStaticFileHandler(rt.cfg.StaticDir, rt.logger))
	}

	return r
}

// requestLogger logs each request through the zap logger
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}
