package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yegors/planetracker/pkg/logger"
)

// RouterOptions configure the HTTP router
type RouterOptions struct {
	CORSAllowedOrigins []string
	StaticFilesDir     string
	RequestTimeout     time.Duration
}

// Router wires the API handlers, the websocket endpoint and optional static files
type Router struct {
	handler   *Handler
	websocket http.HandlerFunc
	opts      RouterOptions
	logger    *logger.Logger
}

// NewRouter creates a new router. websocket may be nil to disable /ws.
func NewRouter(handler *Handler, websocket http.HandlerFunc, opts RouterOptions, log *logger.Logger) *Router {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Router{
		handler:   handler,
		websocket: websocket,
		opts:      opts,
		logger:    log.Named("router"),
	}
}

// Routes builds the handler tree
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.logger))
	r.Use(middleware.Recoverer)

	origins := rt.opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if rt.websocket != nil {
		// No timeout middleware on the upgrade.
		r.Get("/ws", rt.websocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(rt.opts.RequestTimeout))

		h := rt.handler
		r.Get("/health", h.GetHealth)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/latest", h.GetLatestAlert)
			r.Post("/run", h.RunAlertCycle)
		})

		r.Get("/stats", h.GetStats)

		r.Get("/flag", h.GetFlag)
		r.Put("/flag", h.SetFlag)

		r.Get("/location", h.GetLocation)
		r.Post("/location", h.SetLocation)

		r.Get("/observations", h.ListObservations)
		r.Post("/observations", h.PostObservation)
	})

	if rt.opts.StaticFilesDir != "" {
		r.Handle("/*", NewStaticFileHandler(rt.opts.StaticFilesDir, rt.logger))
	}

	return r
}

// requestLogger logs each request through the application logger
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Debug("HTTP request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.Status()),
				logger.Duration("duration", time.Since(start)),
				logger.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
