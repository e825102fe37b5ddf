package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// Router builds the HTTP routes
type Router struct {
	handler     *Handler
	ws          http.HandlerFunc
	static      http.Handler
	corsOrigins []string
	logger      *logger.Logger
}

// NewRouter creates a new router. ws upgrades subscriber connections; static
// may be nil when no front-end is served.
func NewRouter(handler *Handler, ws http.HandlerFunc, static http.Handler, corsOrigins []string, log *logger.Logger) *Router {
	return &Router{
		handler:     handler,
		ws:          ws,
		static:      static,
		corsOrigins: corsOrigins,
		logger:      log.Named("router"),
	}
}

// Routes returns the root handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)
	r.Use(rt.cors)

	r.Get("/health", rt.handler.Health)
	if rt.ws != nil {
		r.Get("/ws", rt.ws)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/aircraft", rt.handler.GetAllAircraft)
		r.Get("/aircraft/{id}", rt.handler.GetAircraft)
		r.Get("/aircraft/{id}/track", rt.handler.GetAircraftTrack)

		r.Get("/events", rt.handler.GetEvents)

		r.Route("/club", func(r chi.Router) {
			r.Get("/planes", rt.handler.GetClubPlanes)
			r.Put("/planes", rt.handler.PutClubPlanes)
			r.Get("/airfields", rt.handler.GetClubAirfields)
			r.Put("/airfields", rt.handler.PutClubAirfields)
		})

		r.Post("/reference/refresh", rt.handler.RefreshReference)
	})

	if rt.static != nil {
		r.Handle("/*", rt.static)
	}

	return r
}

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

// cors answers preflight requests and sets the allow-origin header for the
// configured origins. "*" allows every origin.
func (rt *Router) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && rt.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *Router) originAllowed(origin string) bool {
	for _, allowed := range rt.corsOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
