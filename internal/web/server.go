// Package web exposes the import pipeline over HTTP and a websocket
// event channel.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/auth"
	"github.com/rpattn/importflow/internal/hub"
	"github.com/rpattn/importflow/internal/recovery"
	"github.com/rpattn/importflow/internal/session"
	"github.com/rpattn/importflow/internal/workflow"
)

// Server wires the HTTP surface to the core components.
type Server struct {
	orchestrator *workflow.Orchestrator
	recovery     *recovery.Service
	store        session.Store
	hub          *hub.Hub
	log          *logrus.Logger
	router       chi.Router
}

// NewServer creates the HTTP server.
func NewServer(
	orchestrator *workflow.Orchestrator,
	recoverySvc *recovery.Service,
	store session.Store,
	eventHub *hub.Hub,
	allowedOrigins []string,
	log *logrus.Logger,
) *Server {
	s := &Server{
		orchestrator: orchestrator,
		recovery:     recoverySvc,
		store:        store,
		hub:          eventHub,
		log:          log,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(ownerScope)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	r.Use(corsHandler.Handler)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/analyze", s.handleAnalyze)
			r.Get("/status", s.handleStatus)
			r.Get("/suggestions", s.handleSuggestions)
			r.Post("/fix-single", s.handleFixSingle)
			r.Post("/fix-bulk", s.handleFixBulk)
			r.Post("/apply-auto-fixes", s.handleApplyAutoFixes)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/execute", s.handleExecute)
			r.Delete("/", s.handleDelete)
			r.Get("/report", s.handleReport)
			r.Get("/events", s.handleEvents)
		})
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ownerScope resolves the caller identity injected by the surrounding
// system and stores it on the request context.
func ownerScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get("X-Owner-ID"))
		if owner == "" {
			owner = auth.AnonymousOwner
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithOwnerID(r.Context(), owner)))
	})
}

// requestLogger logs method, path, status and duration for every request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
			"remote":   r.RemoteAddr,
		}).Info("request")
	})
}
