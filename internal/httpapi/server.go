// Package httpapi exposes the merge service over HTTP: merge preview,
// validation, execution, identifier search, merge history, and document
// transfer, plus prometheus metrics and a health probe.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"patientcore/internal/core"
)

// AuthFunc decides whether a request may proceed and returns the acting
// principal. An empty principal with ok=true is allowed for anonymous
// deployments.
type AuthFunc func(r *http.Request) (principal string, ok bool)

// AllowAll admits every request under the given principal name.
func AllowAll(principal string) AuthFunc {
	return func(*http.Request) (string, bool) { return principal, true }
}

// Server wires the merge service into a chi router.
type Server struct {
	svc      *core.Service
	logger   core.Logger
	auth     AuthFunc
	validate *validator.Validate
	router   chi.Router
}

// ServerOption adjusts optional server collaborators.
type ServerOption func(*Server)

// WithServerLogger replaces the no-op request logger.
func WithServerLogger(l core.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuth installs the request gate applied to every API route.
func WithAuth(auth AuthFunc) ServerOption {
	return func(s *Server) {
		if auth != nil {
			s.auth = auth
		}
	}
}

// NewServer builds the router around the supplied service.
func NewServer(svc *core.Service, opts ...ServerOption) *Server {
	s := &Server{
		svc:      svc,
		logger:   core.NopLogger(),
		auth:     AllowAll("anonymous"),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Route("/patient", func(r chi.Router) {
			r.Get("/search", s.handleSearch)
			r.Route("/merge", func(r chi.Router) {
				r.Get("/details/{patientID}", s.handleMergeDetails)
				r.Get("/history/{patientID}", s.handleMergeHistory)
				r.Post("/validate", s.handleValidate)
				r.Post("/execute", s.handleExecute)
			})
			r.Post("/{patientID}/documents", s.handleAttachDocument)
		})
		r.Get("/documents/{documentID}", s.handleOpenDocument)
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Infof("http request method=%s path=%s status=%d duration_ms=%d",
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Milliseconds())
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.auth(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
