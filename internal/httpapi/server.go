package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/nvidal/pairtask/internal/config"
	"github.com/nvidal/pairtask/internal/pushsubscription"
	"github.com/nvidal/pairtask/internal/session"
	"github.com/nvidal/pairtask/pkg/cerr"
	"github.com/nvidal/pairtask/pkg/clog"
)

// Server exposes the session and mutation API over JSON HTTP. Each login
// opens a live session (feeds plus reconciler) held server-side and addressed
// by a bearer token; logout tears it down.
type Server struct {
	server  *http.Server
	env     *config.Env
	manager *session.Manager
	subRepo pushsubscription.Repository

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewServer(env *config.Env, manager *session.Manager, subRepo pushsubscription.Repository) *Server {
	return &Server{
		env:      env,
		manager:  manager,
		subRepo:  subRepo,
		sessions: make(map[string]*session.Session),
	}
}

// Routes builds the full handler tree: the JSON API under /api plus the
// health endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewConvertErrorChiMiddleware(),
		)
		r.Post("/login", s.handleLogin)
		r.Get("/push/key", s.handlePushKey)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)
			r.Post("/logout", s.handleLogout)
			r.Get("/tasks", s.handleListTasks)
			r.Post("/tasks", s.handleAddTask)
			r.Patch("/tasks/{id}", s.handleUpdateTask)
			r.Post("/tasks/{id}/toggle", s.handleToggleTask)
			r.Delete("/tasks/{id}", s.handleDeleteTask)
			r.Get("/types", s.handleListTypes)
			r.Post("/types", s.handleCreateType)
			r.Delete("/types/{id}", s.handleDeleteType)
			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)
			r.Post("/push/subscriptions", s.handleRegisterPushSubscription)
			r.Delete("/push/subscriptions", s.handleUnregisterPushSubscription)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	return mux
}

// ListenAndServe starts the HTTP server. The provided context is used as the
// base context for all incoming requests via http.Server.BaseContext, so
// cancelling it on shutdown also cancels in-flight request contexts.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr: addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(s.Routes()),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

// Shutdown stops the listener and closes every open session so feeds do not
// keep watching after the process winds down.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Logout()
	}
	return err
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type sessionContextKey struct{}

func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			cerr.SetNewJSONError(r.Context(), cerr.Unauthenticated, "missing bearer token", nil)
			return
		}
		s.mu.RLock()
		sess, ok := s.sessions[token]
		s.mu.RUnlock()
		if !ok {
			cerr.SetNewJSONError(r.Context(), cerr.Unauthenticated, "invalid session token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		clog.AddAttribute(ctx, "participant", sess.Owner().ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
