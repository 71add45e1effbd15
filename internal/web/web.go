package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"rozklad/internal/config"
	appLog "rozklad/internal/log"
	"rozklad/internal/model"
	"rozklad/internal/store"
	"rozklad/internal/update"
)

// Store is the read side of the session store.
type Store interface {
	ListSessions(ctx context.Context, q store.Query) ([]model.Session, error)
	Groups(ctx context.Context) ([]int, error)
	LastUpdate(ctx context.Context) (store.UpdateInfo, error)
}

// Updater runs one update check.
type Updater interface {
	Check(ctx context.Context, force bool) (update.Outcome, error)
}

// Server serves the week page, the JSON API and the iCalendar feed.
type Server struct {
	cfg     *config.Config
	loc     *time.Location
	store   Store
	updater Updater
	tmpl    *template.Template
	router  chi.Router

	// now is replaced in tests.
	now func() time.Time
}

//go:embed templates static
var assets embed.FS

// NewServer constructs a new Server. updater may be nil, in which case
// /update answers 503.
func NewServer(cfg *config.Config, st Store, updater Updater) (*Server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		loc:     loc,
		store:   st,
		updater: updater,
		tmpl:    tmpl,
		now:     time.Now,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root http.Handler, wrapped in basic auth when enabled.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		h = s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)

	r.Get("/", s.handleWeek)
	r.Post("/", s.handleWeek)

	// Read-only feeds may be consumed from other origins.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization"},
			MaxAge:         300,
		}))
		r.Route("/api", func(r chi.Router) {
			r.Get("/sessions", s.handleSessions)
			r.Get("/groups", s.handleGroups)
			r.Get("/status", s.handleStatus)
		})
		r.Get("/calendar.ics", s.handleCalendar)
	})

	r.Group(func(r chi.Router) {
		if n := s.cfg.UpdateRateLimit; n > 0 {
			r.Use(httprate.LimitByIP(n, time.Minute))
		}
		r.Get("/update", s.handleUpdate)
		r.Post("/update", s.handleUpdate)
	})

	r.Get("/preview.png", s.handlePreview)
	r.Handle("/static/*", http.StripPrefix("/static/", staticFileServer()))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !passwordMatches(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Rozklad", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// passwordMatches checks a supplied password against the configured one,
// which may be a bcrypt hash.
func passwordMatches(supplied, configured string) bool {
	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") || strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(supplied)) == nil
	}
	return secureCompare(supplied, configured)
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG of the week page.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.cfg.PreviewPath())
}

// staticFileServer serves the embedded stylesheet and scripts.
func staticFileServer() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
