// Package web serves the item API, the calendar views and the preview
// image.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"dbcal/internal/config"
	appLog "dbcal/internal/log"
	"dbcal/internal/store"
)

// ViewCacheTTL bounds how long a built calendar view is reused. Writes
// through the API drop the cache immediately.
const ViewCacheTTL = 30 * time.Second

// Server wires HTTP routes to the store.
type Server struct {
	cfg   *config.Config
	store *store.Store
	loc   *time.Location
	mux   *http.ServeMux
	now   func() time.Time

	viewMu sync.RWMutex
	views  map[string]cachedView
	// viewGen counts invalidations; views built before one are not cached.
	viewGen uint64

	ready chan struct{}
	addr  string
}

func NewServer(cfg *config.Config, st *store.Store, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:   cfg,
		store: st,
		loc:   loc,
		mux:   http.NewServeMux(),
		now:   time.Now,
		views: make(map[string]cachedView),
		ready: make(chan struct{}),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, behind basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Ready is closed once ListenAndServe has bound its listener.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listen address. Valid after Ready is closed.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe serves on cfg.Listen until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.addr = ln.Addr().String()
	close(s.ready)

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.addr, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/collections", s.handleListCollections)
	s.mux.HandleFunc("POST /api/collections", s.handleCreateCollection)
	s.mux.HandleFunc("DELETE /api/collections/{id}", s.handleDeleteCollection)
	s.mux.HandleFunc("GET /api/collections/{id}/items", s.handleListItems)
	s.mux.HandleFunc("POST /api/collections/{id}/items", s.handleAddItem)
	s.mux.HandleFunc("PUT /api/collections/{id}/items/{item}", s.handleUpdateItem)
	s.mux.HandleFunc("DELETE /api/collections/{id}/items/{item}", s.handleDeleteItem)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendarJSON)
	s.mux.HandleFunc("GET /api/calendar/items", s.handleCalendarItems)
	s.mux.HandleFunc("GET /calendar", s.handleCalendarHTML)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendarICS)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials leave auth disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dbcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.cfg.Capture.Output)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		appLog.Error("failed to encode JSON response", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeStoreError maps store errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	appLog.Error("store request failed", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
