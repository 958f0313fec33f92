// Package viewer serves the local HTTP API the frontend talks to.
package viewer

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/duythong28/connect-career-fe-sub001/internal/viewer/routes"
)

// Server is a running viewer.
type Server struct {
	http *http.Server
}

// Start serves the API on addr until the context is canceled.
func Start(ctx context.Context, addr string, d routes.Deps) (*Server, error) {
	mux := http.NewServeMux()
	routes.Register(mux, d)

	srv := &http.Server{
		Addr:    addr,
		Handler: noCache(mux),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Printf("VIEWER: listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("VIEWER: serve: %v", err)
		}
	}()

	return &Server{http: srv}, nil
}

// Close shuts the server down immediately.
func (s *Server) Close() error {
	return s.http.Close()
}

// noCache disables client-side caching for API responses.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
