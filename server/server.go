package server

import (
	"context"
	"net/http"
	"time"

	coreconfig "finbot/core/config"
	"finbot/core/logger"
	"finbot/server/storage"
	"log/slog"
)

// Server is the backend REST API process.
type Server struct {
	cfg     *coreconfig.Config
	store   *storage.Store
	tokens  *TokenIssuer
	handler http.Handler

	// now is swappable in tests for deterministic period windows.
	now func() time.Time
}

// New assembles the API server over an open store.
func New(cfg *coreconfig.Config, store *storage.Store) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		tokens: NewTokenIssuer(
			cfg.Server.JWTSecret,
			time.Duration(cfg.Server.TokenTTLHours)*time.Hour,
		),
		now: time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/telegram", s.handleAuthTelegram)
	mux.HandleFunc("POST /api/users/update-net-worth", s.withAuth(s.handleUpdateNetWorth))
	mux.HandleFunc("GET /api/users/me", s.withAuth(s.handleMe))

	mux.HandleFunc("GET /api/categories/custom", s.withAuth(s.handleListCategories))
	mux.HandleFunc("POST /api/categories/custom", s.withAuth(s.handleCreateCategory))
	mux.HandleFunc("DELETE /api/categories/custom/{id}", s.withAuth(s.handleDeleteCategory))

	mux.HandleFunc("POST /api/transactions", s.withAuth(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.withAuth(s.handleListTransactions))
	mux.HandleFunc("PUT /api/transactions/{id}", s.withAuth(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withAuth(s.handleDeleteTransaction))

	s.handler = logRequests(mux)
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("listening",
			slog.String("event", "http.listen"),
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.HTTP.Warn("shutdown incomplete",
			slog.String("event", "http.shutdown"),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.HTTP.Info("stopped",
		slog.String("event", "http.shutdown"),
	)
	return <-errCh
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.HTTP.Info("request",
			slog.String("event", "http.request"),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", rec.status),
			slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		)
	})
}
