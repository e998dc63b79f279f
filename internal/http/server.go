// README: API gateway; owns the HTTP server lifecycle around the gin router.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"taxihub/internal/events"
	"taxihub/internal/modules/ledger"
)

const shutdownTimeout = 5 * time.Second

type ServerDeps struct {
	Addr   string
	Ledger *ledger.Service
	Hub    *events.Hub
	Logger *slog.Logger
}

type Server struct {
	srv *http.Server
	log *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              deps.Addr,
			Handler:           NewRouter(deps.Ledger, deps.Hub, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Routes() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
