package server

import (
	"context"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/timanema/fail2ban-exporter/internal/logger"
	stdlog "log"
	"net/http"
	"time"
)

// Scraper refreshes the counters and renders them in the text exposition format.
type Scraper interface {
	Scrape(ctx context.Context) string
}

type Config struct {
	Addr        string
	CORSOrigins []string
}

type Server struct {
	scraper Scraper
	log     *logger.Logger
	cfg     Config

	server *http.Server
}

func New(scraper Scraper, log *logger.Logger, cfg Config) *Server {
	s := &Server{
		scraper: scraper,
		log:     log,
		cfg:     cfg,
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          stdlog.New(log, "", 0),
	}
	return s
}

// Handler routes /metrics and /health; everything else is answered with an empty 404.
// Paths are matched as sent, without cleaning or redirects. Requests are not access-logged.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().SkipClean(true)
	router.HandleFunc("/metrics", s.metrics).Methods(http.MethodGet)
	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(notFound)

	if len(s.cfg.CORSOrigins) == 0 {
		return router
	}

	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)
}

func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server stopped unexpectedly")
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
