package server

import (
	"encoding/json"
	"github.com/timanema/fail2ban-exporter/pkg/unix_time"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"io"
	"net/http"
)

var tracer = otel.Tracer("github.com/timanema/fail2ban-exporter/internal/server")

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp unix_time.Time `json:"timestamp"`
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "GET /metrics", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	body := s.scraper.Scrape(ctx)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		s.log.Debug().Err(err).Msg("failed to write metrics response")
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	res := healthResponse{
		Status:    "healthy",
		Timestamp: unix_time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.log.Debug().Err(err).Msg("failed to write health response")
	}
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}
