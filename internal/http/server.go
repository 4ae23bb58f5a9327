package http

import (
	"context"
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jvanheule/webhook-poller/internal/config"
	"github.com/jvanheule/webhook-poller/internal/http/middleware"
	"github.com/jvanheule/webhook-poller/internal/metrics"
	"github.com/jvanheule/webhook-poller/internal/repository"
)

// Server is the read-only ops surface: health, Prometheus metrics and queue
// state inspection. It never mutates webhook_events.
type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, db *sqlx.DB) *Server {
	eventsRepo := repository.NewEventsRepository(db, cfg.Poller.MaxAttempts)

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// routes
	v1 := e.Group("/v1", middleware.BearerTokenMiddleware(cfg.HTTP.APIToken))
	v1.GET("/events/stats", statsHandler(eventsRepo))
	v1.GET("/events/dead", listDeadHandler(eventsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
