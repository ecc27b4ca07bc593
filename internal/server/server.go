// Package server exposes the live session, rankings and match history over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/rewired-gh/archerstats/internal/logger"
	"github.com/rewired-gh/archerstats/internal/models"
	"github.com/rewired-gh/archerstats/internal/stats"
	"github.com/rewired-gh/archerstats/internal/storage"
)

// Tracker is the live session being served.
type Tracker interface {
	LiveStats() models.LiveStats
	Rankings(metric stats.Metric, activeOnly bool) []stats.Group[float64]
	Streaks() models.PerArcher[int]
	SetVenue(venue string)
	Venue() string
}

// History is the match database. It is optional.
type History interface {
	RecentMatches(ctx context.Context, n int) ([]models.MatchRecord, error)
	ArcherTotals(ctx context.Context) ([]storage.ArcherTotal, error)
}

// Server serves the query API, health check and metrics.
type Server struct {
	app  *fiber.App
	addr string
}

// New builds the HTTP app. history and metrics may be nil.
func New(addr string, tracker Tracker, history History, metrics http.Handler) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		l := logger.With("method", c.Method()).With("path", c.Path())
		if err != nil {
			l.Error("Request error: %v", err)
		} else {
			l.Debug("%d in %v", c.Response().StatusCode(), time.Since(start))
		}
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	h := &Handler{tracker: tracker, history: history}
	h.RegisterRoutes(app)

	return &Server{app: app, addr: addr}
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("HTTP server listening on %s", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
