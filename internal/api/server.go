// Package api is the HTTP boundary of the match service.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/agent"
	"github.com/park285/liarslock/internal/archive"
	"github.com/park285/liarslock/internal/match"
	"github.com/park285/liarslock/internal/msgcat"
	"github.com/park285/liarslock/internal/obslog"
)

type Deps struct {
	Engine   *match.Engine
	Registry *agent.Registry
	Archive  archive.Archive
	Messages *msgcat.Catalog
	Logger   *zap.Logger
}

type Server struct {
	app      *fiber.App
	engine   *match.Engine
	registry *agent.Registry
	archive  archive.Archive
	msgs     *msgcat.Catalog
	log      *zap.Logger
}

func New(d Deps) *Server {
	s := &Server{
		engine:   d.Engine,
		registry: d.Registry,
		archive:  d.Archive,
		msgs:     d.Messages,
		log:      d.Logger,
	}
	if s.msgs == nil {
		s.msgs = msgcat.MustDefault()
	}
	if s.log == nil {
		s.log = obslog.L()
	}
	if s.archive == nil {
		s.archive = archive.NewMemory()
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "liarslock",
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          s.handleFiberError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	app := s.app
	app.Use(recover.New())
	app.Use(s.observe)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Post("/register", s.register)
	api.Get("/leaderboard", s.leaderboard)
	api.Get("/matches/recent", s.recentMatches)
	api.Get("/queue", s.queueStatus)
	api.Get("/agent/me", s.requireAgent, s.me)
	api.Get("/agent/me/matches", s.requireAgent, s.myMatches)
	api.Get("/agent/:name", s.agentByName)

	api.Post("/match/find", s.requireAgent, s.findMatch)
	api.Delete("/match/queue", s.requireAgent, s.leaveQueue)
	api.Get("/match/:id", s.optionalAgent, s.viewMatch)
	api.Post("/match/:id/commit", s.requireAgent, s.commit)
	api.Post("/match/:id/message", s.requireAgent, s.message)
	api.Post("/match/:id/guess", s.requireAgent, s.guess)
	api.Post("/match/:id/reveal", s.requireAgent, s.reveal)
	api.Post("/match/:id/timeout", s.requireAgent, s.timeout)
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.log.Info("http_listen", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
