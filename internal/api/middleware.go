package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/metrics"
)

const localAgent = "agent"

// observe records request metrics. Handler errors are rendered here so the
// recorded status is the one the client sees.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := s.handleFiberError(c, err); herr != nil {
			return herr
		}
	}
	route := c.Route().Path
	status := c.Response().StatusCode()
	metrics.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
	metrics.HTTPDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
	if status >= fiber.StatusInternalServerError {
		s.log.Warn("http_request_failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
		)
	}
	return nil
}

func (s *Server) requireAgent(c *fiber.Ctx) error {
	a, err := s.registry.Authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	c.Locals(localAgent, a)
	return c.Next()
}

// optionalAgent authenticates when a key is present; anonymous callers
// continue as spectators.
func (s *Server) optionalAgent(c *fiber.Ctx) error {
	if c.Get(fiber.HeaderAuthorization) == "" {
		return c.Next()
	}
	return s.requireAgent(c)
}

func caller(c *fiber.Ctx) *domain.Agent {
	a, _ := c.Locals(localAgent).(*domain.Agent)
	return a
}

func callerID(c *fiber.Ctx) string {
	if a := caller(c); a != nil {
		return a.ID
	}
	return ""
}
