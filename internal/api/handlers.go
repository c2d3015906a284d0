package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/match"
	"github.com/park285/liarslock/pkg/matchdto"
)

func (s *Server) register(c *fiber.Ctx) error {
	var req matchdto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	a, key, err := s.registry.Register(c.UserContext(), req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(matchdto.RegisterResponse{Agent: profileOf(a), APIKey: key})
}

func (s *Server) me(c *fiber.Ctx) error {
	return c.JSON(profileOf(caller(c)))
}

func (s *Server) agentByName(c *fiber.Ctx) error {
	a, err := s.registry.ByName(c.UserContext(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(profileOf(a))
}

func (s *Server) leaderboard(c *fiber.Ctx) error {
	agents, err := s.registry.Leaderboard(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	out := make([]matchdto.LeaderboardEntry, 0, len(agents))
	for i, a := range agents {
		out = append(out, matchdto.LeaderboardEntry{
			Rank:        i + 1,
			ID:          a.ID,
			Name:        a.Name,
			Rating:      a.Rating,
			Wins:        a.Wins,
			Losses:      a.Losses,
			Draws:       a.Draws,
			GamesPlayed: a.GamesPlayed,
		})
	}
	return c.JSON(out)
}

func (s *Server) recentMatches(c *fiber.Ctx) error {
	rows, err := s.archive.Recent(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(rows)
}

func (s *Server) myMatches(c *fiber.Ctx) error {
	rows, err := s.archive.ByAgent(c.UserContext(), callerID(c), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(rows)
}

func (s *Server) queueStatus(c *fiber.Ctx) error {
	n, err := s.engine.QueueLength(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(matchdto.QueueStatus{Waiting: n})
}

func (s *Server) findMatch(c *fiber.Ctx) error {
	t, err := s.engine.RequestMatch(c.UserContext(), callerID(c))
	if err != nil {
		return err
	}
	if t.Status == matchdto.TicketMatched {
		opponent := t.OpponentName
		if opponent == "" {
			opponent = t.OpponentID
		}
		t.Message = s.msgs.Text("queue.matched", map[string]any{"Opponent": opponent, "MatchID": t.MatchID}, "")
		return c.Status(fiber.StatusCreated).JSON(t)
	}
	if t.QueuedAt != nil {
		t.Message = s.msgs.Text("queue.queued", map[string]any{"Since": t.QueuedAt.UTC().Format(time.RFC3339)}, "")
	}
	return c.Status(fiber.StatusAccepted).JSON(t)
}

func (s *Server) leaveQueue(c *fiber.Ctx) error {
	removed, err := s.engine.LeaveQueue(c.UserContext(), callerID(c))
	if err != nil {
		return err
	}
	key := "queue.not_queued"
	if removed {
		key = "queue.left"
	}
	return c.JSON(fiber.Map{"removed": removed, "message": s.msgs.Text(key, nil, "")})
}

func (s *Server) viewMatch(c *fiber.Ctx) error {
	v, err := s.engine.View(c.UserContext(), c.Params("id"), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(v)
}

func (s *Server) commit(c *fiber.Ctx) error {
	var req matchdto.CommitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	return s.submit(c, match.CommitAction{Commitment: req.Commitment})
}

func (s *Server) message(c *fiber.Ctx) error {
	var req matchdto.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	return s.submit(c, match.MessageAction{Text: req.Message, Claim: req.Claim})
}

func (s *Server) guess(c *fiber.Ctx) error {
	var req matchdto.GuessRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.Guess == nil {
		return missing("guess")
	}
	return s.submit(c, match.GuessAction{Guess: *req.Guess})
}

func (s *Server) reveal(c *fiber.Ctx) error {
	var req matchdto.RevealRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	if req.Choice == nil {
		return missing("choice")
	}
	return s.submit(c, match.RevealAction{Choice: *req.Choice, Nonce: req.Nonce})
}

func (s *Server) submit(c *fiber.Ctx, a match.Action) error {
	res, err := s.engine.Submit(c.UserContext(), c.Params("id"), callerID(c), a)
	if err != nil {
		return err
	}
	return c.JSON(matchdto.SubmitResponse{Success: true, Phase: string(res.Phase), Advanced: res.Advanced})
}

func (s *Server) timeout(c *fiber.Ctx) error {
	r, err := s.engine.CheckTimeout(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(matchdto.TimeoutResponse{
		Status:    r.Status,
		Phase:     string(r.Phase),
		Winner:    r.Winner,
		Forfeited: r.Forfeited,
	})
}

func missing(field string) error {
	return &match.Error{Kind: match.KindInvalidInput, Msg: field + " is required"}
}

func profileOf(a *domain.Agent) *matchdto.AgentProfile {
	if a == nil {
		return nil
	}
	return &matchdto.AgentProfile{
		ID:           a.ID,
		Name:         a.Name,
		Rating:       a.Rating,
		Wins:         a.Wins,
		Losses:       a.Losses,
		Draws:        a.Draws,
		GamesPlayed:  a.GamesPlayed,
		Badges:       append([]string(nil), a.Badges...),
		CreatedAt:    a.CreatedAt,
		LastActiveAt: a.LastActiveAt,
	}
}
