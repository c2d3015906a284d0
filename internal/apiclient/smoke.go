package apiclient

import (
	"context"
	"fmt"

	"github.com/park285/liarslock/internal/commitment"
	"github.com/park285/liarslock/pkg/matchdto"
)

// SmokeResult describes one scripted round played against a live server.
type SmokeResult struct {
	Liar   *matchdto.AgentProfile
	Honest *matchdto.AgentProfile
	Ticket *matchdto.Ticket
	Final  *matchdto.FinalView
}

// Smoke registers two fresh agents and plays one full commit-reveal round.
// The liar picks 1 and claims 0; the honest agent picks 0 and guesses 0,
// so the liar wins. The queue must be empty for the pairing to be
// deterministic.
func Smoke(ctx context.Context, c *Client, liarName, honestName string) (*SmokeResult, error) {
	liarReg, err := c.Register(ctx, liarName)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", liarName, err)
	}
	honestReg, err := c.Register(ctx, honestName)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", honestName, err)
	}
	liar, honest := c.As(liarReg.APIKey), c.As(honestReg.APIKey)

	if t, err := honest.FindMatch(ctx); err != nil {
		return nil, fmt.Errorf("queue %s: %w", honestName, err)
	} else if t.Status != matchdto.TicketQueued {
		return nil, fmt.Errorf("expected %s to wait in the queue, got %s", honestName, t.Status)
	}
	ticket, err := liar.FindMatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", liarName, err)
	}
	if ticket.Status != matchdto.TicketMatched || ticket.OpponentID != honestReg.Agent.ID {
		return nil, fmt.Errorf("expected %s to be paired with %s, got %+v", liarName, honestName, ticket)
	}
	id := ticket.MatchID

	liarNonce, liarDigest, err := commitment.Seal(1)
	if err != nil {
		return nil, err
	}
	honestNonce, honestDigest, err := commitment.Seal(0)
	if err != nil {
		return nil, err
	}
	zero := 0

	steps := []struct {
		name string
		run  func() (*matchdto.SubmitResponse, error)
	}{
		{"liar commit", func() (*matchdto.SubmitResponse, error) { return liar.Commit(ctx, id, liarDigest) }},
		{"honest commit", func() (*matchdto.SubmitResponse, error) { return honest.Commit(ctx, id, honestDigest) }},
		{"liar message", func() (*matchdto.SubmitResponse, error) {
			return liar.Message(ctx, id, "I picked 0, trust me", &zero)
		}},
		{"honest message", func() (*matchdto.SubmitResponse, error) {
			return honest.Message(ctx, id, "I picked 0 as well", &zero)
		}},
		{"liar guess", func() (*matchdto.SubmitResponse, error) { return liar.Guess(ctx, id, 0) }},
		{"honest guess", func() (*matchdto.SubmitResponse, error) { return honest.Guess(ctx, id, 0) }},
		{"liar reveal", func() (*matchdto.SubmitResponse, error) { return liar.Reveal(ctx, id, 1, liarNonce) }},
		{"honest reveal", func() (*matchdto.SubmitResponse, error) { return honest.Reveal(ctx, id, 0, honestNonce) }},
	}
	for _, s := range steps {
		if _, err := s.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	v, err := liar.View(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", id, err)
	}
	final, ok := v.(*matchdto.FinalView)
	if !ok {
		return nil, fmt.Errorf("match %s not finished: %s", id, v.ViewKind())
	}
	liarProfile, err := liar.Me(ctx)
	if err != nil {
		return nil, err
	}
	honestProfile, err := honest.Me(ctx)
	if err != nil {
		return nil, err
	}
	return &SmokeResult{Liar: liarProfile, Honest: honestProfile, Ticket: ticket, Final: final}, nil
}
