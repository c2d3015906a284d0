package match

import (
	"context"
	"strings"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/pkg/matchdto"
)

// View returns the phase-filtered projection of matchID for viewerID. An
// empty viewerID is a spectator. An expired phase is forfeited first so
// the view never shows a dead deadline as open.
func (e *Engine) View(ctx context.Context, matchID, viewerID string) (matchdto.View, error) {
	m, err := e.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Expired(e.now()) {
		if _, err := e.CheckTimeout(ctx, m.ID); err != nil {
			return nil, err
		}
		if m, err = e.Get(ctx, matchID); err != nil {
			return nil, err
		}
	}
	r, err := e.roster(ctx, m)
	if err != nil {
		return nil, err
	}
	return Project(m, strings.TrimSpace(viewerID), r), nil
}

// Roster holds the agent documents of both players. Either may be nil.
type Roster struct {
	Player1 *domain.Agent
	Player2 *domain.Agent
}

func (e *Engine) roster(ctx context.Context, m *domain.Match) (Roster, error) {
	a1, err := e.store.LoadAgent(ctx, m.Player1)
	if err != nil {
		return Roster{}, err
	}
	a2, err := e.store.LoadAgent(ctx, m.Player2)
	if err != nil {
		return Roster{}, err
	}
	return Roster{Player1: a1, Player2: a2}, nil
}

// Project builds the view of m for viewerID. It is a pure function of the
// stored match and the roster.
func Project(m *domain.Match, viewerID string, r Roster) matchdto.View {
	side := m.SideOf(viewerID)
	h := header(m, side, r)
	own := ownSlot(m, side)

	switch m.Phase {
	case domain.PhaseCommit:
		h.Kind = matchdto.KindCommit
		return matchdto.CommitView{Header: h, Progress: progress(m), You: own}
	case domain.PhaseMessage:
		h.Kind = matchdto.KindMessage
		return matchdto.MessageView{Header: h, Progress: progress(m), You: own}
	case domain.PhaseGuess:
		h.Kind = matchdto.KindGuess
		return matchdto.GuessView{Header: h, Progress: progress(m), You: own, Messages: exchange(m)}
	case domain.PhaseReveal:
		h.Kind = matchdto.KindReveal
		return matchdto.RevealView{
			Header:   h,
			Progress: progress(m),
			You:      own,
			Messages: exchange(m),
			Guesses:  matchdto.Guesses{Player1: valueOf(m.Player1Slot.Guess), Player2: valueOf(m.Player2Slot.Guess)},
		}
	default:
		h.Kind = matchdto.KindFinal
		return matchdto.FinalView{
			Header:      h,
			Winner:      m.Winner,
			Resolution:  string(m.Resolution),
			Violator:    m.Violator,
			CompletedAt: m.CompletedAt,
			You:         own,
			Player1:     disclose(m.Player1Slot, m.Player1RatingDelta),
			Player2:     disclose(m.Player2Slot, m.Player2RatingDelta),
		}
	}
}

func header(m *domain.Match, side domain.Side, r Roster) matchdto.Header {
	h := matchdto.Header{
		MatchID:       m.ID,
		Phase:         string(m.Phase),
		PhaseDeadline: m.PhaseDeadline,
		Player1:       m.Player1,
		Player2:       m.Player2,
		YourSide:      side.String(),
		CreatedAt:     m.CreatedAt,
	}
	if r.Player1 != nil {
		h.Player1Name, h.Player1Rating = r.Player1.Name, r.Player1.Rating
	}
	if r.Player2 != nil {
		h.Player2Name, h.Player2Rating = r.Player2.Name, r.Player2.Rating
	}
	return h
}

func progress(m *domain.Match) matchdto.Progress {
	return matchdto.Progress{
		Player1: m.Player1Slot.Completed(m.Phase),
		Player2: m.Player2Slot.Completed(m.Phase),
	}
}

// ownSlot echoes the viewer's submissions; nil for spectators.
func ownSlot(m *domain.Match, side domain.Side) *matchdto.Own {
	s := m.Slot(side)
	if s == nil {
		return nil
	}
	return &matchdto.Own{
		Commitment: s.Commitment,
		Message:    cloneString(s.Message),
		Claim:      cloneInt(s.Claim),
		Guess:      cloneInt(s.Guess),
		Choice:     cloneInt(s.Choice),
	}
}

func exchange(m *domain.Match) matchdto.Exchange {
	said := func(s domain.Slot) matchdto.Said {
		out := matchdto.Said{Claim: cloneInt(s.Claim)}
		if s.Message != nil {
			out.Message = *s.Message
		}
		return out
	}
	return matchdto.Exchange{Player1: said(m.Player1Slot), Player2: said(m.Player2Slot)}
}

func disclose(s domain.Slot, delta *int) matchdto.Disclosure {
	d := matchdto.Disclosure{
		Message: cloneString(s.Message),
		Claim:   cloneInt(s.Claim),
		Guess:   cloneInt(s.Guess),
		Choice:  cloneInt(s.Choice),
		Nonce:   s.Nonce,
	}
	if delta != nil {
		d.RatingDelta = *delta
	}
	return d
}

func valueOf(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	return domain.IntPtr(*p)
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
