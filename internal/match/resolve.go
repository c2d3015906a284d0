package match

import (
	"time"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/rating"
	"github.com/park285/liarslock/internal/store"
)

// decide applies the guess rule to both revealed choices: a player wins
// when they read the opponent correctly and the opponent misread them.
func decide(p1Choice, p1Guess, p2Choice, p2Guess int) rating.Outcome {
	p1Right := p1Guess == p2Choice
	p2Right := p2Guess == p1Choice
	switch {
	case p1Right && !p2Right:
		return rating.Player1Won
	case p2Right && !p1Right:
		return rating.Player2Won
	default:
		return rating.Drawn
	}
}

// winnerOf maps an outcome onto the stored winner value.
func winnerOf(m *domain.Match, o rating.Outcome) string {
	switch o {
	case rating.Player1Won:
		return m.Player1
	case rating.Player2Won:
		return m.Player2
	default:
		return domain.Draw
	}
}

func sideWins(side domain.Side) rating.Outcome {
	if side == domain.SidePlayer1 {
		return rating.Player1Won
	}
	return rating.Player2Won
}

// resolvePlayed settles a match whose reveals both verified.
func (e *Engine) resolvePlayed(tx store.Tx, m *domain.Match, now time.Time) error {
	p1, p2 := m.Player1Slot, m.Player2Slot
	outcome := decide(*p1.Choice, *p1.Guess, *p2.Choice, *p2.Guess)
	if err := e.applyResult(tx, m, outcome, now); err != nil {
		return err
	}
	return e.finalize(tx, m, domain.PhaseComplete, domain.ResolutionPlayed, outcome, now)
}

// resolveIntegrity ends the match against a player whose reveal did not
// match their commitment.
func (e *Engine) resolveIntegrity(tx store.Tx, m *domain.Match, violator domain.Side, now time.Time) error {
	outcome := sideWins(violator.Other())
	if err := e.applyResult(tx, m, outcome, now); err != nil {
		return err
	}
	m.Violator = m.PlayerID(violator)
	return e.finalize(tx, m, domain.PhaseComplete, domain.ResolutionIntegrity, outcome, now)
}

// forfeit resolves an expired phase by partial completion: a lone
// completer wins, anything else is a draw without rating effect.
func (e *Engine) forfeit(tx store.Tx, m *domain.Match, now time.Time) error {
	done1 := m.Player1Slot.Completed(m.Phase)
	done2 := m.Player2Slot.Completed(m.Phase)
	outcome := rating.Drawn
	switch {
	case done1 && !done2:
		outcome = rating.Player1Won
	case done2 && !done1:
		outcome = rating.Player2Won
	}
	if outcome == rating.Drawn {
		if !m.RatingApplied() {
			if err := touchAgents(tx, now, m.Player1, m.Player2); err != nil {
				return err
			}
			m.Player1RatingDelta = domain.IntPtr(0)
			m.Player2RatingDelta = domain.IntPtr(0)
		}
	} else if err := e.applyResult(tx, m, outcome, now); err != nil {
		return err
	}
	return e.finalize(tx, m, domain.PhaseForfeit, domain.ResolutionTimeout, outcome, now)
}

// touchAgents marks agents active without changing rating or counters.
// Missing agents are skipped since a draw forfeit settles nothing.
func touchAgents(tx store.Tx, now time.Time, ids ...string) error {
	for _, id := range ids {
		a, err := tx.Agent(id)
		if err != nil {
			return err
		}
		if a == nil {
			continue
		}
		a.LastActiveAt = now
		tx.PutAgent(a)
	}
	return nil
}

// applyResult settles ratings and counters of both agents. The stored
// deltas are the marker: a match that already carries them is left alone.
// A missing agent aborts the whole transaction so winner and deltas are
// never written apart.
func (e *Engine) applyResult(tx store.Tx, m *domain.Match, outcome rating.Outcome, now time.Time) error {
	if m.RatingApplied() {
		return nil
	}
	a1, err := tx.Agent(m.Player1)
	if err != nil {
		return err
	}
	a2, err := tx.Agent(m.Player2)
	if err != nil {
		return err
	}
	if a1 == nil || a2 == nil {
		return newError(KindNotFound, "agent of match %s is missing, cannot settle rating", m.ID)
	}

	d1, d2 := rating.Settle(a1.Rating, a2.Rating, outcome)
	r1, r2 := outcome.Results()
	settleAgent(a1, d1, r1, now)
	settleAgent(a2, d2, r2, now)
	tx.PutAgent(a1)
	tx.PutAgent(a2)

	m.Player1RatingDelta = domain.IntPtr(d1)
	m.Player2RatingDelta = domain.IntPtr(d2)
	return nil
}

func settleAgent(a *domain.Agent, delta int, result rating.Result, now time.Time) {
	s := rating.Standing{
		Rating:      a.Rating,
		Wins:        a.Wins,
		Losses:      a.Losses,
		Draws:       a.Draws,
		GamesPlayed: a.GamesPlayed,
	}.Apply(delta, result)
	a.Rating, a.Wins, a.Losses, a.Draws, a.GamesPlayed = s.Rating, s.Wins, s.Losses, s.Draws, s.GamesPlayed
	a.LastActiveAt = now
}

// finalize moves m into a terminal phase and frees both players.
func (e *Engine) finalize(tx store.Tx, m *domain.Match, phase domain.Phase, how domain.Resolution, outcome rating.Outcome, now time.Time) error {
	m.Phase = phase
	m.Resolution = how
	m.Winner = winnerOf(m, outcome)
	completed := now
	m.CompletedAt = &completed
	m.UpdatedAt = now
	return releasePlayers(tx, m)
}

// releasePlayers clears the active-match index of both players when it
// still points at m.
func releasePlayers(tx store.Tx, m *domain.Match) error {
	for _, id := range []string{m.Player1, m.Player2} {
		cur, err := tx.ActiveMatchID(id)
		if err != nil {
			return err
		}
		if cur == m.ID {
			tx.ClearActive(id)
		}
	}
	return nil
}
