package match

import (
	"context"
	"strings"
	"time"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/store"
)

// Timeout statuses reported by CheckTimeout.
const (
	TimeoutTerminal = "terminal"
	TimeoutPending  = "pending"
	TimeoutForfeit  = "forfeited"
)

type TimeoutResult struct {
	Status string
	Phase  domain.Phase
	Winner string
	// Forfeited is true only for the call that forced the resolution.
	Forfeited bool
}

// CheckTimeout forfeits matchID when its phase deadline has passed. It is
// idempotent and safe to race with normal play: the deadline is
// re-checked inside the transaction.
func (e *Engine) CheckTimeout(ctx context.Context, matchID string) (*TimeoutResult, error) {
	matchID = strings.TrimSpace(matchID)
	var (
		res  TimeoutResult
		done *domain.Match
	)
	err := e.store.Update(ctx, func(tx store.Tx) error {
		res, done = TimeoutResult{}, nil
		now := e.now()
		m, err := loadMatch(tx, matchID)
		if err != nil {
			return err
		}
		switch {
		case m.Terminal():
			res = TimeoutResult{Status: TimeoutTerminal, Phase: m.Phase, Winner: m.Winner}
			return nil
		case !m.Expired(now):
			res = TimeoutResult{Status: TimeoutPending, Phase: m.Phase}
			return nil
		}
		if err := e.forfeit(tx, m, now); err != nil {
			return err
		}
		tx.PutMatch(m)
		res = TimeoutResult{Status: TimeoutForfeit, Phase: m.Phase, Winner: m.Winner, Forfeited: true}
		done = m
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	if done != nil {
		e.finished(ctx, done)
	}
	return &res, nil
}

// DueMatches lists non-terminal matches whose deadline passed before now.
func (e *Engine) DueMatches(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return e.store.DueMatches(ctx, now, limit)
}

// Now is the engine clock.
func (e *Engine) Now() time.Time { return e.now() }
