// Package archive keeps finished matches for history queries after their
// live documents expire from the store.
package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/pkg/matchdto"
)

const defaultLimit = 20

// Archive is implemented by Postgres and Memory.
type Archive interface {
	SaveResult(ctx context.Context, m *domain.Match) error
	Recent(ctx context.Context, limit int) ([]*matchdto.MatchResult, error)
	ByAgent(ctx context.Context, agentID string, limit int) ([]*matchdto.MatchResult, error)
	Close() error
}

// ResultOf flattens a terminal match into its archived form. Non-terminal
// matches yield nil.
func ResultOf(m *domain.Match) *matchdto.MatchResult {
	if m == nil || !m.Terminal() {
		return nil
	}
	r := &matchdto.MatchResult{
		MatchID:       m.ID,
		Player1:       m.Player1,
		Player2:       m.Player2,
		Winner:        m.Winner,
		Phase:         string(m.Phase),
		Resolution:    string(m.Resolution),
		Player1Choice: copyInt(m.Player1Slot.Choice),
		Player2Choice: copyInt(m.Player2Slot.Choice),
		Player1Guess:  copyInt(m.Player1Slot.Guess),
		Player2Guess:  copyInt(m.Player2Slot.Guess),
		CreatedAt:     m.CreatedAt,
		CompletedAt:   m.UpdatedAt,
	}
	if m.CompletedAt != nil {
		r.CompletedAt = *m.CompletedAt
	}
	if m.Player1RatingDelta != nil {
		r.Player1RatingDelta = *m.Player1RatingDelta
	}
	if m.Player2RatingDelta != nil {
		r.Player2RatingDelta = *m.Player2RatingDelta
	}
	return r
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// Memory is the development archive used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.RWMutex
	results map[string]*matchdto.MatchResult
}

func NewMemory() *Memory {
	return &Memory{results: make(map[string]*matchdto.MatchResult)}
}

// SaveResult keeps the first result recorded for a match id.
func (a *Memory) SaveResult(_ context.Context, m *domain.Match) error {
	r := ResultOf(m)
	if r == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.results[r.MatchID]; !ok {
		a.results[r.MatchID] = r
	}
	return nil
}

func (a *Memory) Recent(_ context.Context, limit int) ([]*matchdto.MatchResult, error) {
	return a.filter(func(*matchdto.MatchResult) bool { return true }, clampLimit(limit)), nil
}

func (a *Memory) ByAgent(_ context.Context, agentID string, limit int) ([]*matchdto.MatchResult, error) {
	return a.filter(func(r *matchdto.MatchResult) bool {
		return r.Player1 == agentID || r.Player2 == agentID
	}, clampLimit(limit)), nil
}

func (a *Memory) filter(keep func(*matchdto.MatchResult) bool, limit int) []*matchdto.MatchResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*matchdto.MatchResult, 0)
	for _, r := range a.results {
		if keep(r) {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].MatchID > out[j].MatchID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (a *Memory) Close() error { return nil }

var (
	_ Archive = (*Memory)(nil)
	_ Archive = (*Postgres)(nil)
)

// durationMillis is the wall time a match took.
func durationMillis(r *matchdto.MatchResult) int64 {
	d := r.CompletedAt.Sub(r.CreatedAt)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}
