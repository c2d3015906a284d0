package match

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/metrics"
	"github.com/park285/liarslock/internal/store"
	"github.com/park285/liarslock/pkg/matchdto"
)

// RequestMatch returns the caller's running match, pairs them with the
// oldest waiting agent, or puts them in the queue. Pairing, queue removal
// and match creation commit together.
func (e *Engine) RequestMatch(ctx context.Context, agentID string) (*matchdto.Ticket, error) {
	agentID = strings.TrimSpace(agentID)
	var (
		ticket  matchdto.Ticket
		created *domain.Match
		done    *domain.Match
		queued  bool
	)
	err := e.store.Update(ctx, func(tx store.Tx) error {
		ticket, created, done, queued = matchdto.Ticket{}, nil, nil, false
		now := e.now()

		self, err := tx.Agent(agentID)
		if err != nil {
			return err
		}
		if self == nil {
			return newError(KindNotFound, "agent %s", agentID)
		}

		cur, err := e.activeMatch(tx, agentID)
		if err != nil {
			return err
		}
		if cur != nil {
			if !cur.Expired(now) {
				return e.ticketFor(tx, &ticket, cur, agentID)
			}
			// a stale match would pin the agent until the sweeper runs
			if err := e.forfeit(tx, cur, now); err != nil {
				return err
			}
			tx.PutMatch(cur)
			done = cur
		}

		opp, err := e.findOpponent(tx, agentID)
		if err != nil {
			return err
		}
		if opp == nil {
			entry, err := tx.QueueEntry(agentID)
			if err != nil {
				return err
			}
			joined := now
			if entry != nil {
				joined = entry.JoinedAt
			} else {
				tx.Enqueue(domain.QueueEntry{AgentID: agentID, JoinedAt: now})
				queued = true
			}
			ticket = matchdto.Ticket{Status: matchdto.TicketQueued, QueuedAt: &joined}
			return nil
		}

		tx.Dequeue(opp.ID)
		tx.Dequeue(agentID)
		m := &domain.Match{
			ID:            e.newID(),
			Player1:       agentID,
			Player2:       opp.ID,
			Phase:         domain.PhaseCommit,
			PhaseDeadline: now.Add(e.timeout),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		tx.PutMatch(m)
		tx.SetActive(agentID, m.ID)
		tx.SetActive(opp.ID, m.ID)
		created = m
		ticket = matchdto.Ticket{
			Status:       matchdto.TicketMatched,
			MatchID:      m.ID,
			OpponentID:   opp.ID,
			OpponentName: opp.Name,
			Phase:        string(m.Phase),
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	if done != nil {
		e.finished(ctx, done)
	}
	if created != nil {
		metrics.MatchesCreated.Inc()
		e.log.Info("match_created",
			zap.String("match_id", created.ID),
			zap.String("player1", created.Player1),
			zap.String("player2", created.Player2),
		)
	}
	if queued {
		metrics.QueueJoins.Inc()
		e.log.Debug("queue_join", zap.String("agent_id", agentID))
	}
	return &ticket, nil
}

// activeMatch returns the agent's non-terminal match, clearing an index
// entry that points at a finished or missing match.
func (e *Engine) activeMatch(tx store.Tx, agentID string) (*domain.Match, error) {
	id, err := tx.ActiveMatchID(agentID)
	if err != nil || id == "" {
		return nil, err
	}
	m, err := tx.Match(id)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Terminal() {
		tx.ClearActive(agentID)
		return nil, nil
	}
	return m, nil
}

// findOpponent picks the oldest waiting agent other than agentID. Entries
// of agents that already play or no longer exist are dropped on the way.
func (e *Engine) findOpponent(tx store.Tx, agentID string) (*domain.Agent, error) {
	waiting, err := tx.Queued(queueScan)
	if err != nil {
		return nil, err
	}
	for _, entry := range waiting {
		if entry.AgentID == agentID {
			continue
		}
		busy, err := e.activeMatch(tx, entry.AgentID)
		if err != nil {
			return nil, err
		}
		if busy != nil {
			tx.Dequeue(entry.AgentID)
			continue
		}
		a, err := tx.Agent(entry.AgentID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			tx.Dequeue(entry.AgentID)
			continue
		}
		return a, nil
	}
	return nil, nil
}

// ticketFor describes an existing match from agentID's seat. The caller's
// stale queue entry, if any, is dropped.
func (e *Engine) ticketFor(tx store.Tx, t *matchdto.Ticket, m *domain.Match, agentID string) error {
	entry, err := tx.QueueEntry(agentID)
	if err != nil {
		return err
	}
	if entry != nil {
		tx.Dequeue(agentID)
	}
	oppID := m.PlayerID(m.SideOf(agentID).Other())
	opp, err := tx.Agent(oppID)
	if err != nil {
		return err
	}
	*t = matchdto.Ticket{
		Status:     matchdto.TicketMatched,
		MatchID:    m.ID,
		OpponentID: oppID,
		Phase:      string(m.Phase),
	}
	if opp != nil {
		t.OpponentName = opp.Name
	}
	return nil
}

// LeaveQueue removes the agent's waiting entry. It reports whether one
// existed.
func (e *Engine) LeaveQueue(ctx context.Context, agentID string) (bool, error) {
	agentID = strings.TrimSpace(agentID)
	removed := false
	err := e.store.Update(ctx, func(tx store.Tx) error {
		removed = false
		entry, err := tx.QueueEntry(agentID)
		if err != nil || entry == nil {
			return err
		}
		tx.Dequeue(agentID)
		removed = true
		return nil
	})
	if err != nil {
		return false, translate(err)
	}
	return removed, nil
}

// QueueLength is the number of agents currently waiting.
func (e *Engine) QueueLength(ctx context.Context) (int, error) {
	return e.store.QueueLength(ctx)
}
