package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/liarslock/internal/domain"
)

// MemoryStore is a development-only store used when no REDIS_URL is
// configured. Update holds a single lock for the whole transaction.
type MemoryStore struct {
	mu sync.RWMutex

	matches map[string]*domain.Match
	agents  map[string]*domain.Agent
	byName  map[string]string // lower(name) -> agent id
	byKey   map[string]string // api key hash -> agent id
	active  map[string]string
	queue   map[string]domain.QueueEntry
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]*domain.Match),
		agents:  make(map[string]*domain.Agent),
		byName:  make(map[string]string),
		byKey:   make(map[string]string),
		active:  make(map[string]string),
		queue:   make(map[string]domain.QueueEntry),
	}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	mt := &memTx{s: s, st: newStaging()}
	if err := fn(mt); err != nil {
		return err
	}
	s.apply(mt.st)
	return nil
}

func (s *MemoryStore) apply(st *staging) {
	for id, m := range st.matches {
		s.matches[id] = m
	}
	for id, a := range st.agents {
		if prev, ok := s.agents[id]; ok && !strings.EqualFold(prev.Name, a.Name) {
			delete(s.byName, nameKey(prev.Name))
		}
		s.agents[id] = a
		s.byName[nameKey(a.Name)] = id
		if a.APIKeyHash != "" {
			s.byKey[a.APIKeyHash] = id
		}
	}
	for agentID, matchID := range st.active {
		if matchID == "" {
			delete(s.active, agentID)
		} else {
			s.active[agentID] = matchID
		}
	}
	for agentID, e := range st.queue {
		if e == nil {
			delete(s.queue, agentID)
			continue
		}
		if _, ok := s.queue[agentID]; !ok {
			s.queue[agentID] = *e
		}
	}
}

type memTx struct {
	s  *MemoryStore
	st *staging
}

func (t *memTx) Match(id string) (*domain.Match, error) {
	if m, ok := t.st.matches[id]; ok {
		return m.Clone(), nil
	}
	return t.s.matches[id].Clone(), nil
}

func (t *memTx) Agent(id string) (*domain.Agent, error) {
	if a, ok := t.st.agents[id]; ok {
		return a.Clone(), nil
	}
	return t.s.agents[id].Clone(), nil
}

func (t *memTx) AgentByName(name string) (*domain.Agent, error) {
	if a := t.st.agentByName(name); a != nil {
		return a, nil
	}
	id, ok := t.s.byName[nameKey(name)]
	if !ok {
		return nil, nil
	}
	return t.Agent(id)
}

func (t *memTx) AgentCount() (int, error) {
	extra := t.st.newAgents(func(id string) bool {
		_, ok := t.s.agents[id]
		return ok
	})
	return len(t.s.agents) + extra, nil
}

func (t *memTx) ActiveMatchID(agentID string) (string, error) {
	if id, ok := t.st.active[agentID]; ok {
		return id, nil
	}
	return t.s.active[agentID], nil
}

func (t *memTx) QueueEntry(agentID string) (*domain.QueueEntry, error) {
	if e, ok := t.st.queue[agentID]; ok {
		if e == nil {
			return nil, nil
		}
		c := *e
		return &c, nil
	}
	e, ok := t.s.queue[agentID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (t *memTx) Queued(limit int) ([]domain.QueueEntry, error) {
	return t.st.mergeQueue(t.s.sortedQueue(), limit), nil
}

func (t *memTx) PutMatch(m *domain.Match)          { t.st.putMatch(m) }
func (t *memTx) PutAgent(a *domain.Agent)          { t.st.putAgent(a) }
func (t *memTx) SetActive(agentID, matchID string) { t.st.active[agentID] = matchID }
func (t *memTx) ClearActive(agentID string)        { t.st.active[agentID] = "" }
func (t *memTx) Enqueue(e domain.QueueEntry)       { t.st.enqueue(e) }
func (t *memTx) Dequeue(agentID string)            { t.st.queue[agentID] = nil }

// sortedQueue must be called with mu held.
func (s *MemoryStore) sortedQueue() []domain.QueueEntry {
	out := make([]domain.QueueEntry, 0, len(s.queue))
	for _, e := range s.queue {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

func (s *MemoryStore) LoadMatch(_ context.Context, id string) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[id].Clone(), nil
}

func (s *MemoryStore) LoadAgent(_ context.Context, id string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents[id].Clone(), nil
}

func (s *MemoryStore) AgentByName(_ context.Context, name string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[nameKey(name)]
	if !ok {
		return nil, nil
	}
	return s.agents[id].Clone(), nil
}

func (s *MemoryStore) AgentByKeyHash(_ context.Context, hash string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[strings.TrimSpace(hash)]
	if !ok {
		return nil, nil
	}
	return s.agents[id].Clone(), nil
}

func (s *MemoryStore) ActiveMatchID(_ context.Context, agentID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[agentID], nil
}

func (s *MemoryStore) TopAgents(_ context.Context, limit int) ([]*domain.Agent, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DueMatches(_ context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	due := make([]*domain.Match, 0)
	for _, m := range s.matches {
		if !m.Terminal() && m.PhaseDeadline.Before(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].PhaseDeadline.Before(due[j].PhaseDeadline) })
	if len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, m := range due {
		ids[i] = m.ID
	}
	return ids, nil
}

func (s *MemoryStore) QueueLength(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue), nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
