package store

import (
	"sort"
	"strings"

	"github.com/park285/liarslock/internal/domain"
)

// staging buffers the writes of one transaction attempt so later reads in
// the same attempt observe them.
type staging struct {
	matches map[string]*domain.Match
	agents  map[string]*domain.Agent
	active  map[string]string // "" marks a cleared index entry
	queue   map[string]*domain.QueueEntry
}

func newStaging() *staging {
	return &staging{
		matches: make(map[string]*domain.Match),
		agents:  make(map[string]*domain.Agent),
		active:  make(map[string]string),
		queue:   make(map[string]*domain.QueueEntry),
	}
}

func (s *staging) empty() bool {
	return len(s.matches) == 0 && len(s.agents) == 0 && len(s.active) == 0 && len(s.queue) == 0
}

func (s *staging) putMatch(m *domain.Match) {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return
	}
	s.matches[m.ID] = m.Clone()
}

func (s *staging) putAgent(a *domain.Agent) {
	if a == nil || strings.TrimSpace(a.ID) == "" {
		return
	}
	s.agents[a.ID] = a.Clone()
}

func (s *staging) agentByName(name string) *domain.Agent {
	for _, a := range s.agents {
		if strings.EqualFold(a.Name, name) {
			return a.Clone()
		}
	}
	return nil
}

// newAgents counts staged agents not yet known to the store.
func (s *staging) newAgents(known func(id string) bool) int {
	n := 0
	for id := range s.agents {
		if !known(id) {
			n++
		}
	}
	return n
}

func (s *staging) enqueue(e domain.QueueEntry) {
	if strings.TrimSpace(e.AgentID) == "" {
		return
	}
	if cur, ok := s.queue[e.AgentID]; ok && cur != nil {
		return
	}
	entry := e
	s.queue[e.AgentID] = &entry
}

// mergeQueue applies staged queue writes to stored entries (oldest first).
func (s *staging) mergeQueue(stored []domain.QueueEntry, limit int) []domain.QueueEntry {
	out := make([]domain.QueueEntry, 0, len(stored)+len(s.queue))
	seen := make(map[string]bool, len(stored))
	for _, e := range stored {
		seen[e.AgentID] = true
		if staged, ok := s.queue[e.AgentID]; ok && staged == nil {
			continue
		}
		out = append(out, e)
	}
	for id, e := range s.queue {
		if e == nil || seen[id] {
			continue
		}
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func nameKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
