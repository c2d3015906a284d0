package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/store"
)

func TestQueueThenMatchIsSharedByBothAgents(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	ctx := context.Background()

	tk, err := h.eng.RequestMatch(ctx, "a")
	if err != nil || tk.Status != "queued" || tk.MatchID != "" {
		t.Fatalf("first request: %+v %v", tk, err)
	}
	tk, err = h.eng.RequestMatch(ctx, "b")
	if err != nil || tk.Status != "matched" || tk.OpponentID != "a" || tk.OpponentName != "agent-a" {
		t.Fatalf("second request: %+v %v", tk, err)
	}
	id := tk.MatchID

	for _, agent := range []string{"a", "b", "a"} {
		again, err := h.eng.RequestMatch(ctx, agent)
		if err != nil || again.Status != "matched" || again.MatchID != id {
			t.Fatalf("repeat request by %s: %+v %v", agent, again, err)
		}
	}
	m := h.match(t, id)
	if m.Player1 != "b" || m.Player2 != "a" || m.Phase != domain.PhaseCommit {
		t.Fatalf("unexpected match: %+v", m)
	}
	if !m.PhaseDeadline.Equal(h.clock.Now().Add(DefaultPhaseTimeout)) {
		t.Fatalf("deadline=%v", m.PhaseDeadline)
	}
	if n, _ := h.eng.QueueLength(ctx); n != 0 {
		t.Fatalf("queue length=%d", n)
	}
}

func TestRequestMatchNeverPairsWithSelf(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	ctx := context.Background()

	first, err := h.eng.RequestMatch(ctx, "a")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	h.clock.Advance(5 * time.Second)
	second, err := h.eng.RequestMatch(ctx, "a")
	if err != nil || second.Status != "queued" {
		t.Fatalf("second request: %+v %v", second, err)
	}
	if !second.QueuedAt.Equal(*first.QueuedAt) {
		t.Fatalf("join time moved: %v -> %v", first.QueuedAt, second.QueuedAt)
	}
	if n, _ := h.eng.QueueLength(ctx); n != 1 {
		t.Fatalf("queue length=%d", n)
	}
}

func TestRequestMatchUnknownAgent(t *testing.T) {
	h := newHarness(t)
	if _, err := h.eng.RequestMatch(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQueueIsFIFO(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"x", "y", "z"} {
		h.addAgent(t, id, 1200)
	}
	ctx := context.Background()
	base := h.clock.Now()
	err := h.st.Update(ctx, func(tx store.Tx) error {
		tx.Enqueue(domain.QueueEntry{AgentID: "x", JoinedAt: base.Add(2 * time.Second)})
		tx.Enqueue(domain.QueueEntry{AgentID: "y", JoinedAt: base.Add(1 * time.Second)})
		return nil
	})
	if err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	tk, err := h.eng.RequestMatch(ctx, "z")
	if err != nil || tk.OpponentID != "y" {
		t.Fatalf("expected oldest entry y, got %+v %v", tk, err)
	}
	if n, _ := h.eng.QueueLength(ctx); n != 1 {
		t.Fatalf("queue length=%d", n)
	}
}

func TestConcurrentRequestsNeverDoubleClaim(t *testing.T) {
	h := newHarness(t)
	ids := []string{"w", "p1", "p2", "p3"}
	for _, id := range ids {
		h.addAgent(t, id, 1200)
	}
	ctx := context.Background()
	if _, err := h.eng.RequestMatch(ctx, "w"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	for _, id := range ids[1:] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := h.eng.RequestMatch(ctx, id); err != nil && !errors.Is(err, ErrConflict) {
				t.Errorf("request %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	seen := map[string]string{}
	for _, id := range ids {
		mid, err := h.st.ActiveMatchID(ctx, id)
		if err != nil {
			t.Fatalf("active %s: %v", id, err)
		}
		if mid == "" {
			continue
		}
		m := h.match(t, mid)
		if m.SideOf(id) == domain.SideNone {
			t.Fatalf("index of %s points at foreign match %s", id, mid)
		}
		seen[id] = mid
	}
	// every match holds exactly two distinct agents, each in one match
	perMatch := map[string]int{}
	for _, mid := range seen {
		perMatch[mid]++
	}
	for mid, n := range perMatch {
		if n != 2 {
			t.Fatalf("match %s referenced by %d agents", mid, n)
		}
	}
	if len(perMatch) > 2 {
		t.Fatalf("too many matches: %v", perMatch)
	}
}

func TestLeaveQueue(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	ctx := context.Background()
	if _, err := h.eng.RequestMatch(ctx, "a"); err != nil {
		t.Fatalf("request: %v", err)
	}
	removed, err := h.eng.LeaveQueue(ctx, "a")
	if err != nil || !removed {
		t.Fatalf("leave: %v %v", removed, err)
	}
	removed, err = h.eng.LeaveQueue(ctx, "a")
	if err != nil || removed {
		t.Fatalf("second leave: %v %v", removed, err)
	}
	if n, _ := h.eng.QueueLength(ctx); n != 0 {
		t.Fatalf("queue length=%d", n)
	}
}

func TestFinishedMatchFreesPlayers(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	h.playRound(t, id, "a", "b",
		move{choice: 1, claim: 1, guess: 1, nonce: "na"},
		move{choice: 1, claim: 1, guess: 1, nonce: "nb"},
	)
	ctx := context.Background()
	for _, agent := range []string{"a", "b"} {
		if mid, _ := h.st.ActiveMatchID(ctx, agent); mid != "" {
			t.Fatalf("%s still bound to %s", agent, mid)
		}
	}
	tk, err := h.eng.RequestMatch(ctx, "a")
	if err != nil || tk.Status != "queued" {
		t.Fatalf("request after finish: %+v %v", tk, err)
	}
}

func TestRequestMatchForfeitsExpiredActiveMatch(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	h.clock.Advance(DefaultPhaseTimeout + time.Second)

	tk, err := h.eng.RequestMatch(context.Background(), "a")
	if err != nil || tk.Status != "queued" {
		t.Fatalf("request: %+v %v", tk, err)
	}
	if m := h.match(t, id); m.Phase != domain.PhaseForfeit || m.Winner != domain.Draw {
		t.Fatalf("old match not forfeited: %+v", m)
	}
}
