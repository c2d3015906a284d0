package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/liarslock/internal/commitment"
	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/rating"
	"github.com/park285/liarslock/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	eng   *Engine
	st    store.Store
	clock *testClock
	sink  *recordingSink
}

type recordingSink struct {
	mu    sync.Mutex
	saved []*domain.Match
}

func (s *recordingSink) SaveResult(_ context.Context, m *domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, m.Clone())
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStore(rdb)
	t.Cleanup(func() { _ = st.Close() })
	return newHarnessWith(t, st)
}

func newHarnessWith(t *testing.T, st store.Store) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	var seq atomic.Int64
	sink := &recordingSink{}
	eng := NewEngine(st,
		WithClock(clock.Now),
		WithResultSink(sink),
		WithIDGenerator(func() string { return fmt.Sprintf("m%d", seq.Add(1)) }),
	)
	return &harness{eng: eng, st: st, clock: clock, sink: sink}
}

func (h *harness) addAgent(t *testing.T, id string, elo int) {
	t.Helper()
	err := h.st.Update(context.Background(), func(tx store.Tx) error {
		tx.PutAgent(&domain.Agent{ID: id, Name: "agent-" + id, Rating: elo, CreatedAt: h.clock.Now()})
		return nil
	})
	if err != nil {
		t.Fatalf("add agent %s: %v", id, err)
	}
}

func (h *harness) agent(t *testing.T, id string) *domain.Agent {
	t.Helper()
	a, err := h.st.LoadAgent(context.Background(), id)
	if err != nil || a == nil {
		t.Fatalf("load agent %s: %v", id, err)
	}
	return a
}

func (h *harness) match(t *testing.T, id string) *domain.Match {
	t.Helper()
	m, err := h.eng.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get match %s: %v", id, err)
	}
	return m
}

// pair creates a match with p1 as player1 and p2 as player2.
func (h *harness) pair(t *testing.T, p1, p2 string) string {
	t.Helper()
	ctx := context.Background()
	if tk, err := h.eng.RequestMatch(ctx, p2); err != nil || tk.Status != "queued" {
		t.Fatalf("request %s: %+v %v", p2, tk, err)
	}
	tk, err := h.eng.RequestMatch(ctx, p1)
	if err != nil || tk.Status != "matched" {
		t.Fatalf("request %s: %+v %v", p1, tk, err)
	}
	return tk.MatchID
}

// move describes one player's full round.
type move struct {
	choice int
	claim  int
	guess  int
	nonce  string
}

func (h *harness) playRound(t *testing.T, matchID, p1, p2 string, m1, m2 move) {
	t.Helper()
	ctx := context.Background()
	must := func(_ *SubmitResult, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	must(h.eng.Commit(ctx, matchID, p1, commitment.Hash(m1.choice, m1.nonce)))
	must(h.eng.Commit(ctx, matchID, p2, commitment.Hash(m2.choice, m2.nonce)))
	must(h.eng.Message(ctx, matchID, p1, "trust me", domain.IntPtr(m1.claim)))
	must(h.eng.Message(ctx, matchID, p2, "no, trust me", domain.IntPtr(m2.claim)))
	must(h.eng.Guess(ctx, matchID, p1, m1.guess))
	must(h.eng.Guess(ctx, matchID, p2, m2.guess))
	must(h.eng.Reveal(ctx, matchID, p1, m1.choice, m1.nonce))
	must(h.eng.Reveal(ctx, matchID, p2, m2.choice, m2.nonce))
}

func TestDrawWhenBothReadEachOther(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")

	h.playRound(t, id, "a", "b",
		move{choice: 1, claim: 1, guess: 1, nonce: "na"},
		move{choice: 1, claim: 1, guess: 1, nonce: "nb"},
	)

	m := h.match(t, id)
	if m.Phase != domain.PhaseComplete || m.Winner != domain.Draw {
		t.Fatalf("phase=%s winner=%q", m.Phase, m.Winner)
	}
	if *m.Player1RatingDelta != 0 || *m.Player2RatingDelta != 0 {
		t.Fatalf("deltas %d/%d", *m.Player1RatingDelta, *m.Player2RatingDelta)
	}
	if m.CompletedAt == nil || m.Resolution != domain.ResolutionPlayed {
		t.Fatalf("completedAt=%v resolution=%s", m.CompletedAt, m.Resolution)
	}
	a := h.agent(t, "a")
	if a.Rating != 1200 || a.Draws != 1 || a.GamesPlayed != 1 {
		t.Fatalf("agent a after draw: %+v", a)
	}
	if h.sink.count() != 1 {
		t.Fatalf("archived %d results", h.sink.count())
	}
}

func TestLiarWinsWhenOnlyTheyReadCorrectly(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")

	h.playRound(t, id, "a", "b",
		move{choice: 1, claim: 0, guess: 0, nonce: "na"},
		move{choice: 0, claim: 0, guess: 0, nonce: "nb"},
	)

	m := h.match(t, id)
	if m.Winner != "a" {
		t.Fatalf("winner=%q", m.Winner)
	}
	d1, d2 := *m.Player1RatingDelta, *m.Player2RatingDelta
	if d1 != 16 || d2 != -16 {
		t.Fatalf("deltas %d/%d", d1, d2)
	}
	if a := h.agent(t, "a"); a.Rating != 1216 || a.Wins != 1 {
		t.Fatalf("winner record: %+v", a)
	}
	if b := h.agent(t, "b"); b.Rating != 1184 || b.Losses != 1 {
		t.Fatalf("loser record: %+v", b)
	}
}

func TestBothMisreadIsDraw(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1300)
	h.addAgent(t, "b", 1100)
	id := h.pair(t, "a", "b")

	h.playRound(t, id, "a", "b",
		move{choice: 0, claim: 1, guess: 1, nonce: "na"},
		move{choice: 0, claim: 1, guess: 1, nonce: "nb"},
	)
	m := h.match(t, id)
	if m.Winner != domain.Draw {
		t.Fatalf("winner=%q", m.Winner)
	}
	// the favourite loses points on a draw
	if *m.Player1RatingDelta >= 0 || *m.Player1RatingDelta != -*m.Player2RatingDelta {
		t.Fatalf("deltas %d/%d", *m.Player1RatingDelta, *m.Player2RatingDelta)
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		c1, g1, c2, g2 int
		want           string
	}{
		{1, 1, 1, 1, "draw"},
		{1, 0, 0, 0, "p1"},
		{0, 1, 1, 0, "draw"},
		{0, 0, 1, 0, "p2"},
		{1, 1, 0, 0, "draw"},
	}
	for _, c := range cases {
		got := decide(c.c1, c.g1, c.c2, c.g2)
		var name string
		switch got {
		case rating.Player1Won:
			name = "p1"
		case rating.Player2Won:
			name = "p2"
		default:
			name = "draw"
		}
		if name != c.want {
			t.Fatalf("decide(%d,%d,%d,%d)=%s want %s", c.c1, c.g1, c.c2, c.g2, name, c.want)
		}
	}
}

func TestIntegrityViolationLosesForRevealer(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()

	steps := []func() (*SubmitResult, error){
		func() (*SubmitResult, error) { return h.eng.Commit(ctx, id, "a", commitment.Hash(1, "nonceX")) },
		func() (*SubmitResult, error) { return h.eng.Commit(ctx, id, "b", commitment.Hash(0, "nb")) },
		func() (*SubmitResult, error) { return h.eng.Message(ctx, id, "a", "hi", nil) },
		func() (*SubmitResult, error) { return h.eng.Message(ctx, id, "b", "hello", nil) },
		func() (*SubmitResult, error) { return h.eng.Guess(ctx, id, "a", 0) },
		func() (*SubmitResult, error) { return h.eng.Guess(ctx, id, "b", 1) },
	}
	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	res, err := h.eng.Reveal(ctx, id, "a", 0, "nonceX")
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("expected integrity violation, got %v", err)
	}
	if res == nil || res.Phase != domain.PhaseComplete || res.Winner != "b" {
		t.Fatalf("unexpected result: %+v", res)
	}
	m := h.match(t, id)
	if m.Phase != domain.PhaseComplete || m.Winner != "b" || m.Violator != "a" || m.Resolution != domain.ResolutionIntegrity {
		t.Fatalf("match after violation: %+v", m)
	}
	if *m.Player1RatingDelta != -16 || *m.Player2RatingDelta != 16 {
		t.Fatalf("deltas %d/%d", *m.Player1RatingDelta, *m.Player2RatingDelta)
	}
	if _, err := h.eng.Reveal(ctx, id, "b", 0, "nb"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("reveal after terminal: %v", err)
	}
	if h.agent(t, "b").Wins != 1 {
		t.Fatalf("rating not applied to winner")
	}
}

func TestSecondSubmissionIsRejected(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()

	first := commitment.Hash(1, "one")
	if _, err := h.eng.Commit(ctx, id, "a", first); err != nil {
		t.Fatalf("commit: %v", err)
	}
	before := h.match(t, id)
	if _, err := h.eng.Commit(ctx, id, "a", commitment.Hash(0, "two")); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
	after := h.match(t, id)
	if after.Player1Slot.Commitment != first || !after.UpdatedAt.Equal(before.UpdatedAt) || after.Phase != domain.PhaseCommit {
		t.Fatalf("state changed: %+v", after)
	}
}

func TestSubmissionValidation(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	h.addAgent(t, "c", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()
	long := make([]byte, MaxMessageLen+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name    string
		matchID string
		agent   string
		action  Action
		want    error
	}{
		{"unknown match", "nope", "a", GuessAction{Guess: 1}, ErrNotFound},
		{"outsider", id, "c", CommitAction{Commitment: commitment.Hash(1, "n")}, ErrNotAParticipant},
		{"wrong phase", id, "a", GuessAction{Guess: 1}, ErrInvalidPhase},
		{"bad digest", id, "a", CommitAction{Commitment: "abc"}, ErrInvalidInput},
		{"nil action", id, "a", nil, ErrInvalidInput},
	}
	for _, c := range cases {
		if _, err := h.eng.Submit(ctx, c.matchID, c.agent, c.action); !errors.Is(err, c.want) {
			t.Fatalf("%s: got %v want %v", c.name, err, c.want)
		}
	}

	_, _ = h.eng.Commit(ctx, id, "a", commitment.Hash(1, "na"))
	_, _ = h.eng.Commit(ctx, id, "b", commitment.Hash(1, "nb"))
	msgCases := []struct {
		name   string
		action Action
	}{
		{"empty message", MessageAction{Text: "   "}},
		{"oversize message", MessageAction{Text: string(long)}},
		{"claim out of domain", MessageAction{Text: "hi", Claim: domain.IntPtr(2)}},
	}
	for _, c := range msgCases {
		if _, err := h.eng.Submit(ctx, id, "a", c.action); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: got %v", c.name, err)
		}
	}
	if m := h.match(t, id); m.Player1Slot.Message != nil {
		t.Fatalf("rejected message was stored")
	}
	// pointer actions are accepted
	if _, err := h.eng.Submit(ctx, id, "a", &MessageAction{Text: "ok"}); err != nil {
		t.Fatalf("pointer action: %v", err)
	}
}

func TestGuessOutOfDomain(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()
	_, _ = h.eng.Commit(ctx, id, "a", commitment.Hash(1, "na"))
	_, _ = h.eng.Commit(ctx, id, "b", commitment.Hash(1, "nb"))
	_, _ = h.eng.Message(ctx, id, "a", "x", nil)
	_, _ = h.eng.Message(ctx, id, "b", "y", nil)
	if _, err := h.eng.Guess(ctx, id, "a", -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := h.eng.Guess(ctx, id, "a", 1); err != nil {
		t.Fatalf("guess: %v", err)
	}
	_, _ = h.eng.Guess(ctx, id, "b", 1)
	if _, err := h.eng.Reveal(ctx, id, "a", 1, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty nonce: %v", err)
	}
}

func TestLongNonceRevealsNormally(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")

	h.playRound(t, id, "a", "b",
		move{choice: 1, claim: 0, guess: 0, nonce: strings.Repeat("n", 200)},
		move{choice: 0, claim: 0, guess: 0, nonce: "nb"},
	)

	m := h.match(t, id)
	if m.Phase != domain.PhaseComplete || m.Resolution != domain.ResolutionPlayed || m.Winner != "a" {
		t.Fatalf("phase=%s resolution=%s winner=%q", m.Phase, m.Resolution, m.Winner)
	}
}

func TestSubmissionForPastPhase(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()
	_, _ = h.eng.Commit(ctx, id, "a", commitment.Hash(1, "na"))
	_, _ = h.eng.Commit(ctx, id, "b", commitment.Hash(1, "nb"))

	_, err := h.eng.Commit(ctx, id, "a", commitment.Hash(0, "late"))
	if !errors.Is(err, ErrInvalidPhase) || !strings.Contains(err.Error(), "commit phase is over") {
		t.Fatalf("late commit: %v", err)
	}
	_, err = h.eng.Reveal(ctx, id, "a", 1, "na")
	if !errors.Is(err, ErrInvalidPhase) || strings.Contains(err.Error(), "is over") {
		t.Fatalf("early reveal: %v", err)
	}
}

func TestPhaseAdvanceResetsDeadline(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()

	h.clock.Advance(30 * time.Second)
	res, err := h.eng.Commit(ctx, id, "a", commitment.Hash(1, "na"))
	if err != nil || res.Advanced {
		t.Fatalf("first commit: %+v %v", res, err)
	}
	h.clock.Advance(20 * time.Second)
	res, err = h.eng.Commit(ctx, id, "b", commitment.Hash(1, "nb"))
	if err != nil || !res.Advanced || res.Phase != domain.PhaseMessage {
		t.Fatalf("second commit: %+v %v", res, err)
	}
	m := h.match(t, id)
	if want := h.clock.Now().Add(DefaultPhaseTimeout); !m.PhaseDeadline.Equal(want) {
		t.Fatalf("deadline=%v want %v", m.PhaseDeadline, want)
	}
}

func TestConcurrentSubmissionsAdvanceOnce(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, p := range []string{"a", "b"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := h.eng.Commit(ctx, id, p, commitment.Hash(1, "n"+p))
			errs <- err
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	m := h.match(t, id)
	if m.Phase != domain.PhaseMessage {
		t.Fatalf("phase=%s", m.Phase)
	}
	if m.Player1Slot.Commitment == "" || m.Player2Slot.Commitment == "" {
		t.Fatalf("lost a commitment: %+v", m)
	}
}

func TestMemoryStoreRunsFullRound(t *testing.T) {
	h := newHarnessWith(t, store.NewMemoryStore())
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	h.playRound(t, id, "a", "b",
		move{choice: 0, claim: 1, guess: 1, nonce: "na"},
		move{choice: 1, claim: 1, guess: 1, nonce: "nb"},
	)
	if m := h.match(t, id); m.Winner != "a" {
		t.Fatalf("winner=%q", m.Winner)
	}
}
