package match

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/liarslock/internal/commitment"
	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/pkg/matchdto"
)

func marshal(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestViewsFollowInformationHiding(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	ctx := context.Background()
	digestA := commitment.Hash(1, "secret-a")

	_, err := h.eng.Commit(ctx, id, "a", digestA)
	require.NoError(t, err)

	v, err := h.eng.View(ctx, id, "b")
	require.NoError(t, err)
	cv, ok := v.(matchdto.CommitView)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "player2", cv.YourSide)
	assert.Equal(t, "agent-a", cv.Player1Name)
	assert.Equal(t, "agent-b", cv.Player2Name)
	assert.Equal(t, 1200, cv.Player2Rating)
	assert.True(t, cv.Progress.Player1)
	assert.False(t, cv.Progress.Player2)
	assert.NotContains(t, marshal(t, v), digestA, "opponent commitment leaked")

	own, err := h.eng.View(ctx, id, "a")
	require.NoError(t, err)
	assert.Equal(t, digestA, own.(matchdto.CommitView).You.Commitment)

	_, err = h.eng.Commit(ctx, id, "b", commitment.Hash(0, "secret-b"))
	require.NoError(t, err)
	_, err = h.eng.Message(ctx, id, "a", "I picked zero", domain.IntPtr(0))
	require.NoError(t, err)

	v, err = h.eng.View(ctx, id, "b")
	require.NoError(t, err)
	mv, ok := v.(matchdto.MessageView)
	require.True(t, ok, "got %T", v)
	assert.Nil(t, mv.You.Message)
	assert.NotContains(t, marshal(t, v), "I picked zero", "message visible before both submitted")

	_, err = h.eng.Message(ctx, id, "b", "me too", domain.IntPtr(0))
	require.NoError(t, err)
	_, err = h.eng.Guess(ctx, id, "a", 1)
	require.NoError(t, err)

	v, err = h.eng.View(ctx, id, "b")
	require.NoError(t, err)
	gv, ok := v.(matchdto.GuessView)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "I picked zero", gv.Messages.Player1.Message)
	assert.Equal(t, 0, *gv.Messages.Player1.Claim)
	assert.Equal(t, "me too", gv.Messages.Player2.Message)
	assert.True(t, gv.Progress.Player1)
	assert.NotContains(t, marshal(t, v), `"guesses"`)

	_, err = h.eng.Guess(ctx, id, "b", 0)
	require.NoError(t, err)
	v, err = h.eng.View(ctx, id, "")
	require.NoError(t, err)
	rv, ok := v.(matchdto.RevealView)
	require.True(t, ok, "got %T", v)
	assert.Nil(t, rv.You, "spectator has no own block")
	assert.Equal(t, matchdto.Guesses{Player1: 1, Player2: 0}, rv.Guesses)
	body := marshal(t, v)
	assert.NotContains(t, body, "secret-a")
	assert.NotContains(t, body, `"choice"`)

	_, err = h.eng.Reveal(ctx, id, "a", 1, "secret-a")
	require.NoError(t, err)
	_, err = h.eng.Reveal(ctx, id, "b", 0, "secret-b")
	require.NoError(t, err)

	v, err = h.eng.View(ctx, id, "a")
	require.NoError(t, err)
	fv, ok := v.(matchdto.FinalView)
	require.True(t, ok, "got %T", v)
	// a read b (guess 1 vs choice 0 is wrong), b read a wrong too (guess 0 vs 1)
	assert.Equal(t, domain.Draw, fv.Winner)
	assert.Equal(t, 1, *fv.Player1.Choice)
	assert.Equal(t, "secret-b", fv.Player2.Nonce)
	assert.NotContains(t, marshal(t, v), commitment.Hash(0, "secret-b"))
}

func TestViewForfeitsExpiredMatch(t *testing.T) {
	h := newHarness(t)
	h.addAgent(t, "a", 1200)
	h.addAgent(t, "b", 1200)
	id := h.pair(t, "a", "b")
	h.clock.Advance(DefaultPhaseTimeout + time.Second)

	v, err := h.eng.View(context.Background(), id, "a")
	require.NoError(t, err)
	fv, ok := v.(matchdto.FinalView)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, string(domain.PhaseForfeit), fv.Phase)
	assert.Equal(t, string(domain.ResolutionTimeout), fv.Resolution)
}

func TestViewRoundTripsThroughDecode(t *testing.T) {
	m := &domain.Match{
		ID:      "m1",
		Player1: "a",
		Player2: "b",
		Phase:   domain.PhaseGuess,
		Player1Slot: domain.Slot{
			Commitment: strings.Repeat("a", 64),
			Message:    strPtr("hello"),
			Claim:      domain.IntPtr(1),
		},
		Player2Slot: domain.Slot{Message: strPtr("hi")},
	}
	r := Roster{Player1: &domain.Agent{ID: "a", Name: "Alice", Rating: 1250}}
	raw, err := json.Marshal(Project(m, "a", r))
	require.NoError(t, err)
	decoded, err := matchdto.DecodeView(raw)
	require.NoError(t, err)
	gv, ok := decoded.(*matchdto.GuessView)
	require.True(t, ok, "got %T", decoded)
	assert.Equal(t, "hi", gv.Messages.Player2.Message)
	assert.Equal(t, "player1", gv.YourSide)
	assert.Equal(t, "Alice", gv.Player1Name)
	assert.Equal(t, 1250, gv.Player1Rating)
	assert.Empty(t, gv.Player2Name)
}

func strPtr(s string) *string { return &s }
