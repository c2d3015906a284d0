package apiclient

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/liarslock/internal/agent"
	"github.com/park285/liarslock/internal/api"
	"github.com/park285/liarslock/internal/match"
	"github.com/park285/liarslock/internal/rating"
	"github.com/park285/liarslock/internal/store"
	"github.com/park285/liarslock/pkg/matchdto"
)

func serveAPI(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	st := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	srv := api.New(api.Deps{
		Engine:   match.NewEngine(st),
		Registry: agent.NewRegistry(st),
	})
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.App().Listener(ln) }()
	t.Cleanup(func() {
		_ = srv.App().Shutdown()
		_ = st.Close()
	})
	return NewClient("http://liarslock.test", WithDial(func(string) (net.Conn, error) { return ln.Dial() }))
}

func serveRaw(t *testing.T, h fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	s := &fasthttp.Server{Handler: h}
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.Shutdown() })
	return NewClient("http://raw.test", WithDial(func(string) (net.Conn, error) { return ln.Dial() }))
}

func TestSmokeRound(t *testing.T) {
	c := serveAPI(t)
	ctx := context.Background()
	require.NoError(t, c.Health(ctx))

	res, err := Smoke(ctx, c, "liar", "honest")
	require.NoError(t, err)
	assert.Equal(t, res.Liar.ID, res.Final.Winner)
	assert.Equal(t, "complete", res.Final.Phase)
	assert.Equal(t, rating.InitialRating(0)+16, res.Liar.Rating)
	assert.Equal(t, rating.InitialRating(1)-16, res.Honest.Rating)
	require.NotNil(t, res.Final.Player1.Choice)
	assert.Equal(t, 1, *res.Final.Player1.Choice)

	board, err := c.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "liar", board[0].Name)
}

func TestDomainErrorsSurface(t *testing.T) {
	c := serveAPI(t)
	ctx := context.Background()

	_, err := c.Me(ctx)
	assert.Equal(t, "unauthorized", Code(err))

	reg, err := c.Register(ctx, "solo")
	require.NoError(t, err)
	solo := c.As(reg.APIKey)

	_, err = solo.Commit(ctx, "missing", "00")
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 404, ae.Status)
	assert.Equal(t, string(match.KindNotFound), ae.Code)

	tk, err := solo.FindMatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, matchdto.TicketQueued, tk.Status)
	removed, err := solo.LeaveQueue(ctx)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := serveRaw(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"queued"}`)
	})
	c.retryMax = 3

	tk, err := c.FindMatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "queued", tk.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := serveRaw(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusConflict)
		ctx.SetBodyString(`{"code":"already_submitted","message":"you already submitted"}`)
	})
	_, err := c.Guess(context.Background(), "m1", 1)
	assert.Equal(t, "already_submitted", Code(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetriesRetryableConflicts(t *testing.T) {
	var calls atomic.Int32
	c := serveRaw(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusConflict)
			ctx.SetBodyString(`{"code":"conflict","retryable":true}`)
			return
		}
		ctx.SetBodyString(`{"success":true,"phase":"guess","advanced":false}`)
	})
	r, err := c.Guess(context.Background(), "m1", 1)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNonJSONErrorBody(t *testing.T) {
	c := serveRaw(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		ctx.SetBodyString("upstream down")
	})
	c.retryMax = 1
	err := c.Health(context.Background())
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "http_502", ae.Code)
	assert.Equal(t, "upstream down", ae.Message)
}

func TestDeadlineFollowsContext(t *testing.T) {
	c := NewClient("http://x", WithTimeout(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.WithinDuration(t, time.Now().Add(time.Second), c.computeDeadline(ctx), 500*time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, backoffDuration(2))
	assert.Equal(t, "/api/match/a%2Fb/reveal", matchPath("a/b", "reveal"))
}
