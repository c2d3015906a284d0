// Package apiclient is a fasthttp client for the match service HTTP API.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/liarslock/pkg/matchdto"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	matchdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("liarslock api error: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

// Code returns the server error code of err, or "" when err is not an APIError.
func Code(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	apiKey  string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// As returns a client acting as the agent owning key. The connection pool
// is shared.
func (c *Client) As(key string) *Client {
	cp := *c
	cp.apiKey = strings.TrimSpace(key)
	return &cp
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, nil, true)
}

func (c *Client) Register(ctx context.Context, name string) (*matchdto.RegisterResponse, error) {
	var out matchdto.RegisterResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/register", matchdto.RegisterRequest{Name: name}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*matchdto.AgentProfile, error) {
	var out matchdto.AgentProfile
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/agent/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]matchdto.LeaderboardEntry, error) {
	var out []matchdto.LeaderboardEntry
	path := "/api/leaderboard?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FindMatch(ctx context.Context) (*matchdto.Ticket, error) {
	var out matchdto.Ticket
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/match/find", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LeaveQueue(ctx context.Context) (bool, error) {
	var out struct {
		Removed bool `json:"removed"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodDelete, "/api/match/queue", nil, &out, true); err != nil {
		return false, err
	}
	return out.Removed, nil
}

func (c *Client) View(ctx context.Context, matchID string) (matchdto.View, error) {
	raw, err := c.do(ctx, fasthttp.MethodGet, matchPath(matchID, ""), nil, true)
	if err != nil {
		return nil, err
	}
	return matchdto.DecodeView(raw)
}

func (c *Client) Commit(ctx context.Context, matchID, digest string) (*matchdto.SubmitResponse, error) {
	return c.submit(ctx, matchID, "commit", matchdto.CommitRequest{Commitment: digest})
}

func (c *Client) Message(ctx context.Context, matchID, text string, claim *int) (*matchdto.SubmitResponse, error) {
	return c.submit(ctx, matchID, "message", matchdto.MessageRequest{Message: text, Claim: claim})
}

func (c *Client) Guess(ctx context.Context, matchID string, guess int) (*matchdto.SubmitResponse, error) {
	return c.submit(ctx, matchID, "guess", matchdto.GuessRequest{Guess: &guess})
}

func (c *Client) Reveal(ctx context.Context, matchID string, choice int, nonce string) (*matchdto.SubmitResponse, error) {
	return c.submit(ctx, matchID, "reveal", matchdto.RevealRequest{Choice: &choice, Nonce: nonce})
}

func (c *Client) CheckTimeout(ctx context.Context, matchID string) (*matchdto.TimeoutResponse, error) {
	var out matchdto.TimeoutResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, matchPath(matchID, "timeout"), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// submit retries only when the server marks the failure retryable; a
// rejected submission leaves the match untouched.
func (c *Client) submit(ctx context.Context, matchID, action string, in any) (*matchdto.SubmitResponse, error) {
	var out matchdto.SubmitResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, matchPath(matchID, action), in, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func matchPath(matchID, action string) string {
	p := "/api/match/" + url.PathEscape(strings.TrimSpace(matchID))
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	raw, err := c.do(ctx, method, path, in, retry)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.apiKey)
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			apiErr := decodeError(status, resp.Body())
			if !shouldRetry(apiErr) {
				return nil, apiErr
			}
			lastErr = apiErr
		} else {
			return append([]byte(nil), resp.Body()...), nil
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func decodeError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	if err := json.Unmarshal(body, &e.DomainError); err != nil || e.Code == "" {
		e.Code = "http_" + strconv.Itoa(status)
		e.Message = truncate(string(body), 512)
	}
	return e
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetry(e *APIError) bool {
	if e.Retryable {
		return true
	}
	switch e.Status {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
