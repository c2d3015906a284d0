// Package match is the match lifecycle engine: matchmaking, the
// commit/message/guess/reveal state machine, deadline forfeits and the
// one-time rating settlement. Every mutation is one store transaction that
// re-reads the documents it touches before writing.
package match

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/metrics"
	"github.com/park285/liarslock/internal/obslog"
	"github.com/park285/liarslock/internal/store"
)

const (
	DefaultPhaseTimeout = 60 * time.Second
	MaxMessageLen       = 500
	// queueScan bounds how many waiting entries one pairing attempt reads.
	queueScan = 16
)

// ResultSink receives every match once it reaches a terminal phase.
type ResultSink interface {
	SaveResult(ctx context.Context, m *domain.Match) error
}

type Engine struct {
	store   store.Store
	timeout time.Duration
	now     func() time.Time
	newID   func() string
	sink    ResultSink
	log     *zap.Logger
}

type Option func(*Engine)

func WithPhaseTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock replaces time.Now, mainly for deadline tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithResultSink wires the archive of finished matches.
func WithResultSink(s ResultSink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEngine(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		timeout: DefaultPhaseTimeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = obslog.L()
	}
	return e
}

// PhaseTimeout is the time each phase stays open.
func (e *Engine) PhaseTimeout() time.Duration { return e.timeout }

// Get returns the stored match without any projection.
func (e *Engine) Get(ctx context.Context, matchID string) (*domain.Match, error) {
	m, err := e.store.LoadMatch(ctx, strings.TrimSpace(matchID))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, newError(KindNotFound, "match %s", matchID)
	}
	return m, nil
}

// loadMatch reads a match inside tx, mapping absence to NotFound.
func loadMatch(tx store.Tx, matchID string) (*domain.Match, error) {
	m, err := tx.Match(matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, newError(KindNotFound, "match %s", matchID)
	}
	return m, nil
}

// finished runs once per transaction that moved a match into a terminal
// phase, after that transaction committed.
func (e *Engine) finished(ctx context.Context, m *domain.Match) {
	if m == nil {
		return
	}
	metrics.MatchesResolved.WithLabelValues(string(m.Phase), string(m.Resolution)).Inc()
	e.log.Info("match_resolved",
		zap.String("match_id", m.ID),
		zap.String("phase", string(m.Phase)),
		zap.String("resolution", string(m.Resolution)),
		zap.String("winner", m.Winner),
		zap.Intp("player1_delta", m.Player1RatingDelta),
		zap.Intp("player2_delta", m.Player2RatingDelta),
	)
	if e.sink == nil {
		return
	}
	if err := e.sink.SaveResult(ctx, m); err != nil {
		e.log.Warn("match_archive_failed", zap.String("match_id", m.ID), zap.Error(err))
	}
}
