// Package sweeper periodically forfeits matches whose phase deadline
// passed without both players acting.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/match"
	"github.com/park285/liarslock/internal/metrics"
	"github.com/park285/liarslock/internal/obslog"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultBatch    = 100
)

// Timeouts is the part of the match engine the sweeper drives.
type Timeouts interface {
	Now() time.Time
	DueMatches(ctx context.Context, now time.Time, limit int) ([]string, error)
	CheckTimeout(ctx context.Context, matchID string) (*match.TimeoutResult, error)
}

type Stats struct {
	Checked   int
	Forfeited int
	Failed    int
}

type Sweeper struct {
	src      Timeouts
	interval time.Duration
	batch    int
	log      *zap.Logger
	sched    gocron.Scheduler
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatch(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func New(src Timeouts, opts ...Option) *Sweeper {
	s := &Sweeper{src: src, interval: DefaultInterval, batch: DefaultBatch, log: obslog.L()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepOnce forfeits every match that is due now. A failing match is
// logged and skipped; the rest of the sweep continues.
func (s *Sweeper) SweepOnce(ctx context.Context) (Stats, error) {
	var st Stats
	for {
		ids, err := s.src.DueMatches(ctx, s.src.Now(), s.batch)
		if err != nil {
			return st, err
		}
		progressed := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return st, err
			}
			st.Checked++
			res, err := s.src.CheckTimeout(ctx, id)
			if err != nil {
				st.Failed++
				metrics.SweepErrors.Inc()
				s.log.Warn("sweep_match_failed", zap.String("match_id", id), zap.Error(err))
				continue
			}
			if res.Forfeited {
				st.Forfeited++
				progressed++
				metrics.SweepForfeits.Inc()
				s.log.Info("sweep_forfeit",
					zap.String("match_id", id),
					zap.String("winner", res.Winner),
				)
			}
		}
		// a full batch may hide more due matches; stop when a pass made no progress
		if len(ids) < s.batch || progressed == 0 {
			return st, nil
		}
	}
}

// Start schedules SweepOnce every interval until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.sched != nil {
		return errors.New("sweeper already started")
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			st, err := s.SweepOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("sweep_failed", zap.Error(err))
				return
			}
			if st.Forfeited > 0 || st.Failed > 0 {
				s.log.Info("sweep_done",
					zap.Int("checked", st.Checked),
					zap.Int("forfeited", st.Forfeited),
					zap.Int("failed", st.Failed),
				)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	sched.Start()
	s.sched = sched
	s.log.Info("sweeper_started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.sched = nil
	return err
}
