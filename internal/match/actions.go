package match

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/commitment"
	"github.com/park285/liarslock/internal/domain"
	"github.com/park285/liarslock/internal/metrics"
	"github.com/park285/liarslock/internal/store"
)

// Action is one phase submission. Exactly one of CommitAction,
// MessageAction, GuessAction or RevealAction.
type Action interface {
	Phase() domain.Phase
	// validate checks the payload domain without looking at the match.
	validate() error
}

type CommitAction struct {
	Commitment string
}

type MessageAction struct {
	Text  string
	Claim *int
}

type GuessAction struct {
	Guess int
}

type RevealAction struct {
	Choice int
	Nonce  string
}

func (CommitAction) Phase() domain.Phase  { return domain.PhaseCommit }
func (MessageAction) Phase() domain.Phase { return domain.PhaseMessage }
func (GuessAction) Phase() domain.Phase   { return domain.PhaseGuess }
func (RevealAction) Phase() domain.Phase  { return domain.PhaseReveal }

func (a CommitAction) validate() error {
	if !commitment.Valid(a.Commitment) {
		return newError(KindInvalidInput, "commitment must be a %d character hex digest", commitment.DigestLen)
	}
	return nil
}

func (a MessageAction) validate() error {
	text := strings.TrimSpace(a.Text)
	if text == "" {
		return newError(KindInvalidInput, "message must not be empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLen {
		return newError(KindInvalidInput, "message is %d characters, limit is %d", n, MaxMessageLen)
	}
	if a.Claim != nil {
		return checkBinary("claim", *a.Claim)
	}
	return nil
}

func (a GuessAction) validate() error { return checkBinary("guess", a.Guess) }

func (a RevealAction) validate() error {
	if err := checkBinary("choice", a.Choice); err != nil {
		return err
	}
	if a.Nonce == "" {
		return newError(KindInvalidInput, "nonce must not be empty")
	}
	return nil
}

func checkBinary(field string, v int) error {
	if v != 0 && v != 1 {
		return newError(KindInvalidInput, "%s must be 0 or 1, got %d", field, v)
	}
	return nil
}

// SubmitResult reports the match state right after a submission.
type SubmitResult struct {
	Phase    domain.Phase
	Advanced bool
	Winner   string
}

func (e *Engine) Commit(ctx context.Context, matchID, agentID, digest string) (*SubmitResult, error) {
	return e.Submit(ctx, matchID, agentID, CommitAction{Commitment: digest})
}

func (e *Engine) Message(ctx context.Context, matchID, agentID, text string, claim *int) (*SubmitResult, error) {
	return e.Submit(ctx, matchID, agentID, MessageAction{Text: text, Claim: claim})
}

func (e *Engine) Guess(ctx context.Context, matchID, agentID string, guess int) (*SubmitResult, error) {
	return e.Submit(ctx, matchID, agentID, GuessAction{Guess: guess})
}

func (e *Engine) Reveal(ctx context.Context, matchID, agentID string, choice int, nonce string) (*SubmitResult, error) {
	return e.Submit(ctx, matchID, agentID, RevealAction{Choice: choice, Nonce: nonce})
}

// Submit records one phase submission.
//
// A submission after the phase deadline runs the forfeit path and returns
// PhaseExpired. A reveal that does not match the stored commitment resolves
// the match against the revealer and returns IntegrityViolation. In both
// cases the resolution is committed before the error is returned.
func (e *Engine) Submit(ctx context.Context, matchID, agentID string, a Action) (*SubmitResult, error) {
	a = deref(a)
	if a == nil {
		return nil, newError(KindInvalidInput, "missing action")
	}
	matchID, agentID = strings.TrimSpace(matchID), strings.TrimSpace(agentID)

	var (
		res      SubmitResult
		rejected error
		done     *domain.Match
	)
	err := e.store.Update(ctx, func(tx store.Tx) error {
		res, rejected, done = SubmitResult{}, nil, nil
		now := e.now()

		m, err := loadMatch(tx, matchID)
		if err != nil {
			return err
		}
		side := m.SideOf(agentID)
		if side == domain.SideNone {
			return newError(KindNotAParticipant, "agent %s is not playing match %s", agentID, matchID)
		}
		if m.Terminal() {
			return newError(KindInvalidPhase, "match is already %s", m.Phase)
		}
		if m.Expired(now) {
			if err := e.forfeit(tx, m, now); err != nil {
				return err
			}
			tx.PutMatch(m)
			res = SubmitResult{Phase: m.Phase, Winner: m.Winner}
			done = m
			rejected = newError(KindPhaseExpired, "deadline for the %s phase passed", a.Phase())
			return nil
		}
		if a.Phase() != m.Phase {
			if a.Phase().Order() < m.Phase.Order() {
				return newError(KindInvalidPhase, "the %s phase is over, match is in the %s phase", a.Phase(), m.Phase)
			}
			return newError(KindInvalidPhase, "cannot %s during the %s phase", a.Phase(), m.Phase)
		}
		if err := a.validate(); err != nil {
			return err
		}
		slot := m.Slot(side)
		if slot.Completed(m.Phase) {
			return newError(KindAlreadySubmitted, "%s already submitted for the %s phase", side, m.Phase)
		}

		if rv, ok := a.(RevealAction); ok && !commitment.Verify(slot.Commitment, rv.Choice, rv.Nonce) {
			if err := e.resolveIntegrity(tx, m, side, now); err != nil {
				return err
			}
			tx.PutMatch(m)
			res = SubmitResult{Phase: m.Phase, Winner: m.Winner}
			done = m
			rejected = newError(KindIntegrityViolation, "reveal does not match the commitment of %s", side)
			return nil
		}
		record(slot, a)
		m.UpdatedAt = now

		if m.BothCompleted() {
			res.Advanced = true
			if m.Phase == domain.PhaseReveal {
				if err := e.resolvePlayed(tx, m, now); err != nil {
					return err
				}
				done = m
			} else {
				m.Phase = m.Phase.Next()
				m.PhaseDeadline = now.Add(e.timeout)
			}
		}
		tx.PutMatch(m)
		res.Phase, res.Winner = m.Phase, m.Winner
		return nil
	})
	if err != nil {
		err = translate(err)
		e.countSubmission(a, err)
		return nil, err
	}
	e.countSubmission(a, rejected)
	if done != nil {
		e.finished(ctx, done)
	}
	if rejected != nil {
		e.log.Info("submission_rejected",
			zap.String("match_id", matchID),
			zap.String("agent_id", agentID),
			zap.String("phase", string(a.Phase())),
			zap.Error(rejected),
		)
		return &res, rejected
	}
	return &res, nil
}

// deref accepts pointer actions; a nil pointer becomes a nil Action.
func deref(a Action) Action {
	switch v := a.(type) {
	case *CommitAction:
		if v == nil {
			return nil
		}
		return *v
	case *MessageAction:
		if v == nil {
			return nil
		}
		return *v
	case *GuessAction:
		if v == nil {
			return nil
		}
		return *v
	case *RevealAction:
		if v == nil {
			return nil
		}
		return *v
	}
	return a
}

// record writes a validated payload into its write-once slot.
func record(slot *domain.Slot, a Action) {
	switch v := a.(type) {
	case CommitAction:
		slot.Commitment = commitment.Normalize(v.Commitment)
	case MessageAction:
		text := strings.TrimSpace(v.Text)
		slot.Message = &text
		if v.Claim != nil {
			slot.Claim = domain.IntPtr(*v.Claim)
		}
	case GuessAction:
		slot.Guess = domain.IntPtr(v.Guess)
	case RevealAction:
		slot.Choice = domain.IntPtr(v.Choice)
		slot.Nonce = v.Nonce
	}
}

func (e *Engine) countSubmission(a Action, err error) {
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.Submissions.WithLabelValues(string(a.Phase()), result).Inc()
}
