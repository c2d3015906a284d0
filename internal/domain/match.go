package domain

import (
	"strings"
	"time"
)

// Phase is the lifecycle position of a match. Phases only move forward.
type Phase string

const (
	PhaseCommit   Phase = "commit"
	PhaseMessage  Phase = "message"
	PhaseGuess    Phase = "guess"
	PhaseReveal   Phase = "reveal"
	PhaseComplete Phase = "complete"
	PhaseForfeit  Phase = "forfeit"
)

var phaseOrder = map[Phase]int{
	PhaseCommit:   0,
	PhaseMessage:  1,
	PhaseGuess:    2,
	PhaseReveal:   3,
	PhaseComplete: 4,
	PhaseForfeit:  4,
}

func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Terminal reports whether p is absorbing.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseForfeit }

// Order returns the position of p in the phase sequence, -1 when unknown.
func (p Phase) Order() int {
	if n, ok := phaseOrder[p]; ok {
		return n
	}
	return -1
}

// Next returns the phase entered once both players completed p.
func (p Phase) Next() Phase {
	switch p {
	case PhaseCommit:
		return PhaseMessage
	case PhaseMessage:
		return PhaseGuess
	case PhaseGuess:
		return PhaseReveal
	case PhaseReveal:
		return PhaseComplete
	default:
		return p
	}
}

// Side identifies a seat in a match.
type Side int

const (
	SideNone Side = iota
	SidePlayer1
	SidePlayer2
)

func (s Side) String() string {
	switch s {
	case SidePlayer1:
		return "player1"
	case SidePlayer2:
		return "player2"
	default:
		return ""
	}
}

// Other returns the opposing seat.
func (s Side) Other() Side {
	switch s {
	case SidePlayer1:
		return SidePlayer2
	case SidePlayer2:
		return SidePlayer1
	default:
		return SideNone
	}
}

// Draw is the winner value of a drawn match.
const Draw = "draw"

// Resolution records how a match reached its terminal phase.
type Resolution string

const (
	ResolutionPlayed    Resolution = "played"
	ResolutionIntegrity Resolution = "integrity"
	ResolutionTimeout   Resolution = "timeout"
)

// Slot holds one player's write-once submissions.
type Slot struct {
	Commitment string  `json:"commitment,omitempty"`
	Message    *string `json:"message,omitempty"`
	Claim      *int    `json:"claim,omitempty"`
	Guess      *int    `json:"guess,omitempty"`
	Choice     *int    `json:"choice,omitempty"`
	Nonce      string  `json:"nonce,omitempty"`
}

// Completed reports whether the slot holds the submission phase requires.
func (s *Slot) Completed(phase Phase) bool {
	if s == nil {
		return false
	}
	switch phase {
	case PhaseCommit:
		return s.Commitment != ""
	case PhaseMessage:
		return s.Message != nil
	case PhaseGuess:
		return s.Guess != nil
	case PhaseReveal:
		return s.Choice != nil
	default:
		return false
	}
}

// Match is the canonical stored match document.
type Match struct {
	ID            string    `json:"id"`
	Player1       string    `json:"player1"`
	Player2       string    `json:"player2"`
	Phase         Phase     `json:"phase"`
	PhaseDeadline time.Time `json:"phase_deadline"`

	Player1Slot Slot `json:"player1_slot"`
	Player2Slot Slot `json:"player2_slot"`

	Winner             string     `json:"winner,omitempty"`
	Resolution         Resolution `json:"resolution,omitempty"`
	Violator           string     `json:"violator,omitempty"`
	Player1RatingDelta *int       `json:"player1_rating_delta,omitempty"`
	Player2RatingDelta *int       `json:"player2_rating_delta,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SideOf returns the seat held by agentID.
func (m *Match) SideOf(agentID string) Side {
	if m == nil {
		return SideNone
	}
	id := strings.TrimSpace(agentID)
	switch {
	case id == "":
		return SideNone
	case id == m.Player1:
		return SidePlayer1
	case id == m.Player2:
		return SidePlayer2
	default:
		return SideNone
	}
}

// PlayerID returns the agent seated at side.
func (m *Match) PlayerID(side Side) string {
	switch side {
	case SidePlayer1:
		return m.Player1
	case SidePlayer2:
		return m.Player2
	default:
		return ""
	}
}

// Slot returns the mutable slot of side, nil for SideNone.
func (m *Match) Slot(side Side) *Slot {
	switch side {
	case SidePlayer1:
		return &m.Player1Slot
	case SidePlayer2:
		return &m.Player2Slot
	default:
		return nil
	}
}

func (m *Match) Terminal() bool { return m != nil && m.Phase.Terminal() }

// BothCompleted reports whether both players finished the current phase.
func (m *Match) BothCompleted() bool {
	return m.Player1Slot.Completed(m.Phase) && m.Player2Slot.Completed(m.Phase)
}

// RatingApplied is the one-time marker for the rating update.
func (m *Match) RatingApplied() bool {
	return m.Player1RatingDelta != nil && m.Player2RatingDelta != nil
}

// Expired reports whether the phase deadline has passed at now.
func (m *Match) Expired(now time.Time) bool {
	return !m.Terminal() && now.After(m.PhaseDeadline)
}

// Clone returns a deep copy.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Player1Slot = m.Player1Slot.clone()
	c.Player2Slot = m.Player2Slot.clone()
	c.Player1RatingDelta = cloneInt(m.Player1RatingDelta)
	c.Player2RatingDelta = cloneInt(m.Player2RatingDelta)
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (s Slot) clone() Slot {
	c := s
	if s.Message != nil {
		msg := *s.Message
		c.Message = &msg
	}
	c.Claim = cloneInt(s.Claim)
	c.Guess = cloneInt(s.Guess)
	c.Choice = cloneInt(s.Choice)
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr is a convenience for optional binary fields.
func IntPtr(v int) *int { return &v }

// QueueEntry is an agent waiting for an opponent.
type QueueEntry struct {
	AgentID  string    `json:"agent_id"`
	JoinedAt time.Time `json:"joined_at"`
}
