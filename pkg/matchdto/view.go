package matchdto

import (
	"encoding/json"
	"fmt"
	"time"
)

// View is the phase-specific projection of a match for one viewer. The
// concrete type depends on the phase: CommitView, MessageView, GuessView,
// RevealView or FinalView. Kind carries the same discriminator on the
// wire.
type View interface {
	ViewKind() string
}

const (
	KindCommit  = "commit"
	KindMessage = "message"
	KindGuess   = "guess"
	KindReveal  = "reveal"
	KindFinal   = "final"
)

// Header is shared by every view.
type Header struct {
	Kind          string    `json:"kind"`
	MatchID       string    `json:"match_id"`
	Phase         string    `json:"phase"`
	PhaseDeadline time.Time `json:"phase_deadline"`
	Player1       string    `json:"player1"`
	Player2       string    `json:"player2"`
	Player1Name   string    `json:"player1_name,omitempty"`
	Player2Name   string    `json:"player2_name,omitempty"`
	// Player ratings are the current Elo, not the rating at match start.
	Player1Rating int `json:"player1_rating"`
	Player2Rating int `json:"player2_rating"`
	// YourSide is "player1", "player2" or empty for spectators.
	YourSide  string    `json:"your_side,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Progress tells which players completed the current phase.
type Progress struct {
	Player1 bool `json:"player1"`
	Player2 bool `json:"player2"`
}

// Own echoes the viewer's own submissions.
type Own struct {
	Commitment string  `json:"commitment,omitempty"`
	Message    *string `json:"message,omitempty"`
	Claim      *int    `json:"claim,omitempty"`
	Guess      *int    `json:"guess,omitempty"`
	Choice     *int    `json:"choice,omitempty"`
}

// Said is what one player disclosed in the message phase.
type Said struct {
	Message string `json:"message"`
	Claim   *int   `json:"claim,omitempty"`
}

type Exchange struct {
	Player1 Said `json:"player1"`
	Player2 Said `json:"player2"`
}

type Guesses struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

type CommitView struct {
	Header
	Progress Progress `json:"progress"`
	You      *Own     `json:"you,omitempty"`
}

type MessageView struct {
	Header
	Progress Progress `json:"progress"`
	You      *Own     `json:"you,omitempty"`
}

type GuessView struct {
	Header
	Progress Progress `json:"progress"`
	You      *Own     `json:"you,omitempty"`
	Messages Exchange `json:"messages"`
}

type RevealView struct {
	Header
	Progress Progress `json:"progress"`
	You      *Own     `json:"you,omitempty"`
	Messages Exchange `json:"messages"`
	Guesses  Guesses  `json:"guesses"`
}

// Disclosure is everything a player submitted, shown once the match is over.
type Disclosure struct {
	Message     *string `json:"message,omitempty"`
	Claim       *int    `json:"claim,omitempty"`
	Guess       *int    `json:"guess,omitempty"`
	Choice      *int    `json:"choice,omitempty"`
	Nonce       string  `json:"nonce,omitempty"`
	RatingDelta int     `json:"rating_delta"`
}

type FinalView struct {
	Header
	Winner      string     `json:"winner"`
	Resolution  string     `json:"resolution"`
	Violator    string     `json:"violator,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	You         *Own       `json:"you,omitempty"`
	Player1     Disclosure `json:"player1_result"`
	Player2     Disclosure `json:"player2_result"`
}

func (CommitView) ViewKind() string  { return KindCommit }
func (MessageView) ViewKind() string { return KindMessage }
func (GuessView) ViewKind() string   { return KindGuess }
func (RevealView) ViewKind() string  { return KindReveal }
func (FinalView) ViewKind() string   { return KindFinal }

// DecodeView parses a JSON view into its concrete type.
func DecodeView(raw []byte) (View, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	var v View
	switch probe.Kind {
	case KindCommit:
		v = &CommitView{}
	case KindMessage:
		v = &MessageView{}
	case KindGuess:
		v = &GuessView{}
	case KindReveal:
		v = &RevealView{}
	case KindFinal:
		v = &FinalView{}
	default:
		return nil, fmt.Errorf("unknown view kind %q", probe.Kind)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}
