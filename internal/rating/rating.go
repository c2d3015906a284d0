// Package rating implements the Elo update applied to both sides of a
// finished match.
package rating

import "math"

const (
	// K bounds the magnitude of a single update.
	K = 32

	DefaultRating     = 1200
	EarlyAdopterBonus = 25
	// EarlyAdopterSeats is the size of the first registration cohort.
	EarlyAdopterSeats = 100
)

// Result is the score of one side: 1 win, 0.5 draw, 0 loss.
type Result float64

const (
	Loss Result = 0
	Draw Result = 0.5
	Win  Result = 1
)

// Complement returns the opponent's result.
func (r Result) Complement() Result { return 1 - r }

// Outcome is the result of a match seen from player1.
type Outcome int

const (
	Drawn Outcome = iota
	Player1Won
	Player2Won
)

// Results splits an outcome into per-side scores.
func (o Outcome) Results() (p1, p2 Result) {
	switch o {
	case Player1Won:
		return Win, Loss
	case Player2Won:
		return Loss, Win
	default:
		return Draw, Draw
	}
}

// Expected is the expected score of self against opponent.
func Expected(self, opponent int) float64 {
	return 1 / (1 + math.Pow(10, float64(opponent-self)/400))
}

// Delta returns the signed rating change for self.
//
// The higher-rated side is always derived from the lower-rated side, and
// math.Round is symmetric around zero, so Delta(a, b, r) == -Delta(b, a, 1-r)
// holds exactly instead of up to float error.
func Delta(self, opponent int, result Result) int {
	if self > opponent {
		return -Delta(opponent, self, result.Complement())
	}
	return int(math.Round(K * (float64(result) - Expected(self, opponent))))
}

// Settle computes both deltas of a match.
func Settle(player1, player2 int, outcome Outcome) (d1, d2 int) {
	r1, r2 := outcome.Results()
	return Delta(player1, player2, r1), Delta(player2, player1, r2)
}

// InitialRating is the starting rating of the n-th registered agent
// (zero based).
func InitialRating(existing int) int {
	if existing < EarlyAdopterSeats {
		return DefaultRating + EarlyAdopterBonus
	}
	return DefaultRating
}
