package matchdto

import "time"

// MatchResult is one archived finished match.
type MatchResult struct {
	MatchID            string    `json:"match_id"`
	Player1            string    `json:"player1"`
	Player2            string    `json:"player2"`
	Winner             string    `json:"winner"`
	Phase              string    `json:"phase"`
	Resolution         string    `json:"resolution"`
	Player1RatingDelta int       `json:"player1_rating_delta"`
	Player2RatingDelta int       `json:"player2_rating_delta"`
	Player1Choice      *int      `json:"player1_choice,omitempty"`
	Player2Choice      *int      `json:"player2_choice,omitempty"`
	Player1Guess       *int      `json:"player1_guess,omitempty"`
	Player2Guess       *int      `json:"player2_guess,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	CompletedAt        time.Time `json:"completed_at"`
}
