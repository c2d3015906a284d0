package domain

import "time"

// Agent is the identity record the match engine reads and settles.
// Registration and verification are owned elsewhere; the engine only
// writes the rating, counters and LastActiveAt.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Rating       int       `json:"rating"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Draws        int       `json:"draws"`
	GamesPlayed  int       `json:"games_played"`
	Badges       []string  `json:"badges,omitempty"`
	APIKeyHash   string    `json:"api_key_hash"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at,omitempty"`
}

func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	c.Badges = append([]string(nil), a.Badges...)
	return &c
}
