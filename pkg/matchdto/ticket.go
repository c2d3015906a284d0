package matchdto

import "time"

const (
	TicketQueued  = "queued"
	TicketMatched = "matched"
)

// Ticket answers a match request.
type Ticket struct {
	Status       string     `json:"status"`
	MatchID      string     `json:"match_id,omitempty"`
	OpponentID   string     `json:"opponent_id,omitempty"`
	OpponentName string     `json:"opponent_name,omitempty"`
	Phase        string     `json:"phase,omitempty"`
	QueuedAt     *time.Time `json:"queued_at,omitempty"`
	Message      string     `json:"message,omitempty"`
}
