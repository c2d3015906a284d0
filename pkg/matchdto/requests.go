package matchdto

type RegisterRequest struct {
	Name string `json:"name"`
}

type RegisterResponse struct {
	Agent  *AgentProfile `json:"agent"`
	APIKey string        `json:"api_key"`
}

type CommitRequest struct {
	Commitment string `json:"commitment"`
}

type MessageRequest struct {
	Message string `json:"message"`
	Claim   *int   `json:"claim,omitempty"`
}

type GuessRequest struct {
	Guess *int `json:"guess"`
}

type RevealRequest struct {
	Choice *int   `json:"choice"`
	Nonce  string `json:"nonce"`
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	Phase   string `json:"phase"`
	// Advanced is true when this submission moved the match forward.
	Advanced bool `json:"advanced"`
}

type TimeoutResponse struct {
	Status string `json:"status"`
	Phase  string `json:"phase"`
	Winner string `json:"winner,omitempty"`
	// Forfeited is true only for the call that forced the resolution.
	Forfeited bool `json:"forfeited"`
}

type QueueStatus struct {
	Waiting int `json:"waiting"`
}
