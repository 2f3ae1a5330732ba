package kb

import "time"

// RefreshRequest asks the API to rebuild a domain's knowledge base. An
// empty Domain rebuilds every domain.
type RefreshRequest struct {
	ID     string `json:"id,omitempty"`
	Domain string `json:"domain,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// RefreshedEvent reports the outcome of one domain rebuild. On failure
// Error is set and the counts describe the knowledge base still serving.
type RefreshedEvent struct {
	ID      string    `json:"id"`
	Domain  string    `json:"domain"`
	Loaded  bool      `json:"loaded"`
	Records int       `json:"records"`
	Chunks  int       `json:"chunks"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}
