package model

// Envelope is the uniform response body of every API endpoint and of the
// REST client.  Data carries the payload on success; Error carries a short
// human-readable reason on failure.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
