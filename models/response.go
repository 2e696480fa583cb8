package models

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "starting"
	Uptime  string       `json:"uptime"`
	Browser BrowserStats `json:"browser"`
	Cache   CacheStats   `json:"cache"`
	Version string       `json:"version"`
}

// BrowserStats reports the state of the shared rendering agent.
type BrowserStats struct {
	Launched       bool `json:"launched"`
	ActiveSessions int  `json:"active_sessions"`
}

// CacheStats reports the occupancy of both cache tiers.
type CacheStats struct {
	Pages  int `json:"pages"`
	Assets int `json:"assets"`
}

// ErrorResponse wraps an ErrorDetail for JSON-speaking endpoints.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error,omitempty"`
}
