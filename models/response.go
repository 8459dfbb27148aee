package models

// CompareResponse is the response for POST /api/v1/compare.
type CompareResponse struct {
	// Success is false only when the comparison could not run at all
	// (invalid URL or an unrecoverable failure). Per-platform misses are
	// reported through Prices and Results with Success still true.
	Success bool `json:"success"`

	// ProductName is the origin product title or one of the sentinels
	// "Unknown Product", "Invalid URL", "Error during processing".
	ProductName string `json:"product_name"`

	// Prices maps platform name to a price string or "Not found",
	// "Error", "Invalid URL".
	Prices map[string]string `json:"prices"`

	// Results carries the typed per-platform outcome in platform order.
	Results []PlatformResult `json:"results"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`
}

// IdentifyResponse is the response for GET /api/v1/identify.
type IdentifyResponse struct {
	Supported bool     `json:"supported"`
	Platform  Platform `json:"platform,omitempty"`
	ProductID string   `json:"product_id,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser session pool.
type PoolStats struct {
	MaxSessions    int    `json:"max_sessions"`
	ActiveSessions int    `json:"active_sessions"`
	IdleSessions   int    `json:"idle_sessions"`
	Retired        int64  `json:"retired"`
	Engine         string `json:"engine"`
}

// ErrorResponse is returned when a request is rejected before any
// comparison runs (bad input, auth, rate limiting).
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// NewErrorResponse builds a failed ErrorResponse.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: &ErrorDetail{Code: code, Message: message}}
}
