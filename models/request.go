package models

// CompareRequest is the payload for POST /api/v1/compare.
type CompareRequest struct {
	// URL is a product page on one of the supported retailers. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxAge lets the caller accept a cached comparison up to this many
	// seconds old. 0 (default) always runs a fresh comparison.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0,max=86400"`

	// Timeout is the maximum duration in seconds for the whole comparison
	// (origin extraction plus every cross-site search).
	// Default: 120. Max: 300.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=10,max=300"`
}

// Defaults applies default values to unset fields.
func (r *CompareRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 120
	}
}
