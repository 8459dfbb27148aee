package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidURL     = "INVALID_URL"
	ErrCodeDriverInit     = "DRIVER_INIT_FAILED"
	ErrCodeInvalidSession = "INVALID_SESSION"
	ErrCodeBlocked        = "BLOCKED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodePriceNotFound  = "PRICE_NOT_FOUND"
	ErrCodePriceParse     = "PRICE_PARSE_FAILURE"
	ErrCodeTimeout        = "SCRAPE_TIMEOUT"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. ScrapeError.Is compares codes only, so
// errors.Is(NewScrapeError(ErrCodeBlocked, "...", nil), ErrBlocked) holds.
var (
	ErrInvalidURL     = &ScrapeError{Code: ErrCodeInvalidURL, Message: "unsupported or malformed product URL"}
	ErrDriverInit     = &ScrapeError{Code: ErrCodeDriverInit, Message: "browser could not be started"}
	ErrInvalidSession = &ScrapeError{Code: ErrCodeInvalidSession, Message: "browser session is no longer usable"}
	ErrBlocked        = &ScrapeError{Code: ErrCodeBlocked, Message: "bot wall detected"}
	ErrNotFound       = &ScrapeError{Code: ErrCodeNotFound, Message: "no matching product"}
	ErrPriceNotFound  = &ScrapeError{Code: ErrCodePriceNotFound, Message: "Price not found"}
	ErrPriceParse     = &ScrapeError{Code: ErrCodePriceParse, Message: "price text is not numeric"}
	ErrTimeout        = &ScrapeError{Code: ErrCodeTimeout, Message: "operation timed out"}
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ScrapeError with the same code.
func (e *ScrapeError) Is(target error) bool {
	t, ok := target.(*ScrapeError)
	return ok && t.Code == e.Code
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
