package models

import (
	"math"
	"strconv"
)

// Platform identifies a supported retailer.
type Platform string

const (
	Amazon   Platform = "amazon"
	Flipkart Platform = "flipkart"
	Croma    Platform = "croma"
)

// Platforms returns every supported retailer in the fixed iteration order
// used for searching and rendering results.
func Platforms() []Platform {
	return []Platform{Amazon, Flipkart, Croma}
}

// Valid reports whether p is one of the supported retailers.
func (p Platform) Valid() bool {
	switch p {
	case Amazon, Flipkart, Croma:
		return true
	}
	return false
}

// Status is the outcome of one platform lookup.
type Status string

const (
	StatusFound      Status = "found"
	StatusNotFound   Status = "not_found"
	StatusError      Status = "error"
	StatusBlocked    Status = "blocked"
	StatusInvalidURL Status = "invalid_url"
)

// Display strings returned through the flat price map.
const (
	NotFoundText   = "Not found"
	ErrorText      = "Error"
	InvalidURLText = "Invalid URL"

	UnknownProduct     = "Unknown Product"
	ErrorDuringProcess = "Error during processing"
)

// PlatformResult is the lookup result for one retailer. Price is only
// meaningful when Status is StatusFound; use the constructors below.
type PlatformResult struct {
	Platform     Platform `json:"platform"`
	Status       Status   `json:"status"`
	Price        float64  `json:"price,omitempty"`
	MatchedTitle string   `json:"matched_title,omitempty"`
	ProductURL   string   `json:"product_url,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func Found(p Platform, price float64) PlatformResult {
	return PlatformResult{Platform: p, Status: StatusFound, Price: price}
}

func NotFound(p Platform) PlatformResult {
	return PlatformResult{Platform: p, Status: StatusNotFound}
}

func Failed(p Platform, err error) PlatformResult {
	r := PlatformResult{Platform: p, Status: StatusError}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func Blocked(p Platform) PlatformResult {
	return PlatformResult{Platform: p, Status: StatusBlocked, Error: ErrBlocked.Message}
}

func InvalidURL(p Platform) PlatformResult {
	return PlatformResult{Platform: p, Status: StatusInvalidURL}
}

// Display renders the result as a price string or one of the sentinel
// strings. Blocked lookups render as ErrorText.
func (r PlatformResult) Display() string {
	switch r.Status {
	case StatusFound:
		return FormatPrice(r.Price)
	case StatusNotFound:
		return NotFoundText
	case StatusInvalidURL:
		return InvalidURLText
	default:
		return ErrorText
	}
}

// FormatPrice renders whole rupee amounts without decimals and anything
// else with two decimal places.
func FormatPrice(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ExtractionOutcome is the merged result of one comparison call.
type ExtractionOutcome struct {
	ProductTitle string                      `json:"product_title"`
	Origin       Platform                    `json:"origin,omitempty"`
	Query        string                      `json:"query,omitempty"`
	Results      map[Platform]PlatformResult `json:"results"`
}

// NewOutcome returns an outcome where every platform slot holds fill(p).
func NewOutcome(title string, fill func(Platform) PlatformResult) ExtractionOutcome {
	out := ExtractionOutcome{ProductTitle: title, Results: make(map[Platform]PlatformResult, 3)}
	for _, p := range Platforms() {
		out.Results[p] = fill(p)
	}
	return out
}

// Prices flattens the outcome into platform name -> display string.
// Missing slots render as ErrorText so the key set is always complete.
func (o ExtractionOutcome) Prices() map[string]string {
	prices := make(map[string]string, len(Platforms()))
	for _, p := range Platforms() {
		r, ok := o.Results[p]
		if !ok {
			prices[string(p)] = ErrorText
			continue
		}
		prices[string(p)] = r.Display()
	}
	return prices
}

// Ordered returns the results in platform order.
func (o ExtractionOutcome) Ordered() []PlatformResult {
	list := make([]PlatformResult, 0, len(o.Results))
	for _, p := range Platforms() {
		if r, ok := o.Results[p]; ok {
			list = append(list, r)
		}
	}
	return list
}


// AnyFound reports whether at least one retailer returned a price.
func (o ExtractionOutcome) AnyFound() bool {
	for _, r := range o.Results {
		if r.Status == StatusFound {
			return true
		}
	}
	return false
}
