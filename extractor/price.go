package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/pricewatch/models"
)

// numberRunRe is the first run of digits, commas and dots that starts and
// ends with a digit.
var numberRunRe = regexp.MustCompile(`\d(?:[\d,.]*\d)?`)

// ParsePrice turns INR-formatted text such as "₹34,999.00" or "Rs. 1,299"
// into a number. Commas are thousands separators. A dot is a decimal point
// only when it is the last separator and 1-2 digits follow it; otherwise
// dots are thousands separators too. Non-numeric and non-positive values
// fail with ErrPriceParse.
func ParsePrice(raw string) (float64, error) {
	text := strings.NewReplacer(" ", " ", " ", " ", " ", " ").Replace(raw)
	run := numberRunRe.FindString(text)
	if run == "" {
		return 0, models.NewScrapeError(models.ErrCodePriceParse, "no digits in "+strconv.Quote(raw), nil)
	}

	run = strings.ReplaceAll(run, ",", "")
	intPart, frac := run, ""
	if i := strings.LastIndexByte(run, '.'); i >= 0 {
		if tail := run[i+1:]; len(tail) >= 1 && len(tail) <= 2 {
			intPart, frac = run[:i], tail
		}
	}
	intPart = strings.ReplaceAll(intPart, ".", "")

	num := intPart
	if frac != "" {
		num += "." + frac
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, models.NewScrapeError(models.ErrCodePriceParse, "cannot parse "+strconv.Quote(raw), err)
	}
	if v <= 0 {
		return 0, models.NewScrapeError(models.ErrCodePriceParse, "non-positive price "+strconv.Quote(raw), nil)
	}
	return v, nil
}
