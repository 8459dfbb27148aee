// Package platform recognises supported retailer URLs and carries the
// per-retailer selector profiles used to read product and search pages.
package platform

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/use-agent/pricewatch/models"
)

var (
	amazonPathRe   = regexp.MustCompile(`(?i)/(?:dp|gp/product|gp/aw/d|product)/([a-z0-9]{10})(?:[/?]|$)`)
	flipkartPathRe = regexp.MustCompile(`(?i)/p/(itm[a-z0-9]+)`)
	cromaPathRe    = regexp.MustCompile(`/p/(\d+)(?:[/?]|$)`)
)

// Identify returns the retailer and its product identifier for rawURL:
// the ASIN for Amazon, the pid (or itm id) for Flipkart and the numeric
// product code for Croma. ok is false for anything else.
func Identify(rawURL string) (p models.Platform, productID string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", false
	}

	switch host := normalizeHost(u.Hostname()); host {
	case "amazon.in", "amazon.com":
		if m := amazonPathRe.FindStringSubmatch(u.Path); m != nil {
			return models.Amazon, strings.ToUpper(m[1]), true
		}
	case "flipkart.com", "dl.flipkart.com":
		if pid := strings.TrimSpace(u.Query().Get("pid")); pid != "" {
			return models.Flipkart, strings.ToUpper(pid), true
		}
		if m := flipkartPathRe.FindStringSubmatch(u.Path); m != nil {
			return models.Flipkart, strings.ToUpper(m[1]), true
		}
	case "croma.com":
		if m := cromaPathRe.FindStringSubmatch(u.Path); m != nil {
			return models.Croma, m[1], true
		}
	}
	return "", "", false
}

// HostPlatform reports which retailer serves host, ignoring the path.
func HostPlatform(host string) (models.Platform, bool) {
	switch normalizeHost(host) {
	case "amazon.in", "amazon.com":
		return models.Amazon, true
	case "flipkart.com", "dl.flipkart.com":
		return models.Flipkart, true
	case "croma.com":
		return models.Croma, true
	}
	return "", false
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, prefix := range []string{"www.", "m."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}
