package extractor

import (
	"regexp"
	"strings"
)

// wallPatterns only ever appear on interstitials.
var wallPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)verify (that )?you are (a )?human`),
	regexp.MustCompile(`(?i)are you a human`),
	regexp.MustCompile(`(?i)robot check`),
	regexp.MustCompile(`(?i)not a robot`),
	regexp.MustCompile(`(?i)enter the characters you see below`),
	regexp.MustCompile(`(?i)type the characters you see in this image`),
	regexp.MustCompile(`(?i)unusual traffic`),
	regexp.MustCompile(`(?i)\b(re|h)?captcha\b`),
	regexp.MustCompile(`(?i)checking your browser`),
	regexp.MustCompile(`(?i)pardon our interruption`),
	regexp.MustCompile(`(?i)press (&|and) hold`),
}

// softPatterns also occur on ordinary pages (reviews, footers), so they
// count only when the page is too short to be a product or result listing.
var softPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)access denied`),
	regexp.MustCompile(`(?i)request (was )?blocked`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)403 forbidden`),
	regexp.MustCompile(`(?i)service unavailable`),
}

const shortPageChars = 1500

// DetectBlock reports whether a page with the given title and visible body
// text is a bot wall, and which pattern gave it away.
func DetectBlock(title, body string) (string, bool) {
	content := title + "\n" + body
	for _, re := range wallPatterns {
		if re.MatchString(content) {
			return re.String(), true
		}
	}
	if len(strings.TrimSpace(body)) < shortPageChars {
		for _, re := range softPatterns {
			if re.MatchString(content) {
				return re.String(), true
			}
		}
	}
	return "", false
}
