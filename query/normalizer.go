// Package query turns noisy retailer product titles into short search
// queries that keep brand, model and distinguishing specs.
package query

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/vocab"
)

const (
	maxModelTokens    = 3
	maxParts          = 8
	minQueryTokens    = 2
	fallbackWordCount = 6
)

// clauseBreakRe ends the clause a model run may extend into.
var clauseBreakRe = regexp.MustCompile(`[,|()\[\]:/;]|\s-\s`)

// Normalizer builds search queries. It is pure and safe for concurrent use.
type Normalizer struct {
	vocab    *vocab.Vocabulary
	profiles platform.Profiles
}

func New(v *vocab.Vocabulary, profiles platform.Profiles) *Normalizer {
	if v == nil {
		v = vocab.Default()
	}
	return &Normalizer{vocab: v, profiles: profiles}
}

// Normalize returns a 2-8 part query for title. originURL is used to strip
// the origin retailer's name and, when title is missing, as a source of
// words through its slug.
func (n *Normalizer) Normalize(title, originURL string) string {
	text := strings.ToLower(strings.TrimSpace(title))
	if text == "" || text == strings.ToLower(models.UnknownProduct) || text == strings.ToLower(models.InvalidURLText) {
		text = slugWords(originURL)
	}
	text = n.stripSiteTokens(text, originURL)
	canon := vocab.Canonicalize(text)
	tokens := vocab.Tokenize(text)

	var parts []string
	brand, hasBrand := n.vocab.DetectBrand(canon)
	model := ""
	if hasBrand {
		parts = append(parts, strings.Join(strings.Fields(strings.ReplaceAll(brand.Alias, "-", " ")), " "))
		model = n.modelRun(canon[brand.End:])
		if model != "" {
			parts = append(parts, model)
		}
	}
	if !hasBrand || model == "" {
		for _, tok := range tokens {
			if vocab.IsModelLike(tok) {
				parts = append(parts, tok)
			}
		}
	}

	parts = append(parts, vocab.Specs(text)...)
	for _, tok := range tokens {
		if n.vocab.IsQualifier(tok) {
			parts = append(parts, tok)
		}
	}
	for _, tok := range tokens {
		if n.vocab.IsColor(tok) {
			parts = append(parts, tok)
			break
		}
	}

	parts = dedupe(parts)
	if len(parts) > maxParts {
		parts = parts[:maxParts]
	}
	query := strings.Join(parts, " ")
	if len(strings.Fields(query)) < minQueryTokens {
		return n.fallback(tokens)
	}
	return query
}

// modelRun takes up to three tokens from the start of rest, stopping at
// the end of the clause or at the first measurement, color or filler word.
func (n *Normalizer) modelRun(rest string) string {
	if loc := clauseBreakRe.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	var run []string
	for _, tok := range vocab.Tokenize(rest) {
		if len(run) == maxModelTokens || vocab.IsSpec(tok) || n.vocab.IsColor(tok) || n.vocab.IsFiller(tok) {
			break
		}
		run = append(run, tok)
	}
	return strings.Join(run, " ")
}

func (n *Normalizer) fallback(tokens []string) string {
	var words []string
	for _, tok := range tokens {
		if n.vocab.IsFiller(tok) {
			continue
		}
		words = append(words, tok)
		if len(words) == fallbackWordCount {
			break
		}
	}
	return strings.Join(words, " ")
}

// stripSiteTokens removes the origin retailer's own name from text.
func (n *Normalizer) stripSiteTokens(text, originURL string) string {
	u, err := url.Parse(originURL)
	if err != nil {
		return text
	}
	p, ok := platform.HostPlatform(u.Hostname())
	if !ok {
		return text
	}
	prof, err := n.profiles.Get(p)
	if err != nil {
		return text
	}
	for _, tok := range prof.SiteTokens {
		re := regexp.MustCompile(`(?:^|[^a-z0-9])` + regexp.QuoteMeta(strings.ToLower(tok)) + `(?:$|[^a-z0-9])`)
		text = re.ReplaceAllString(text, " ")
	}
	return strings.TrimSpace(text)
}

// slugWords returns the words of the longest hyphenated path segment, e.g.
// "acme-blender-x200" from ".../acme-blender-x200/p/itm1".
func slugWords(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	best := ""
	for _, seg := range strings.Split(u.Path, "/") {
		if strings.Contains(seg, "-") && len(seg) > len(best) {
			best = seg
		}
	}
	if unescaped, err := url.PathUnescape(best); err == nil {
		best = unescaped
	}
	return strings.ToLower(strings.NewReplacer("-", " ", "_", " ").Replace(best))
}

// dedupe keeps the first occurrence of each part and drops parts already
// contained in an earlier, longer part. Measurements only match whole
// words so "6gb" survives next to "256gb".
func dedupe(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		dup := false
		for _, kept := range out {
			if strings.Contains(" "+kept+" ", " "+p+" ") || (!vocab.IsSpec(p) && strings.Contains(kept, p)) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
