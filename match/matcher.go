// Package match decides whether a search result names the same product as
// a query.
package match

import (
	"fmt"

	"github.com/use-agent/pricewatch/vocab"
)

// DefaultThreshold is the minimum token overlap ratio for acceptance.
const DefaultThreshold = 0.3

// Score is the breakdown behind a match decision.
type Score struct {
	Accepted bool
	Reason   string

	Accessory      string
	QueryBrand     string
	CandidateBrand string
	SpecMatches    []string
	Ratio          float64
}

func (s Score) String() string {
	return fmt.Sprintf("accepted=%t reason=%s ratio=%.2f specs=%v", s.Accepted, s.Reason, s.Ratio, s.SpecMatches)
}

// Matcher is a heuristic product matcher. Safe for concurrent use.
type Matcher struct {
	threshold float64
	vocab     *vocab.Vocabulary
}

// New returns a matcher; a threshold outside (0, 1] falls back to
// DefaultThreshold and a nil vocabulary to vocab.Default().
func New(v *vocab.Vocabulary, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if v == nil {
		v = vocab.Default()
	}
	return &Matcher{threshold: threshold, vocab: v}
}

func (m *Matcher) Threshold() float64 { return m.threshold }

// Matches reports whether candidate title is the product query describes.
func (m *Matcher) Matches(query, title string) bool {
	return m.Score(query, title).Accepted
}

// Score evaluates, in order: accessory rejection, the brand gate, exact
// measurement overlap and finally the query token overlap ratio.
func (m *Matcher) Score(query, title string) Score {
	var s Score

	if acc, ok := m.vocab.Accessory(title); ok {
		s.Accessory = acc
		s.Reason = "accessory"
		return s
	}

	qb, qok := m.vocab.DetectBrand(vocab.Canonicalize(query))
	cb, cok := m.vocab.DetectBrand(vocab.Canonicalize(title))
	s.QueryBrand, s.CandidateBrand = qb.Canonical, cb.Canonical
	switch {
	case qok && !cok:
		s.Reason = "candidate brand missing"
		return s
	case qok && cok && qb.Canonical != cb.Canonical:
		s.Reason = "brand mismatch"
		return s
	}

	candidateSpecs := make(map[string]bool)
	for _, sp := range vocab.Specs(title) {
		candidateSpecs[sp] = true
	}
	for _, sp := range vocab.Specs(query) {
		if candidateSpecs[sp] {
			s.SpecMatches = append(s.SpecMatches, sp)
		}
	}

	s.Ratio = m.overlap(query, title)
	switch {
	case len(s.SpecMatches) > 0:
		s.Accepted, s.Reason = true, "spec match"
	case s.Ratio >= m.threshold:
		s.Accepted, s.Reason = true, "token overlap"
	default:
		s.Reason = "low overlap"
	}
	return s
}

// overlap is the share of distinct meaningful query tokens present in title.
func (m *Matcher) overlap(query, title string) float64 {
	have := make(map[string]bool)
	for _, tok := range m.tokens(title) {
		have[tok] = true
	}
	seen := make(map[string]bool)
	hits := 0
	for _, tok := range m.tokens(query) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if have[tok] {
			hits++
		}
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(hits) / float64(len(seen))
}

func (m *Matcher) tokens(text string) []string {
	all := vocab.Tokenize(text)
	out := all[:0]
	for _, tok := range all {
		if !m.vocab.IsFiller(tok) {
			out = append(out, tok)
		}
	}
	return out
}
