package platform

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/pricewatch/models"
)

//go:embed profiles.yaml
var embeddedProfiles []byte

// Selector is a CSS selector, optionally reading an attribute instead of
// the element text ("h2 a@href").
type Selector struct {
	CSS  string
	Attr string
}

func (s Selector) String() string {
	if s.Attr == "" {
		return s.CSS
	}
	return s.CSS + "@" + s.Attr
}

var attrSuffixRe = regexp.MustCompile(`^(.+)@([a-z][a-z0-9-]*)$`)

// ParseSelector splits an optional "@attr" suffix off raw.
func ParseSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	sel := Selector{CSS: raw}
	if m := attrSuffixRe.FindStringSubmatch(raw); m != nil {
		sel = Selector{CSS: strings.TrimSpace(m[1]), Attr: m[2]}
	}
	if _, err := cascadia.Compile(sel.CSS); err != nil {
		return Selector{}, fmt.Errorf("selector %q: %w", raw, err)
	}
	return sel, nil
}

// Profile describes how to read one retailer's product and search pages.
type Profile struct {
	Platform   models.Platform
	SiteName   string
	SiteTokens []string
	BaseURL    string

	Title []Selector
	Price []Selector

	Results        []Selector
	CandidateTitle []Selector
	CandidatePrice []Selector
	CandidateLink  []Selector

	searchURL  string
	titleStrip []*regexp.Regexp
}

// SearchURL builds the search results URL for query.
func (p *Profile) SearchURL(query string) string {
	return strings.ReplaceAll(p.searchURL, "{query}", url.QueryEscape(query))
}

// CleanTitle strips the retailer's document-title decorations such as
// "Buy ... Online at Low Prices" or ": Amazon.in: Electronics".
func (p *Profile) CleanTitle(docTitle string) string {
	t := strings.TrimSpace(docTitle)
	for _, re := range p.titleStrip {
		t = strings.TrimSpace(re.ReplaceAllString(t, ""))
	}
	return t
}

// ResolveLink makes a candidate href absolute against the retailer.
func (p *Profile) ResolveLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	base, err := url.Parse(p.BaseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Profiles is the full set of retailer profiles.
type Profiles map[models.Platform]*Profile

// Get returns the profile for p.
func (ps Profiles) Get(p models.Platform) (*Profile, error) {
	prof, ok := ps[p]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("no profile for platform %q", p), nil)
	}
	return prof, nil
}

type rawProfile struct {
	SiteName                string   `yaml:"site_name"`
	SiteTokens              []string `yaml:"site_tokens"`
	BaseURL                 string   `yaml:"base_url"`
	SearchURL               string   `yaml:"search_url"`
	TitleStrip              []string `yaml:"title_strip"`
	TitleSelectors          []string `yaml:"title_selectors"`
	PriceSelectors          []string `yaml:"price_selectors"`
	ResultSelectors         []string `yaml:"result_selectors"`
	CandidateTitleSelectors []string `yaml:"candidate_title_selectors"`
	CandidatePriceSelectors []string `yaml:"candidate_price_selectors"`
	CandidateLinkSelectors  []string `yaml:"candidate_link_selectors"`
}

var builtin = sync.OnceValues(func() (Profiles, error) {
	return parseProfiles(embeddedProfiles)
})

// DefaultProfiles returns the embedded retailer profiles.
func DefaultProfiles() Profiles {
	ps, err := builtin()
	if err != nil {
		panic(fmt.Sprintf("platform: embedded profiles: %v", err))
	}
	return ps
}

// LoadProfiles returns the embedded profiles with any retailer defined in
// the YAML file at path replaced by the file's version. An empty path
// returns DefaultProfiles().
func LoadProfiles(path string) (Profiles, error) {
	base := DefaultProfiles()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: read profiles %s: %w", path, err)
	}
	override, err := parseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("platform: %s: %w", path, err)
	}
	merged := make(Profiles, len(base))
	for p, prof := range base {
		merged[p] = prof
	}
	for p, prof := range override {
		merged[p] = prof
	}
	return merged, nil
}

func parseProfiles(data []byte) (Profiles, error) {
	var raw map[string]rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	ps := make(Profiles, len(raw))
	for name, rp := range raw {
		p := models.Platform(strings.ToLower(name))
		if !p.Valid() {
			return nil, fmt.Errorf("unknown platform %q", name)
		}
		prof, err := compileProfile(p, rp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		ps[p] = prof
	}
	return ps, nil
}

func compileProfile(p models.Platform, rp rawProfile) (*Profile, error) {
	if !strings.Contains(rp.SearchURL, "{query}") {
		return nil, fmt.Errorf("search_url must contain {query}")
	}
	prof := &Profile{
		Platform:   p,
		SiteName:   rp.SiteName,
		SiteTokens: rp.SiteTokens,
		BaseURL:    rp.BaseURL,
		searchURL:  rp.SearchURL,
	}
	for _, expr := range rp.TitleStrip {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("title_strip %q: %w", expr, err)
		}
		prof.titleStrip = append(prof.titleStrip, re)
	}

	lists := []struct {
		name string
		raw  []string
		dst  *[]Selector
	}{
		{"title_selectors", rp.TitleSelectors, &prof.Title},
		{"price_selectors", rp.PriceSelectors, &prof.Price},
		{"result_selectors", rp.ResultSelectors, &prof.Results},
		{"candidate_title_selectors", rp.CandidateTitleSelectors, &prof.CandidateTitle},
		{"candidate_price_selectors", rp.CandidatePriceSelectors, &prof.CandidatePrice},
		{"candidate_link_selectors", rp.CandidateLinkSelectors, &prof.CandidateLink},
	}
	for _, l := range lists {
		if len(l.raw) == 0 && l.name != "candidate_link_selectors" {
			return nil, fmt.Errorf("%s is empty", l.name)
		}
		for _, raw := range l.raw {
			sel, err := ParseSelector(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", l.name, err)
			}
			*l.dst = append(*l.dst, sel)
		}
	}
	return prof, nil
}
