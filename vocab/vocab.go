// Package vocab holds the curated word lists shared by query normalization
// and product matching: brands and their aliases, stopwords, marketing
// noise, accessory keywords, colors and model qualifiers.
package vocab

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Vocabulary is immutable after construction and safe for concurrent use.
type Vocabulary struct {
	brands      []alias
	brandRe     []*regexp.Regexp
	accessories []string
	accessoryRe []*regexp.Regexp
	stopwords   map[string]bool
	noise       map[string]bool
	colors      map[string]bool
	qualifiers  map[string]bool
}

type alias struct {
	text      string
	canonical string
}

// Brand is a brand detected in a piece of text.
type Brand struct {
	Canonical string // e.g. "samsung"
	Alias     string // the matched text, e.g. "samsung galaxy"
	Start     int    // byte offset of the match
	End       int
}

// Extension is the YAML shape accepted by Load. Brands maps a canonical
// brand to its aliases; the canonical name is always an alias of itself.
type Extension struct {
	Brands      map[string][]string `yaml:"brands"`
	Stopwords   []string            `yaml:"stopwords"`
	Noise       []string            `yaml:"noise"`
	Accessories []string            `yaml:"accessories"`
	Colors      []string            `yaml:"colors"`
	Qualifiers  []string            `yaml:"qualifiers"`
}

var defaultBrands = map[string][]string{
	"apple":           {"iphone", "ipad", "macbook", "airpods"},
	"samsung":         {"samsung galaxy"},
	"oneplus":         {"one plus"},
	"xiaomi":          {"redmi", "mi"},
	"poco":            nil,
	"realme":          nil,
	"oppo":            nil,
	"vivo":            nil,
	"iqoo":            nil,
	"motorola":        {"moto"},
	"nokia":           nil,
	"google":          {"pixel"},
	"infinix":         nil,
	"tecno":           nil,
	"lava":            nil,
	"sony":            nil,
	"lg":              nil,
	"philips":         nil,
	"panasonic":       nil,
	"boat":            nil,
	"jbl":             nil,
	"bose":            nil,
	"sennheiser":      nil,
	"noise":           {"noisefit"},
	"fire-boltt":      {"fire boltt"},
	"hp":              nil,
	"dell":            nil,
	"lenovo":          nil,
	"asus":            nil,
	"acer":            nil,
	"msi":             nil,
	"canon":           nil,
	"nikon":           nil,
	"logitech":        nil,
	"sandisk":         nil,
	"whirlpool":       nil,
	"godrej":          nil,
	"haier":           nil,
	"bosch":           nil,
	"ifb":             nil,
	"voltas":          nil,
	"daikin":          nil,
	"blue star":       {"bluestar"},
	"lloyd":           nil,
	"hitachi":         nil,
	"carrier":         nil,
	"havells":         nil,
	"bajaj":           nil,
	"prestige":        nil,
	"usha":            nil,
	"crompton":        nil,
	"orient":          nil,
	"morphy richards": nil,
	"kent":            nil,
	"pigeon":          nil,
	"tcl":             nil,
	"vu":              nil,
	"croma":           nil,
	"amazonbasics":    {"amazon basics"},
}

var defaultStopwords = []string{
	"a", "an", "and", "the", "or", "of", "for", "with", "in", "on", "to",
	"by", "from", "at", "is", "as", "its", "it", "this", "that", "&", "-",
}

var defaultNoise = []string{
	"buy", "now", "online", "best", "price", "prices", "offer", "offers",
	"deal", "deals", "sale", "latest", "new", "free", "delivery", "upto",
	"discount", "genuine", "original", "official", "india", "rs", "inr",
	"shop", "shopping", "lowest", "cheapest", "warranty", "ram", "rom",
	"storage", "memory", "capacity", "edition", "variant",
}

var defaultAccessories = []string{
	"case", "cover", "back cover", "screen guard", "screen protector",
	"tempered glass", "charger", "cable", "combo", "skin", "pouch",
	"adapter", "protector", "mount", "holder", "sticker", "strap",
	"replacement", "spare", "refill",
}

var defaultColors = []string{
	"black", "white", "blue", "red", "green", "silver", "gold", "grey",
	"gray", "graphite", "purple", "pink", "yellow", "orange", "titanium",
	"midnight", "starlight", "bronze", "cream", "beige", "violet",
	"lavender", "mint", "navy", "maroon", "brown",
}

var defaultQualifiers = []string{
	"pro", "max", "plus", "ultra", "mini", "lite", "5g", "4g", "fe", "neo",
	"air", "prime",
}

var builtin = sync.OnceValue(func() *Vocabulary {
	v, err := build(Extension{
		Brands:      defaultBrands,
		Stopwords:   defaultStopwords,
		Noise:       defaultNoise,
		Accessories: defaultAccessories,
		Colors:      defaultColors,
		Qualifiers:  defaultQualifiers,
	})
	if err != nil {
		panic(err) // built-in lists are constant
	}
	return v
})

// Default returns the built-in vocabulary.
func Default() *Vocabulary {
	return builtin()
}

// Load returns the built-in vocabulary extended with the YAML file at path.
// An empty path returns Default().
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: read %s: %w", path, err)
	}
	var ext Extension
	if err := yaml.Unmarshal(data, &ext); err != nil {
		return nil, fmt.Errorf("vocab: parse %s: %w", path, err)
	}
	return Default().Extend(ext)
}

// WithBrands returns a copy that also recognises the given canonical brands.
func (v *Vocabulary) WithBrands(names ...string) *Vocabulary {
	brands := make(map[string][]string, len(names))
	for _, n := range names {
		brands[n] = nil
	}
	out, err := v.Extend(Extension{Brands: brands})
	if err != nil {
		return v
	}
	return out
}

// Extend returns a new vocabulary with ext merged into v.
func (v *Vocabulary) Extend(ext Extension) (*Vocabulary, error) {
	merged := Extension{
		Brands:      make(map[string][]string),
		Stopwords:   keys(v.stopwords),
		Noise:       keys(v.noise),
		Accessories: append([]string(nil), v.accessories...),
		Colors:      keys(v.colors),
		Qualifiers:  keys(v.qualifiers),
	}
	for _, a := range v.brands {
		if a.text != a.canonical {
			merged.Brands[a.canonical] = append(merged.Brands[a.canonical], a.text)
		} else if _, ok := merged.Brands[a.canonical]; !ok {
			merged.Brands[a.canonical] = nil
		}
	}
	for canonical, aliases := range ext.Brands {
		merged.Brands[canonical] = append(merged.Brands[canonical], aliases...)
	}
	merged.Stopwords = append(merged.Stopwords, ext.Stopwords...)
	merged.Noise = append(merged.Noise, ext.Noise...)
	merged.Accessories = append(merged.Accessories, ext.Accessories...)
	merged.Colors = append(merged.Colors, ext.Colors...)
	merged.Qualifiers = append(merged.Qualifiers, ext.Qualifiers...)
	return build(merged)
}

func build(ext Extension) (*Vocabulary, error) {
	v := &Vocabulary{
		stopwords:  toSet(ext.Stopwords),
		noise:      toSet(ext.Noise),
		colors:     toSet(ext.Colors),
		qualifiers: toSet(ext.Qualifiers),
	}

	seen := make(map[string]bool)
	for canonical, aliases := range ext.Brands {
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		if canonical == "" {
			continue
		}
		for _, a := range append([]string{canonical}, aliases...) {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			v.brands = append(v.brands, alias{text: a, canonical: canonical})
		}
	}
	// Longest alias first so "samsung galaxy" is preferred over "samsung"
	// when both start at the same offset.
	sort.Slice(v.brands, func(i, j int) bool {
		if len(v.brands[i].text) != len(v.brands[j].text) {
			return len(v.brands[i].text) > len(v.brands[j].text)
		}
		return v.brands[i].text < v.brands[j].text
	})
	for _, a := range v.brands {
		re, err := wordRegexp(a.text)
		if err != nil {
			return nil, fmt.Errorf("vocab: brand %q: %w", a.text, err)
		}
		v.brandRe = append(v.brandRe, re)
	}

	accSeen := make(map[string]bool)
	for _, a := range ext.Accessories {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" || accSeen[a] {
			continue
		}
		accSeen[a] = true
		re, err := wordRegexp(a)
		if err != nil {
			return nil, fmt.Errorf("vocab: accessory %q: %w", a, err)
		}
		v.accessories = append(v.accessories, a)
		v.accessoryRe = append(v.accessoryRe, re)
	}
	return v, nil
}

// wordRegexp matches phrase as whole words, tolerating any run of spaces
// or hyphens between its words.
func wordRegexp(phrase string) (*regexp.Regexp, error) {
	words := strings.Fields(phrase)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?:^|[^a-z0-9])(` + strings.Join(words, `[\s-]+`) + `)(?:$|[^a-z0-9])`)
}

// DetectBrand returns the earliest brand mention in text. Ties at the
// same offset go to the longest alias.
func (v *Vocabulary) DetectBrand(text string) (Brand, bool) {
	lower := strings.ToLower(text)
	best := Brand{Start: -1}
	for i, re := range v.brandRe {
		loc := re.FindStringSubmatchIndex(lower)
		if loc == nil {
			continue
		}
		start, end := loc[2], loc[3]
		if best.Start == -1 || start < best.Start || (start == best.Start && end-start > best.End-best.Start) {
			best = Brand{Canonical: v.brands[i].canonical, Alias: lower[start:end], Start: start, End: end}
		}
	}
	return best, best.Start >= 0
}

// Accessory returns the first accessory keyword found in text.
func (v *Vocabulary) Accessory(text string) (string, bool) {
	lower := strings.ToLower(text)
	for i, re := range v.accessoryRe {
		if re.MatchString(lower) {
			return v.accessories[i], true
		}
	}
	return "", false
}

func (v *Vocabulary) IsStopword(tok string) bool {
	return v.stopwords[tok]
}

func (v *Vocabulary) IsNoise(tok string) bool {
	return v.noise[tok]
}

func (v *Vocabulary) IsColor(tok string) bool {
	return v.colors[tok]
}

func (v *Vocabulary) IsQualifier(tok string) bool {
	return v.qualifiers[tok]
}

// IsFiller reports whether tok carries no product identity.
func (v *Vocabulary) IsFiller(tok string) bool {
	return v.stopwords[tok] || v.noise[tok]
}

func toSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, s := range list {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			m[s] = true
		}
	}
	return m
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
