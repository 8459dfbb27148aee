package scraper

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

// DocumentSession is a Session over static HTML. It never runs scripts, so
// it only sees what the retailer renders server-side.
type DocumentSession struct {
	fetcher    Fetcher
	scraperCfg config.ScraperConfig
	pacer      *Pacer

	mu    sync.Mutex
	ready bool
	doc   *goquery.Document
	title string
}

// NewDocumentSession returns an unstarted session; call EnsureReady before use.
func NewDocumentSession(fetcher Fetcher, scraperCfg config.ScraperConfig, pacer *Pacer) *DocumentSession {
	return &DocumentSession{fetcher: fetcher, scraperCfg: scraperCfg, pacer: pacer}
}

func (s *DocumentSession) EnsureReady(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

func (s *DocumentSession) Navigate(ctx context.Context, targetURL string) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if !ready {
		return models.NewScrapeError(models.ErrCodeInvalidSession, "session not started", nil)
	}
	if err := s.pacer.Wait(ctx, targetURL); err != nil {
		return categorizeError(err, "waiting for host rate limit")
	}

	navCtx, cancel := context.WithTimeout(ctx, s.scraperCfg.NavigationTimeout)
	defer cancel()
	page, err := s.fetcher.Fetch(navCtx, targetURL)
	if err != nil {
		return categorizeError(err, "fetch failed")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return models.NewScrapeError(models.ErrCodeNavigation, "parse html", err)
	}
	title := page.Title
	if title == "" {
		title = extractTitle(page.HTML)
	}

	s.mu.Lock()
	s.doc, s.title = doc, title
	s.mu.Unlock()

	if err := settle(ctx, s.scraperCfg.SettleMin, s.scraperCfg.SettleMax); err != nil {
		return categorizeError(err, "settle wait interrupted")
	}
	return nil
}

func (s *DocumentSession) current() (*goquery.Document, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, "", models.NewScrapeError(models.ErrCodeInvalidSession, "session not started", nil)
	}
	if s.doc == nil {
		return nil, "", models.NewScrapeError(models.ErrCodeNavigation, "no page loaded", nil)
	}
	return s.doc, s.title, nil
}

func (s *DocumentSession) Query(ctx context.Context, selector string) (Element, error) {
	all, err := s.QueryAll(ctx, selector)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (s *DocumentSession) QueryAll(_ context.Context, selector string) ([]Element, error) {
	doc, _, err := s.current()
	if err != nil {
		return nil, err
	}
	m, err := compileSelector(selector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "bad selector "+selector, err)
	}
	return wrapSelection(doc.FindMatcher(m)), nil
}

// WaitUntil checks cond once: a static document never changes, so
// polling could not turn a miss into a hit.
func (s *DocumentSession) WaitUntil(ctx context.Context, cond func(context.Context) (bool, error), timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ok, err := cond(waitCtx)
	if err != nil && IsInvalidSession(err) {
		return false, err
	}
	return ok, nil
}

func (s *DocumentSession) Title(context.Context) (string, error) {
	_, title, err := s.current()
	return title, err
}

func (s *DocumentSession) BodyText(context.Context) (string, error) {
	doc, _, err := s.current()
	if err != nil {
		return "", err
	}
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return collapseSpace(body.Text()), nil
}

func (s *DocumentSession) HTML(context.Context) (string, error) {
	doc, _, err := s.current()
	if err != nil {
		return "", err
	}
	return doc.Html()
}

func (s *DocumentSession) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.doc = nil
	s.title = ""
}

var (
	matcherMu    sync.RWMutex
	matcherCache = make(map[string]cascadia.Selector)
)

func compileSelector(selector string) (cascadia.Selector, error) {
	matcherMu.RLock()
	m, ok := matcherCache[selector]
	matcherMu.RUnlock()
	if ok {
		return m, nil
	}
	compiled, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	matcherMu.Lock()
	matcherCache[selector] = compiled
	matcherMu.Unlock()
	return compiled, nil
}

type docElement struct {
	sel *goquery.Selection
}

func (e docElement) Text() (string, error) {
	return collapseSpace(e.sel.Text()), nil
}

func (e docElement) Attr(name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}

// StruckThrough inspects the element and up to three ancestors for strike
// tags, inline line-through styles, strike classes and Amazon's
// data-a-strike marker.
func (e docElement) StruckThrough() bool {
	node := e.sel
	for depth := 0; depth < 4 && node.Length() > 0; depth++ {
		if struck(node) {
			return true
		}
		node = node.Parent()
	}
	return false
}

func struck(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "s", "del", "strike":
		return true
	}
	if v, _ := s.Attr("data-a-strike"); v == "true" {
		return true
	}
	if style, ok := s.Attr("style"); ok && strings.Contains(strings.ReplaceAll(strings.ToLower(style), " ", ""), "line-through") {
		return true
	}
	class, _ := s.Attr("class")
	for _, c := range strings.Fields(strings.ToLower(class)) {
		if strings.Contains(c, "strike") || strings.Contains(c, "line-through") {
			return true
		}
	}
	return false
}

func (e docElement) Query(selector string) (Element, error) {
	m, err := compileSelector(selector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "bad selector "+selector, err)
	}
	found := e.sel.FindMatcher(m)
	if found.Length() == 0 {
		return nil, nil
	}
	return docElement{sel: found.First()}, nil
}

func (e docElement) QueryAll(selector string) ([]Element, error) {
	m, err := compileSelector(selector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "bad selector "+selector, err)
	}
	return wrapSelection(e.sel.FindMatcher(m)), nil
}

func wrapSelection(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, node *goquery.Selection) {
		out = append(out, docElement{sel: node})
	})
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
