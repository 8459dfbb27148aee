package compare

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/extractor"
	"github.com/use-agent/pricewatch/match"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/query"
	"github.com/use-agent/pricewatch/scraper"
	"github.com/use-agent/pricewatch/search"
	"github.com/use-agent/pricewatch/vocab"
)

const originURL = "https://www.flipkart.com/acme-blender-x200/p/itmacme1"

const originPage = `<html><head><title>Acme Blender X200 1.5L Black | Flipkart.com</title></head><body>
<h1><span class="VU-ZEz">Acme Blender X200 1.5L Black</span></h1>
<div class="Nx9bqj CxhGGd">₹12,999</div>
</body></html>`

const amazonResults = `<html><head><title>Amazon.in : acme blender x200</title></head><body>
<div data-component-type="s-search-result" data-asin="B0ACME0001">
  <h2><a href="/Acme-X200-Blender/dp/B0ACME0001"><span>Acme X200 Blender 1.5 Litre - Black</span></a></h2>
  <span class="a-price a-text-price" data-a-strike="true"><span class="a-offscreen">₹15,999</span></span>
  <span class="a-price"><span class="a-offscreen">₹11,999</span></span>
</div>
</body></html>`

const wall = `<html><head><title>Robot Check</title></head><body>
<p>Enter the characters you see below</p></body></html>`

var testVocab = vocab.Default().WithBrands("acme")

func searchURL(t *testing.T, p models.Platform) string {
	t.Helper()
	prof, err := platform.DefaultProfiles().Get(p)
	if err != nil {
		t.Fatal(err)
	}
	return prof.SearchURL("acme blender x200 1.5l black")
}

func scenarioPages(t *testing.T) scraper.PageSet {
	pages := scraper.PageSet{originURL: originPage}
	pages[searchURL(t, models.Amazon)] = amazonResults
	pages["https://www.amazon.in/dp/WALL000001"] = wall
	return pages
}

func newOrchestrator(t *testing.T, factory engine.SessionFactory, cooldown *engine.Cooldown) *Orchestrator {
	t.Helper()
	profiles := platform.DefaultProfiles()
	pool := engine.NewSessionPool(1, config.PoolConfig{}, "http", factory)
	t.Cleanup(pool.Stop)
	return New(
		pool,
		extractor.New(profiles),
		query.New(testVocab, profiles),
		search.New(profiles, match.New(testVocab, match.DefaultThreshold), search.Options{ResultWait: 50 * time.Millisecond}),
		cooldown,
	)
}

func documentSessions(pages scraper.PageSet) engine.SessionFactory {
	return func() scraper.Session {
		return scraper.NewDocumentSession(pages, config.ScraperConfig{NavigationTimeout: time.Second}, nil)
	}
}

func TestOriginSuccessOneCrossMatch(t *testing.T) {
	o := newOrchestrator(t, documentSessions(scenarioPages(t)), nil)
	title, prices := o.GetProductDetails(context.Background(), originURL)

	if title != "Acme Blender X200 1.5L Black" {
		t.Errorf("title = %q", title)
	}
	want := map[string]string{"flipkart": "12999", "amazon": "11999", "croma": "Not found"}
	for k, v := range want {
		if prices[k] != v {
			t.Errorf("prices[%s] = %q, want %q", k, prices[k], v)
		}
	}

	out := o.Compare(context.Background(), originURL)
	if out.Query != "acme blender x200 1.5l black" {
		t.Errorf("Query = %q", out.Query)
	}
	amazon := out.Results[models.Amazon]
	if amazon.MatchedTitle != "Acme X200 Blender 1.5 Litre - Black" || amazon.ProductURL != "https://www.amazon.in/Acme-X200-Blender/dp/B0ACME0001" {
		t.Errorf("amazon result = %+v", amazon)
	}
	if out.Origin != models.Flipkart || out.Results[models.Flipkart].ProductURL != originURL {
		t.Errorf("origin = %s %+v", out.Origin, out.Results[models.Flipkart])
	}
}

func TestInvalidURL(t *testing.T) {
	o := newOrchestrator(t, documentSessions(nil), nil)
	title, prices := o.GetProductDetails(context.Background(), "https://unknown-shop.example/item/1")
	if title != models.InvalidURLText {
		t.Errorf("title = %q", title)
	}
	for _, p := range models.Platforms() {
		if prices[string(p)] != models.InvalidURLText {
			t.Errorf("prices[%s] = %q", p, prices[string(p)])
		}
	}
}

func TestEveryPlatformAlwaysReported(t *testing.T) {
	o := newOrchestrator(t, documentSessions(scenarioPages(t)), nil)
	urls := []string{
		originURL,
		"https://www.croma.com/missing/p/999999",
		"https://www.amazon.in/dp/WALL000001",
		"https://unknown-shop.example/item/1",
		"not a url",
		"",
	}
	sentinels := map[string]bool{models.NotFoundText: true, models.ErrorText: true, models.InvalidURLText: true}
	for _, u := range urls {
		title, prices := o.GetProductDetails(context.Background(), u)
		if title == "" {
			t.Errorf("%q: empty title", u)
		}
		if len(prices) != len(models.Platforms()) {
			t.Errorf("%q: %d keys, want %d", u, len(prices), len(models.Platforms()))
		}
		for _, p := range models.Platforms() {
			v, ok := prices[string(p)]
			if !ok {
				t.Errorf("%q: missing %s", u, p)
				continue
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil && !sentinels[v] {
				t.Errorf("%q: prices[%s] = %q is neither a number nor a sentinel", u, p, v)
			}
		}
	}
}

func TestUnknownTitleSkipsSearch(t *testing.T) {
	o := newOrchestrator(t, documentSessions(scenarioPages(t)), nil)
	out := o.Compare(context.Background(), "https://www.croma.com/missing/p/999999")
	if out.ProductTitle != models.UnknownProduct || out.Query != "" {
		t.Errorf("outcome = %+v", out)
	}
	for _, p := range models.Platforms() {
		if out.Results[p].Status != models.StatusNotFound {
			t.Errorf("%s = %+v, want not_found", p, out.Results[p])
		}
	}
}

// crashOnce loses the browser the first time each listed URL is loaded.
type crashOnce struct {
	*scraper.DocumentSession
	mu      *sync.Mutex
	pending map[string]bool
}

func (c crashOnce) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	crash := c.pending[url]
	delete(c.pending, url)
	c.mu.Unlock()
	if crash {
		return io.EOF
	}
	return c.DocumentSession.Navigate(ctx, url)
}

func TestSearchRecoversFromLostSession(t *testing.T) {
	pages := scenarioPages(t)
	pending := map[string]bool{searchURL(t, models.Amazon): true}
	factory := func() scraper.Session {
		return crashOnce{
			DocumentSession: scraper.NewDocumentSession(pages, config.ScraperConfig{NavigationTimeout: time.Second}, nil),
			mu:              &sync.Mutex{},
			pending:         pending,
		}
	}
	o := newOrchestrator(t, factory, nil)
	_, prices := o.GetProductDetails(context.Background(), originURL)
	if prices["amazon"] != "11999" || prices["flipkart"] != "12999" || prices["croma"] != models.NotFoundText {
		t.Errorf("prices = %v", prices)
	}
	if len(pending) != 0 {
		t.Error("crash was never injected")
	}
}

type panicSession struct{ scraper.Session }

func (panicSession) EnsureReady(context.Context) error { return nil }

func (panicSession) Navigate(context.Context, string) error { panic("renderer exploded") }

func (panicSession) Dispose() {}

func TestPanicBecomesErrorOutcome(t *testing.T) {
	o := newOrchestrator(t, func() scraper.Session { return panicSession{} }, nil)
	title, prices := o.GetProductDetails(context.Background(), originURL)
	if title != models.ErrorDuringProcess {
		t.Errorf("title = %q", title)
	}
	for _, p := range models.Platforms() {
		if prices[string(p)] != models.ErrorText {
			t.Errorf("prices[%s] = %q", p, prices[string(p)])
		}
	}
	// The pool must still hand out a session afterwards.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if title, _ := o.GetProductDetails(ctx, originURL); title != models.ErrorDuringProcess {
		t.Errorf("second call title = %q", title)
	}
}

type brokenDriver struct{ scraper.Session }

func (brokenDriver) EnsureReady(context.Context) error {
	return models.NewScrapeError(models.ErrCodeDriverInit, "chrome missing", nil)
}
func (brokenDriver) Dispose() {}

func TestDriverInitFailure(t *testing.T) {
	o := newOrchestrator(t, func() scraper.Session { return brokenDriver{} }, nil)
	out := o.Compare(context.Background(), originURL)
	if out.ProductTitle != models.ErrorDuringProcess {
		t.Errorf("title = %q", out.ProductTitle)
	}
	for _, p := range models.Platforms() {
		if out.Results[p].Status != models.StatusError {
			t.Errorf("%s = %+v", p, out.Results[p])
		}
	}
}

// dyingDriver serves the origin, then loses the browser on the first
// search and cannot launch a new one.
type dyingDriver struct {
	*scraper.DocumentSession
	crashOn  string
	launches *int
}

func (d dyingDriver) EnsureReady(ctx context.Context) error {
	*d.launches++
	if *d.launches > 1 {
		return models.NewScrapeError(models.ErrCodeDriverInit, "chrome gone", nil)
	}
	return d.DocumentSession.EnsureReady(ctx)
}

func (d dyingDriver) Navigate(ctx context.Context, url string) error {
	if url == d.crashOn {
		return io.EOF
	}
	return d.DocumentSession.Navigate(ctx, url)
}

func TestDriverLossDuringSearchEndsComparison(t *testing.T) {
	pages := scenarioPages(t)
	launches := 0
	factory := func() scraper.Session {
		return dyingDriver{
			DocumentSession: scraper.NewDocumentSession(pages, config.ScraperConfig{NavigationTimeout: time.Second}, nil),
			crashOn:         searchURL(t, models.Amazon),
			launches:        &launches,
		}
	}
	o := newOrchestrator(t, factory, nil)
	out := o.Compare(context.Background(), originURL)

	if launches != 2 {
		t.Errorf("EnsureReady called %d times, want 2", launches)
	}
	if out.ProductTitle != "Acme Blender X200 1.5L Black" || out.Results[models.Flipkart].Price != 12999 {
		t.Errorf("origin slot lost: %q %+v", out.ProductTitle, out.Results[models.Flipkart])
	}
	for _, p := range []models.Platform{models.Amazon, models.Croma} {
		if r := out.Results[p]; r.Status != models.StatusError {
			t.Errorf("%s = %+v, want error", p, r)
		}
	}
}

func TestBlockedOriginStartsCooldown(t *testing.T) {
	cd := engine.NewCooldown(time.Minute)
	defer cd.Stop()
	o := newOrchestrator(t, documentSessions(scenarioPages(t)), cd)

	out := o.Compare(context.Background(), "https://www.amazon.in/dp/WALL000001")
	if out.Results[models.Amazon].Status != models.StatusBlocked {
		t.Errorf("amazon = %+v, want blocked", out.Results[models.Amazon])
	}
	if out.Prices()["amazon"] != models.ErrorText {
		t.Errorf("blocked should render as %q", models.ErrorText)
	}
	if !cd.Active(string(models.Amazon)) {
		t.Error("cooldown not tripped")
	}

	// A later comparison skips the cooling retailer without loading it.
	out = o.Compare(context.Background(), originURL)
	if out.Results[models.Amazon].Status != models.StatusBlocked || out.Results[models.Flipkart].Price != 12999 {
		t.Errorf("outcome during cooldown = %+v", out.Results)
	}
}
