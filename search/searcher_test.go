package search

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/match"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/scraper"
	"github.com/use-agent/pricewatch/vocab"
)

const query = "acme blender x200 1.5l black"

const rankedResults = `<html><head><title>Acme blender - Buy Products Online | Flipkart.com</title></head><body>
<div data-id="A0"><div class="Nx9bqj">₹5</div></div>
<div data-id="A1">
  <a class="wjcEIp" href="/acme-cover/p/itmc">Acme X200 Blender Jar Cover Black</a>
  <div class="Nx9bqj">₹299</div>
</div>
<div data-id="A2">
  <a class="wjcEIp" href="/acme-x200/p/itmb?pid=BLNX200">Acme X200 Blender 1.5 Litre - Black</a>
  <div class="Nx9bqj" style="text-decoration: line-through">₹14,999</div>
  <div class="Nx9bqj">₹11,999</div>
</div>
<div data-id="A3">
  <a class="wjcEIp" href="/acme-x200-b/p/itmd">Acme X200 Blender 1.5L Black</a>
  <div class="Nx9bqj">₹9,999</div>
</div>
</body></html>`

const unpricedFirstMatch = `<html><body>
<div data-id="A1">
  <a class="wjcEIp" href="/acme-x200/p/itmb">Acme X200 Blender 1.5L Black</a>
  <div class="Nx9bqj">Sold out</div>
</div>
<div data-id="A2">
  <a class="wjcEIp" href="/acme-x200-b/p/itmd">Acme X200 Blender 1.5 Litre</a>
  <div class="Nx9bqj">₹9,999</div>
</div>
</body></html>`

const noResults = `<html><body><p>Sorry, no results found!</p></body></html>`

const botWall = `<html><head><title>Flipkart</title></head><body>
<p>Are you a human? Please complete the captcha.</p></body></html>`

func newSearcher() *Searcher {
	m := match.New(vocab.Default().WithBrands("acme"), match.DefaultThreshold)
	return New(platform.DefaultProfiles(), m, Options{ResultWait: 50 * time.Millisecond, MaxCandidates: 8})
}

func newSession(t *testing.T, pages scraper.PageSet) *scraper.DocumentSession {
	t.Helper()
	cfg := config.ScraperConfig{NavigationTimeout: time.Second}
	s := scraper.NewDocumentSession(pages, cfg, nil)
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func searchURL(t *testing.T, p models.Platform) string {
	t.Helper()
	prof, err := platform.DefaultProfiles().Get(p)
	if err != nil {
		t.Fatal(err)
	}
	return prof.SearchURL(query)
}

func TestSearch(t *testing.T) {
	u := searchURL(t, models.Flipkart)
	tests := []struct {
		name       string
		page       string
		wantStatus models.Status
		wantPrice  float64
	}{
		{"first accepted candidate wins", rankedResults, models.StatusFound, 11999},
		{"no fall-through after unpriced match", unpricedFirstMatch, models.StatusNotFound, 0},
		{"empty results", noResults, models.StatusNotFound, 0},
		{"bot wall", botWall, models.StatusBlocked, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newSession(t, scraper.PageSet{u: tt.page})
			got, _ := newSearcher().Search(context.Background(), sess, models.Flipkart, query)
			if got.Status != tt.wantStatus || got.Price != tt.wantPrice {
				t.Errorf("Search = %+v, want status %s price %v", got, tt.wantStatus, tt.wantPrice)
			}
			if got.Platform != models.Flipkart {
				t.Errorf("Platform = %s", got.Platform)
			}
		})
	}
}

func TestSearchRecordsMatch(t *testing.T) {
	u := searchURL(t, models.Flipkart)
	got, _ := newSearcher().Search(context.Background(), newSession(t, scraper.PageSet{u: rankedResults}), models.Flipkart, query)
	if got.MatchedTitle != "Acme X200 Blender 1.5 Litre - Black" {
		t.Errorf("MatchedTitle = %q", got.MatchedTitle)
	}
	if got.ProductURL != "https://www.flipkart.com/acme-x200/p/itmb?pid=BLNX200" {
		t.Errorf("ProductURL = %q", got.ProductURL)
	}
}

func TestSearchMissingPage(t *testing.T) {
	got, _ := newSearcher().Search(context.Background(), newSession(t, scraper.PageSet{}), models.Croma, query)
	if got.Status != models.StatusNotFound {
		t.Errorf("Search = %+v, want not_found", got)
	}
}

func TestSearchCapsCandidates(t *testing.T) {
	u := searchURL(t, models.Flipkart)
	m := match.New(vocab.Default().WithBrands("acme"), match.DefaultThreshold)
	s := New(platform.DefaultProfiles(), m, Options{ResultWait: 50 * time.Millisecond, MaxCandidates: 2})
	// Only A0 (untitled) and A1 (accessory) are considered.
	got, _ := s.Search(context.Background(), newSession(t, scraper.PageSet{u: rankedResults}), models.Flipkart, query)
	if got.Status != models.StatusNotFound {
		t.Errorf("Search = %+v, want not_found", got)
	}
}

// dyingSession loses its browser on the first navigation.
type dyingSession struct {
	*scraper.DocumentSession
	navigations int
	disposed    int
}

func (d *dyingSession) Navigate(ctx context.Context, url string) error {
	d.navigations++
	if d.navigations == 1 {
		return io.EOF
	}
	return d.DocumentSession.Navigate(ctx, url)
}

func (d *dyingSession) Dispose() {
	d.disposed++
	d.DocumentSession.Dispose()
}

func TestSearchRecoversLostSession(t *testing.T) {
	u := searchURL(t, models.Flipkart)
	sess := &dyingSession{DocumentSession: newSession(t, scraper.PageSet{u: rankedResults})}
	got, _ := newSearcher().Search(context.Background(), sess, models.Flipkart, query)
	if got.Status != models.StatusFound || got.Price != 11999 {
		t.Errorf("Search = %+v, want found 11999", got)
	}
	if sess.navigations != 2 || sess.disposed != 1 {
		t.Errorf("navigations=%d disposed=%d, want 2/1", sess.navigations, sess.disposed)
	}
}

// deadSession never gets past navigation.
type deadSession struct {
	*scraper.DocumentSession
}

func (deadSession) Navigate(context.Context, string) error { return io.EOF }

func TestSearchReportsPersistentSessionLoss(t *testing.T) {
	sess := deadSession{newSession(t, scraper.PageSet{})}
	got, err := newSearcher().Search(context.Background(), sess, models.Amazon, query)
	if got.Status != models.StatusError || got.Display() != models.ErrorText {
		t.Errorf("Search = %+v, want error", got)
	}
	if err != nil {
		t.Errorf("a lost session is a per-platform failure, got %v", err)
	}
}

// unlaunchable loses the browser and cannot start a new one.
type unlaunchable struct {
	deadSession
}

func (unlaunchable) EnsureReady(context.Context) error {
	return models.NewScrapeError(models.ErrCodeDriverInit, "chrome gone", nil)
}

func TestSearchReportsDriverInitFailure(t *testing.T) {
	sess := unlaunchable{deadSession{newSession(t, scraper.PageSet{})}}
	got, err := newSearcher().Search(context.Background(), sess, models.Croma, query)
	if !errors.Is(err, models.ErrDriverInit) {
		t.Fatalf("err = %v, want DRIVER_INIT_FAILED", err)
	}
	if got.Status != models.StatusError || got.Platform != models.Croma {
		t.Errorf("Search = %+v, want croma error", got)
	}
}
