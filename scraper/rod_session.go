package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

// navigatorOverrides complements stealth.JS with the locale an Indian
// shopper's desktop Chrome would report.
const navigatorOverrides = `() => {
	Object.defineProperty(navigator, 'languages', { get: () => ['en-IN', 'en'] });
	Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8 });
	if (!window.chrome) { window.chrome = { runtime: {} }; }
}`

const strikeThroughJS = `() => {
	let node = this;
	for (let depth = 0; node && node.nodeType === 1 && depth < 4; depth++, node = node.parentElement) {
		const tag = node.tagName;
		if (tag === 'S' || tag === 'DEL' || tag === 'STRIKE') return true;
		if (node.getAttribute('data-a-strike') === 'true') return true;
		const style = getComputedStyle(node);
		const deco = style.textDecorationLine || style.textDecoration || '';
		if (deco.includes('line-through')) return true;
	}
	return false;
}`

// RodSession drives one headless Chromium process with a single tab.
type RodSession struct {
	browserCfg config.BrowserConfig
	scraperCfg config.ScraperConfig
	pacer      *Pacer

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
}

// NewRodSession returns an unstarted session; call EnsureReady before use.
func NewRodSession(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig, pacer *Pacer) *RodSession {
	return &RodSession{browserCfg: browserCfg, scraperCfg: scraperCfg, pacer: pacer}
}

// EnsureReady launches the browser, retrying with linear backoff up to
// LaunchAttempts times before giving up with DRIVER_INIT_FAILED.
func (s *RodSession) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		return nil
	}

	attempts := max(s.browserCfg.LaunchAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = s.launch(); lastErr == nil {
			return nil
		}
		slog.Warn("browser launch failed", "attempt", attempt, "of", attempts, "error", lastErr)
		s.teardown()
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return models.NewScrapeError(models.ErrCodeDriverInit, "browser launch interrupted", ctx.Err())
		case <-time.After(time.Duration(attempt) * s.browserCfg.LaunchBackoff):
		}
	}
	return models.NewScrapeError(models.ErrCodeDriverInit,
		fmt.Sprintf("browser failed to start after %d attempts", attempts), lastErr)
}

// launch starts Chromium with the stealth launch flags and prepares a tab.
// Caller holds s.mu.
func (s *RodSession) launch() error {
	l := launcher.New().
		Headless(s.browserCfg.Headless).
		NoSandbox(s.browserCfg.NoSandbox)

	if s.browserCfg.BrowserBin != "" {
		l = l.Bin(s.browserCfg.BrowserBin)
	}
	if s.browserCfg.DefaultProxy != "" {
		l = l.Proxy(s.browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "en-IN")
	l.Set(flags.Flag("window-size"), "1366,768")
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	if err := s.preparePage(page); err != nil {
		_ = page.Close()
		return err
	}
	s.page = page
	slog.Info("browser session ready", "controlURL", controlURL)
	return nil
}

// preparePage must run before the first navigation: stealth scripts and
// request interception only apply to documents loaded after they are set.
func (s *RodSession) preparePage(page *rod.Page) error {
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("stealth injection: %w", err)
	}
	if _, err := page.EvalOnNewDocument("(" + navigatorOverrides + ")()"); err != nil {
		return fmt.Errorf("navigator overrides: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 1366, Height: 768, DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("viewport: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.browserCfg.UserAgent,
		AcceptLanguage: "en-IN,en;q=0.9",
		Platform:       "Win32",
	}); err != nil {
		return fmt.Errorf("user agent: %w", err)
	}
	if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(map[string]string{
		"Accept-Language":           "en-IN,en;q=0.9",
		"Upgrade-Insecure-Requests": "1",
	})}).Call(page); err != nil {
		return fmt.Errorf("extra headers: %w", err)
	}
	s.router = setupHijack(page, s.scraperCfg.BlockedResourceTypes)
	return nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

func (s *RodSession) currentPage() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidSession, "session not started", nil)
	}
	return s.page, nil
}

// Navigate paces per host, loads targetURL within NavigationTimeout and
// waits a randomized settle delay.
func (s *RodSession) Navigate(ctx context.Context, targetURL string) error {
	page, err := s.currentPage()
	if err != nil {
		return err
	}
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return models.NewScrapeError(models.ErrCodeInvalidURL, "cannot navigate to malformed URL", err)
	}
	if err := s.pacer.Wait(ctx, targetURL); err != nil {
		return categorizeError(err, "waiting for host rate limit")
	}

	navCtx, cancel := context.WithTimeout(ctx, s.scraperCfg.NavigationTimeout)
	defer cancel()
	p := page.Context(navCtx)
	if err := p.Navigate(targetURL); err != nil {
		return categorizeError(err, "navigation failed")
	}
	if err := p.WaitLoad(); err != nil {
		return categorizeError(err, "page did not finish loading")
	}
	if err := settle(ctx, s.scraperCfg.SettleMin, s.scraperCfg.SettleMax); err != nil {
		return categorizeError(err, "settle wait interrupted")
	}
	return nil
}

func (s *RodSession) Query(ctx context.Context, selector string) (Element, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}
	els, err := page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, categorizeError(err, "query "+selector)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return rodElement{el: els[0]}, nil
}

func (s *RodSession) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	page, err := s.currentPage()
	if err != nil {
		return nil, err
	}
	els, err := page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, categorizeError(err, "query "+selector)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = rodElement{el: el}
	}
	return out, nil
}

func (s *RodSession) WaitUntil(ctx context.Context, cond func(context.Context) (bool, error), timeout time.Duration) (bool, error) {
	return waitUntil(ctx, cond, timeout, s.scraperCfg.PollInterval)
}

func (s *RodSession) Title(ctx context.Context) (string, error) {
	return s.evalString(ctx, `() => document.title || ''`)
}

func (s *RodSession) BodyText(ctx context.Context) (string, error) {
	return s.evalString(ctx, `() => document.body ? document.body.innerText : ''`)
}

func (s *RodSession) HTML(ctx context.Context) (string, error) {
	page, err := s.currentPage()
	if err != nil {
		return "", err
	}
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", categorizeError(err, "read page html")
	}
	return html, nil
}

func (s *RodSession) evalString(ctx context.Context, js string) (string, error) {
	page, err := s.currentPage()
	if err != nil {
		return "", err
	}
	res, err := page.Context(ctx).Eval(js)
	if err != nil {
		return "", categorizeError(err, "evaluate page script")
	}
	return res.Value.Str(), nil
}

// Dispose stops interception, closes the browser and kills the process.
// Errors are logged, never returned.
func (s *RodSession) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
}

// teardown releases whatever launch got as far as creating. Caller holds s.mu.
func (s *RodSession) teardown() {
	if s.router != nil {
		_ = s.router.Stop()
		s.router = nil
	}
	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			slog.Debug("browser close failed", "error", err)
		}
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Text() (string, error) {
	t, err := e.el.Text()
	if err != nil {
		return "", categorizeError(err, "read element text")
	}
	return t, nil
}

func (e rodElement) Attr(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", categorizeError(err, "read element attribute")
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e rodElement) StruckThrough() bool {
	res, err := e.el.Eval(strikeThroughJS)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

func (e rodElement) Query(selector string) (Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, categorizeError(err, "query "+selector)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return rodElement{el: els[0]}, nil
}

func (e rodElement) QueryAll(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, categorizeError(err, "query "+selector)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = rodElement{el: el}
	}
	return out, nil
}
