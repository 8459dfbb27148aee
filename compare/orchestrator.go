// Package compare runs one cross-retailer price comparison: identify the
// origin retailer, read the product there, then search the others.
package compare

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/use-agent/pricewatch/engine"
	"github.com/use-agent/pricewatch/extractor"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/query"
	"github.com/use-agent/pricewatch/scraper"
	"github.com/use-agent/pricewatch/search"
)

// Orchestrator is safe for concurrent use; each call checks out its own
// session from the pool.
type Orchestrator struct {
	pool       *engine.SessionPool
	extractor  *extractor.Extractor
	normalizer *query.Normalizer
	searcher   *search.Searcher
	cooldown   *engine.Cooldown
}

// New wires an orchestrator. cooldown may be nil.
func New(pool *engine.SessionPool, x *extractor.Extractor, n *query.Normalizer, s *search.Searcher, cooldown *engine.Cooldown) *Orchestrator {
	return &Orchestrator{pool: pool, extractor: x, normalizer: n, searcher: s, cooldown: cooldown}
}

// GetProductDetails returns the product title and a price or sentinel
// string for every supported retailer. It never panics and never returns a
// partial key set.
func (o *Orchestrator) GetProductDetails(ctx context.Context, rawURL string) (string, map[string]string) {
	out := o.Compare(ctx, rawURL)
	return out.ProductTitle, out.Prices()
}

// Compare is GetProductDetails with structured per-retailer results.
func (o *Orchestrator) Compare(ctx context.Context, rawURL string) (out models.ExtractionOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during comparison", "url", rawURL, "panic", r, "stack", string(debug.Stack()))
			out = errorOutcome()
		}
	}()

	origin, productID, ok := platform.Identify(rawURL)
	if !ok {
		slog.Info("unsupported url", "url", rawURL)
		return models.NewOutcome(models.InvalidURLText, models.InvalidURL)
	}
	slog.Debug("identified", "platform", origin, "product_id", productID)

	h, err := o.pool.Get(ctx)
	if err != nil {
		slog.Error("no browser session", "url", rawURL, "error", err)
		return errorOutcome()
	}
	healthy := false
	defer func() { o.pool.Put(h, healthy) }()

	sess := h.Session()
	if err := sess.EnsureReady(ctx); err != nil {
		slog.Error("browser start failed", "url", rawURL, "error", err)
		return errorOutcome()
	}

	out, healthy = o.run(ctx, sess, origin, rawURL)
	slog.Info("comparison finished",
		"url", rawURL,
		"title", out.ProductTitle,
		"query", out.Query,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// run walks origin extraction, normalization and the per-retailer
// searches. healthy is false when the session misbehaved along the way.
func (o *Orchestrator) run(ctx context.Context, sess scraper.Session, origin models.Platform, rawURL string) (models.ExtractionOutcome, bool) {
	out := models.ExtractionOutcome{
		Origin:  origin,
		Results: make(map[models.Platform]models.PlatformResult, len(models.Platforms())),
	}
	healthy := true

	if o.cooldown.Active(string(origin)) {
		slog.Info("origin retailer cooling down", "platform", origin)
		out.ProductTitle = models.UnknownProduct
		out.Results[origin] = models.Blocked(origin)
	} else {
		d, err := o.extractor.Extract(ctx, sess, origin, rawURL)
		if errors.Is(err, models.ErrDriverInit) {
			slog.Error("browser restart failed", "url", rawURL, "error", err)
			return errorOutcome(), false
		}
		out.ProductTitle = d.Title
		out.Results[origin] = o.originResult(origin, rawURL, d, err)
		if out.Results[origin].Status == models.StatusError {
			healthy = false
		}
	}

	if out.ProductTitle == "" || out.ProductTitle == models.UnknownProduct {
		out.ProductTitle = models.UnknownProduct
		for _, p := range models.Platforms() {
			if p != origin {
				out.Results[p] = models.NotFound(p)
			}
		}
		return out, healthy
	}

	out.Query = o.normalizer.Normalize(out.ProductTitle, rawURL)
	slog.Debug("normalized", "title", out.ProductTitle, "query", out.Query)

	var driverErr error
	for _, p := range models.Platforms() {
		if p == origin {
			continue
		}
		if driverErr != nil {
			out.Results[p] = models.Failed(p, driverErr)
			continue
		}
		if err := ctx.Err(); err != nil {
			out.Results[p] = models.Failed(p, err)
			continue
		}
		if o.cooldown.Active(string(p)) {
			slog.Info("retailer cooling down", "platform", p)
			out.Results[p] = models.Blocked(p)
			continue
		}
		r, err := o.searcher.Search(ctx, sess, p, out.Query)
		if err != nil {
			// Driver is gone; remaining retailers fail without a relaunch.
			slog.Error("browser restart failed during search", "platform", p, "url", rawURL, "error", err)
			driverErr = err
			healthy = false
		}
		switch r.Status {
		case models.StatusBlocked:
			o.cooldown.Trip(string(p))
		case models.StatusError:
			healthy = false
		}
		out.Results[p] = r
	}
	return out, healthy
}

func (o *Orchestrator) originResult(p models.Platform, rawURL string, d extractor.Detail, err error) models.PlatformResult {
	var r models.PlatformResult
	switch {
	case err == nil:
		r = models.Found(p, d.Price)
	case errors.Is(err, models.ErrBlocked):
		o.cooldown.Trip(string(p))
		return models.Blocked(p)
	case errors.Is(err, models.ErrPriceNotFound):
		r = models.NotFound(p)
	default:
		slog.Warn("origin extraction failed", "platform", p, "url", rawURL, "error", err)
		return models.Failed(p, err)
	}
	r.ProductURL = rawURL
	if d.Title != models.UnknownProduct {
		r.MatchedTitle = d.Title
	}
	return r
}

func errorOutcome() models.ExtractionOutcome {
	return models.NewOutcome(models.ErrorDuringProcess, func(p models.Platform) models.PlatformResult {
		return models.Failed(p, nil)
	})
}
