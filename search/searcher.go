// Package search looks a normalized query up on a retailer's search page
// and prices the first result that matches.
package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/pricewatch/extractor"
	"github.com/use-agent/pricewatch/match"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/scraper"
)

// Options tunes result enumeration.
type Options struct {
	ResultWait    time.Duration
	MaxCandidates int
}

// Searcher searches one platform at a time. It holds no per-call state.
type Searcher struct {
	profiles platform.Profiles
	matcher  *match.Matcher
	opts     Options
}

func New(profiles platform.Profiles, matcher *match.Matcher, opts Options) *Searcher {
	if opts.ResultWait <= 0 {
		opts.ResultWait = 15 * time.Second
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 8
	}
	return &Searcher{profiles: profiles, matcher: matcher, opts: opts}
}

// Search returns p's price for the product query describes. Faults are
// folded into the result status; a dead session is recreated and the
// platform search retried once. The error is non-nil only when the browser
// cannot be started again (ErrDriverInit), which ends the whole comparison.
func (s *Searcher) Search(ctx context.Context, sess scraper.Session, p models.Platform, query string) (models.PlatformResult, error) {
	res, err := scraper.WithRecovery(ctx, sess, "search "+string(p), func(ctx context.Context) (models.PlatformResult, error) {
		return s.search(ctx, sess, p, query)
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, models.ErrDriverInit):
		return models.Failed(p, err), err
	case errors.Is(err, models.ErrBlocked):
		return models.Blocked(p), nil
	default:
		slog.Warn("search failed", "platform", p, "query", query, "error", err)
		return models.Failed(p, err), nil
	}
}

func (s *Searcher) search(ctx context.Context, sess scraper.Session, p models.Platform, query string) (models.PlatformResult, error) {
	prof, err := s.profiles.Get(p)
	if err != nil {
		return models.PlatformResult{}, err
	}
	searchURL := prof.SearchURL(query)
	slog.Debug("searching", "platform", p, "url", searchURL)

	if err := sess.Navigate(ctx, searchURL); err != nil {
		return models.PlatformResult{}, err
	}
	if err := extractor.CheckBlocked(ctx, sess); err != nil {
		return models.PlatformResult{}, err
	}

	containers, err := s.waitForResults(ctx, sess, prof)
	if err != nil {
		return models.PlatformResult{}, err
	}
	if len(containers) == 0 {
		slog.Info("no search results", "platform", p, "query", query)
		return models.NotFound(p), nil
	}
	if len(containers) > s.opts.MaxCandidates {
		containers = containers[:s.opts.MaxCandidates]
	}

	for i, el := range containers {
		find := extractor.InElement(el)
		title, ok, err := extractor.FirstSuccess(ctx, extractor.TextStrategies(find, prof.CandidateTitle)...)
		if err != nil {
			return models.PlatformResult{}, err
		}
		if !ok {
			continue
		}
		score := s.matcher.Score(query, title)
		if !score.Accepted {
			slog.Debug("candidate rejected", "platform", p, "rank", i, "title", title, "score", score.String())
			continue
		}

		price, ok, err := extractor.FirstSuccess(ctx, extractor.PriceStrategies(find, prof.CandidatePrice)...)
		if err != nil {
			return models.PlatformResult{}, err
		}
		if !ok {
			// The accepted candidate decides the platform; trying the next
			// one could price a different product.
			slog.Info("matched candidate has no price", "platform", p, "title", title)
			return models.NotFound(p), nil
		}

		res := models.Found(p, price)
		res.MatchedTitle = title
		if href, ok, _ := extractor.FirstSuccess(ctx, extractor.TextStrategies(find, prof.CandidateLink)...); ok {
			res.ProductURL = prof.ResolveLink(href)
		}
		slog.Info("match found", "platform", p, "rank", i, "title", title, "price", price, "reason", score.Reason)
		return res, nil
	}
	return models.NotFound(p), nil
}

// waitForResults waits until one of the result container selectors
// matches and returns that selector's elements in page order.
func (s *Searcher) waitForResults(ctx context.Context, sess scraper.Session, prof *platform.Profile) ([]scraper.Element, error) {
	var found []scraper.Element
	cond := func(ctx context.Context) (bool, error) {
		for _, sel := range prof.Results {
			els, err := sess.QueryAll(ctx, sel.CSS)
			if err != nil {
				return false, err
			}
			if len(els) > 0 {
				found = els
				return true, nil
			}
		}
		return false, nil
	}
	ok, err := sess.WaitUntil(ctx, cond, s.opts.ResultWait)
	if err != nil || !ok {
		return nil, err
	}
	return found, nil
}
