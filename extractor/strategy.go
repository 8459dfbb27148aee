// Package extractor reads a product's title and current price from a
// loaded retailer page using ordered selector fallbacks.
package extractor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/scraper"
)

// Strategy is one way of obtaining a value. ok is false when the strategy
// found nothing; err is reserved for failures worth reporting.
type Strategy[T any] func(ctx context.Context) (value T, ok bool, err error)

// FirstSuccess tries strategies in order and returns the first value found.
// A dead session aborts the chain so the caller can recover; any other
// strategy error is logged and the next strategy runs.
func FirstSuccess[T any](ctx context.Context, strategies ...Strategy[T]) (T, bool, error) {
	var zero T
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}
		v, ok, err := s(ctx)
		if err != nil {
			if scraper.IsInvalidSession(err) {
				return zero, false, err
			}
			slog.Debug("strategy failed", "index", i, "error", err)
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	return zero, false, nil
}

// Finder lists the elements matching a CSS selector within some scope.
type Finder func(ctx context.Context, css string) ([]scraper.Element, error)

// InSession searches the whole loaded document.
func InSession(sess scraper.Session) Finder {
	return sess.QueryAll
}

// InElement searches the descendants of el.
func InElement(el scraper.Element) Finder {
	return func(_ context.Context, css string) ([]scraper.Element, error) {
		return el.QueryAll(css)
	}
}

// Read returns the selector's attribute or the element text, trimmed.
func Read(el scraper.Element, sel platform.Selector) (string, error) {
	var (
		v   string
		err error
	)
	if sel.Attr != "" {
		v, err = el.Attr(sel.Attr)
	} else {
		v, err = el.Text()
	}
	return strings.TrimSpace(v), err
}

// TextStrategies yields one strategy per selector; each returns the first
// non-empty value among its matches.
func TextStrategies(find Finder, sels []platform.Selector) []Strategy[string] {
	out := make([]Strategy[string], 0, len(sels))
	for _, sel := range sels {
		out = append(out, func(ctx context.Context) (string, bool, error) {
			els, err := find(ctx, sel.CSS)
			if err != nil {
				return "", false, err
			}
			for _, el := range els {
				v, err := Read(el, sel)
				if err != nil {
					return "", false, err
				}
				if v != "" {
					return v, true, nil
				}
			}
			return "", false, nil
		})
	}
	return out
}

// PriceStrategies yields one strategy per selector; each returns the first
// positive price among its matches, skipping struck-through elements.
func PriceStrategies(find Finder, sels []platform.Selector) []Strategy[float64] {
	out := make([]Strategy[float64], 0, len(sels))
	for _, sel := range sels {
		out = append(out, func(ctx context.Context) (float64, bool, error) {
			els, err := find(ctx, sel.CSS)
			if err != nil {
				return 0, false, err
			}
			for _, el := range els {
				if el.StruckThrough() {
					continue
				}
				text, err := Read(el, sel)
				if err != nil {
					return 0, false, err
				}
				if price, err := ParsePrice(text); err == nil {
					return price, true, nil
				}
			}
			return 0, false, nil
		})
	}
	return out
}
