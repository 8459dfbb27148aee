package extractor

import (
	"context"
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/scraper"
)

// readableTitle runs Mozilla Readability over the loaded page and offers the
// article title it settles on: og:title or dc:title metadata, the document
// title with site separators removed, or the page's only h1. The result is
// passed through the retailer's title cleanup.
func readableTitle(sess scraper.Session, prof *platform.Profile) Strategy[string] {
	return func(ctx context.Context) (string, bool, error) {
		html, err := sess.HTML(ctx)
		if err != nil {
			return "", false, err
		}
		base, err := nurl.Parse(prof.BaseURL)
		if err != nil {
			return "", false, nil
		}
		article, err := readability.FromReader(strings.NewReader(html), base)
		if err != nil {
			slog.Debug("readability: title extraction failed", "platform", prof.Platform, "error", err)
			return "", false, nil
		}
		t := prof.CleanTitle(article.Title)
		return t, t != "", nil
	}
}
