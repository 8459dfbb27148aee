package extractor

import (
	"context"
	"log/slog"

	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/platform"
	"github.com/use-agent/pricewatch/scraper"
)

// Detail is what a product page yields. Price is zero when no price
// was found.
type Detail struct {
	Title string
	Price float64
}

// Extractor reads product pages using the retailer profiles.
type Extractor struct {
	profiles platform.Profiles
}

func New(profiles platform.Profiles) *Extractor {
	return &Extractor{profiles: profiles}
}

// Extract loads url in sess and reads the product title and price for
// platform p. A dead session is restarted and the whole step retried once.
//
// The returned Detail always carries a title; UnknownProduct stands in when
// none could be read. Errors: ErrBlocked for bot walls, ErrPriceNotFound
// when the title was read but no price was, navigation errors otherwise.
func (x *Extractor) Extract(ctx context.Context, sess scraper.Session, p models.Platform, url string) (Detail, error) {
	return scraper.WithRecovery(ctx, sess, "extract "+string(p), func(ctx context.Context) (Detail, error) {
		if err := sess.Navigate(ctx, url); err != nil {
			return Detail{Title: models.UnknownProduct}, err
		}
		return x.ExtractLoaded(ctx, sess, p)
	})
}

// ExtractLoaded reads the page already loaded in sess.
func (x *Extractor) ExtractLoaded(ctx context.Context, sess scraper.Session, p models.Platform) (Detail, error) {
	prof, err := x.profiles.Get(p)
	if err != nil {
		return Detail{Title: models.UnknownProduct}, err
	}
	if err := CheckBlocked(ctx, sess); err != nil {
		return Detail{Title: models.UnknownProduct}, err
	}

	title, err := x.title(ctx, sess, prof)
	if err != nil {
		return Detail{Title: models.UnknownProduct}, err
	}

	price, ok, err := FirstSuccess(ctx, PriceStrategies(InSession(sess), prof.Price)...)
	if err != nil {
		return Detail{Title: title}, err
	}
	if !ok {
		slog.Info("price not found", "platform", p, "title", title)
		return Detail{Title: title}, models.ErrPriceNotFound
	}
	return Detail{Title: title, Price: price}, nil
}

// title tries the profile selectors, the cleaned document title and then
// readability's title over the page HTML.
func (x *Extractor) title(ctx context.Context, sess scraper.Session, prof *platform.Profile) (string, error) {
	docTitle := func(ctx context.Context) (string, bool, error) {
		t, err := sess.Title(ctx)
		if err != nil {
			return "", false, err
		}
		t = prof.CleanTitle(t)
		return t, t != "", nil
	}
	strategies := append(TextStrategies(InSession(sess), prof.Title), docTitle, readableTitle(sess, prof))

	title, ok, err := FirstSuccess(ctx, strategies...)
	if err != nil {
		return "", err
	}
	if !ok {
		return models.UnknownProduct, nil
	}
	return title, nil
}

// CheckBlocked returns ErrBlocked when the loaded page is a bot wall.
func CheckBlocked(ctx context.Context, sess scraper.Session) error {
	title, err := sess.Title(ctx)
	if err != nil && scraper.IsInvalidSession(err) {
		return err
	}
	body, err := sess.BodyText(ctx)
	if err != nil && scraper.IsInvalidSession(err) {
		return err
	}
	if pattern, blocked := DetectBlock(title, body); blocked {
		slog.Warn("bot wall detected", "pattern", pattern, "title", title)
		return models.ErrBlocked
	}
	return nil
}
