package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/use-agent/pricewatch/models"
)

// Session is one exclusive browsing context. It is not safe for concurrent
// use; the engine pool hands each session to one caller at a time.
//
// Any method may return an error for which IsInvalidSession is true when
// the underlying browser has died. Callers recover with WithRecovery.
type Session interface {
	// EnsureReady starts the browser if it is not running. Idempotent.
	EnsureReady(ctx context.Context) error

	// Navigate loads url and waits for the document to settle.
	Navigate(ctx context.Context, url string) error

	// Query returns the first element matching selector, or nil when
	// nothing matches. It never waits.
	Query(ctx context.Context, selector string) (Element, error)

	// QueryAll returns every element matching selector in document order.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// WaitUntil polls cond until it reports true, the timeout passes or
	// ctx ends. A timeout is reported as (false, nil).
	WaitUntil(ctx context.Context, cond func(context.Context) (bool, error), timeout time.Duration) (bool, error)

	// Title returns document.title.
	Title(ctx context.Context) (string, error)

	// BodyText returns the visible text of the document body.
	BodyText(ctx context.Context) (string, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	// Dispose releases the browser. It never fails and may be called
	// repeatedly; EnsureReady starts a fresh browser afterwards.
	Dispose()
}

// Element is a node found by Session.Query or Element.Query.
type Element interface {
	Text() (string, error)

	// Attr returns the attribute value, or "" when it is absent.
	Attr(name string) (string, error)

	// StruckThrough reports whether the element renders with a
	// line-through decoration, directly or through a close ancestor.
	StruckThrough() bool

	// Query and QueryAll search the element's descendants.
	Query(selector string) (Element, error)
	QueryAll(selector string) ([]Element, error)
}

// invalidSessionHints are substrings of CDP and transport errors raised
// after the browser process or its target has gone away.
var invalidSessionHints = []string{
	"use of closed network connection",
	"cdp connection closed",
	"websocket: close",
	"target closed",
	"no target with given id",
	"session with given id not found",
	"session closed",
	"browser has disconnected",
	"connection reset by peer",
	"broken pipe",
}

// IsInvalidSession reports whether err means the session must be
// disposed and recreated before it can be used again.
func IsInvalidSession(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrInvalidSession) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range invalidSessionHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// categorizeError wraps raw errors into typed ScrapeErrors so callers can
// tell timeouts and dead sessions from ordinary navigation failures.
func categorizeError(err error, msg string) error {
	var se *models.ScrapeError
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	case IsInvalidSession(err):
		return models.NewScrapeError(models.ErrCodeInvalidSession, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

// WithRecovery runs fn against sess. If fn fails because the session died,
// the session is disposed, started again and fn is retried exactly once.
func WithRecovery[T any](ctx context.Context, sess Session, step string, fn func(context.Context) (T, error)) (T, error) {
	res, err := fn(ctx)
	if !IsInvalidSession(err) {
		return res, err
	}

	slog.Warn("session lost, recreating", "step", step, "error", err)
	sess.Dispose()
	if readyErr := sess.EnsureReady(ctx); readyErr != nil {
		var zero T
		return zero, readyErr
	}
	return fn(ctx)
}

// waitUntil is the polling loop shared by the Session implementations.
func waitUntil(ctx context.Context, cond func(context.Context) (bool, error), timeout, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := cond(waitCtx)
		if err != nil && (IsInvalidSession(err) || ctx.Err() != nil) {
			return false, err
		}
		if ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-waitCtx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}

// settle sleeps for a random duration in [lo, hi] so page scripts can
// finish rendering and request timing looks less mechanical.
func settle(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d += rand.N(hi - lo)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
