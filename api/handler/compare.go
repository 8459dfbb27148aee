package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/models"
)

// Comparer runs one cross-retailer comparison. *compare.Orchestrator
// satisfies it.
type Comparer interface {
	Compare(ctx context.Context, rawURL string) models.ExtractionOutcome
}

// Compare returns a handler for POST /api/v1/compare.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Serve from cache when the caller allows a max_age.
//  3. Run the comparison under the request timeout.
//  4. Map the outcome onto a CompareResponse and status code.
func Compare(cmp Comparer, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.CompareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.NewErrorResponse(models.ErrCodeInvalidInput, err.Error()))
			return
		}
		req.Defaults()

		// ── 2. Cache lookup ─────────────────────────────────────────
		maxAge := time.Duration(req.MaxAge) * time.Second
		cacheKey := cache.Key(req.URL)
		if cc != nil && maxAge > 0 {
			if cached, hit := cc.Get(cacheKey, maxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Compare ──────────────────────────────────────────────
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(req.Timeout)*time.Second)
		defer cancel()
		out := cmp.Compare(ctx, req.URL)

		resp := &models.CompareResponse{
			Success:     true,
			ProductName: out.ProductTitle,
			Prices:      out.Prices(),
			Results:     out.Ordered(),
			Timing:      models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()},
		}

		// ── 4. Failure mapping ──────────────────────────────────────
		if err := outcomeError(ctx, out); err != nil {
			resp.Success = false
			resp.Error = err.ToDetail()
			c.JSON(mapErrorToStatus(err), resp)
			return
		}

		// Only outcomes carrying at least one price are cached.
		if cc != nil && maxAge > 0 && out.AnyFound() {
			cc.Set(cacheKey, resp)
			resp = withCacheStatus(resp, "miss")
		}
		c.JSON(http.StatusOK, resp)
	}
}

// outcomeError returns nil when the comparison ran, even if individual
// retailers came back empty.
func outcomeError(ctx context.Context, out models.ExtractionOutcome) *models.ScrapeError {
	switch out.ProductTitle {
	case models.InvalidURLText:
		return models.NewScrapeError(models.ErrCodeInvalidURL, "url is not a supported amazon, flipkart or croma product page", nil)
	case models.ErrorDuringProcess:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.NewScrapeError(models.ErrCodeTimeout, "comparison timed out", ctx.Err())
		}
		return models.NewScrapeError(models.ErrCodeInternal, models.ErrorDuringProcess, nil)
	}
	return nil
}

// withCacheStatus copies resp so the cached value stays untouched.
func withCacheStatus(resp *models.CompareResponse, status string) *models.CompareResponse {
	cp := *resp
	cp.CacheStatus = status
	return &cp
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeInvalidURL:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
