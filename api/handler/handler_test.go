package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pricewatch/cache"
	"github.com/use-agent/pricewatch/models"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeComparer struct {
	calls atomic.Int32
	out   models.ExtractionOutcome
}

func (f *fakeComparer) Compare(ctx context.Context, rawURL string) models.ExtractionOutcome {
	f.calls.Add(1)
	return f.out
}

func foundOutcome() models.ExtractionOutcome {
	out := models.NewOutcome("Acme Blender X200", models.NotFound)
	out.Origin = models.Flipkart
	out.Results[models.Flipkart] = models.Found(models.Flipkart, 12999)
	out.Results[models.Amazon] = models.Found(models.Amazon, 11999.5)
	return out
}

func serve(h gin.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.Handle(method, "/", h)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) models.CompareResponse {
	t.Helper()
	var resp models.CompareResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		out        models.ExtractionOutcome
		wantStatus int
		wantOK     bool
		wantCode   string
		wantPrices map[string]string
	}{
		{
			name:       "comparison ran",
			body:       `{"url":"https://www.flipkart.com/acme/p/itmacme1"}`,
			out:        foundOutcome(),
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantPrices: map[string]string{"flipkart": "12999", "amazon": "11999.50", "croma": "Not found"},
		},
		{
			name:       "unsupported retailer",
			body:       `{"url":"https://shop.example/item/1"}`,
			out:        models.NewOutcome(models.InvalidURLText, models.InvalidURL),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   models.ErrCodeInvalidURL,
			wantPrices: map[string]string{"flipkart": "Invalid URL", "amazon": "Invalid URL", "croma": "Invalid URL"},
		},
		{
			name: "processing failed",
			body: `{"url":"https://www.croma.com/x/p/123456"}`,
			out: models.NewOutcome(models.ErrorDuringProcess, func(p models.Platform) models.PlatformResult {
				return models.Failed(p, nil)
			}),
			wantStatus: http.StatusInternalServerError,
			wantCode:   models.ErrCodeInternal,
			wantPrices: map[string]string{"flipkart": "Error", "amazon": "Error", "croma": "Error"},
		},
		{
			name:       "missing url",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   models.ErrCodeInvalidInput,
		},
		{
			name:       "not a url",
			body:       `{"url":"acme blender"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   models.ErrCodeInvalidInput,
		},
		{
			name:       "timeout out of range",
			body:       `{"url":"https://www.flipkart.com/acme/p/itmacme1","timeout":1}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   models.ErrCodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeComparer{out: tt.out}
			w := serve(Compare(f, nil), http.MethodPost, "/", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			resp := decode(t, w)
			if resp.Success != tt.wantOK {
				t.Errorf("success = %v", resp.Success)
			}
			if tt.wantCode != "" && (resp.Error == nil || resp.Error.Code != tt.wantCode) {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
			}
			for k, v := range tt.wantPrices {
				if resp.Prices[k] != v {
					t.Errorf("prices[%s] = %q, want %q", k, resp.Prices[k], v)
				}
			}
			if tt.wantPrices != nil && len(resp.Results) != len(models.Platforms()) {
				t.Errorf("results = %d entries", len(resp.Results))
			}
		})
	}
}

func TestCompareCache(t *testing.T) {
	cc := cache.New(10)
	defer cc.Stop()
	f := &fakeComparer{out: foundOutcome()}
	h := Compare(f, cc)

	body := `{"url":"https://www.flipkart.com/acme/p/itmacme1","max_age":60}`
	first := decode(t, serve(h, http.MethodPost, "/", body))
	second := decode(t, serve(h, http.MethodPost, "/", body))
	if first.CacheStatus != "miss" || second.CacheStatus != "hit" {
		t.Errorf("cache status = %q then %q", first.CacheStatus, second.CacheStatus)
	}
	if f.calls.Load() != 1 {
		t.Errorf("compared %d times, want 1", f.calls.Load())
	}
	if second.Prices["amazon"] != "11999.50" {
		t.Errorf("cached prices = %v", second.Prices)
	}

	// Without max_age the cache is bypassed.
	decode(t, serve(h, http.MethodPost, "/", `{"url":"https://www.flipkart.com/acme/p/itmacme1"}`))
	if f.calls.Load() != 2 {
		t.Errorf("compared %d times, want 2", f.calls.Load())
	}
}

func TestCompareDoesNotCacheFailures(t *testing.T) {
	cc := cache.New(10)
	defer cc.Stop()
	f := &fakeComparer{out: models.NewOutcome(models.InvalidURLText, models.InvalidURL)}
	body := `{"url":"https://shop.example/item/1","max_age":60}`
	serve(Compare(f, cc), http.MethodPost, "/", body)
	if cc.Len() != 0 {
		t.Error("failed comparison was cached")
	}
}

func TestCompareDoesNotCachePricelessOutcome(t *testing.T) {
	cc := cache.New(10)
	defer cc.Stop()
	out := models.NewOutcome("Acme Blender X200", models.NotFound)
	out.Origin = models.Flipkart
	out.Results[models.Flipkart] = models.Blocked(models.Flipkart)
	out.Results[models.Croma] = models.Failed(models.Croma, nil)
	f := &fakeComparer{out: out}
	h := Compare(f, cc)

	body := `{"url":"https://www.flipkart.com/acme/p/itmacme1","max_age":60}`
	first := decode(t, serve(h, http.MethodPost, "/", body))
	if !first.Success || first.CacheStatus != "" {
		t.Errorf("response = %+v", first)
	}
	if cc.Len() != 0 {
		t.Error("outcome without any price was cached")
	}
	serve(h, http.MethodPost, "/", body)
	if f.calls.Load() != 2 {
		t.Errorf("compared %d times, want 2", f.calls.Load())
	}
}

func TestOutcomeErrorTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	err := outcomeError(ctx, models.ExtractionOutcome{ProductTitle: models.ErrorDuringProcess})
	if err == nil || err.Code != models.ErrCodeTimeout || mapErrorToStatus(err) != http.StatusGatewayTimeout {
		t.Errorf("outcomeError = %v", err)
	}
	if outcomeError(ctx, models.ExtractionOutcome{ProductTitle: models.UnknownProduct}) != nil {
		t.Error("unknown product is not a request failure")
	}
}

func TestIdentify(t *testing.T) {
	w := serve(Identify(), http.MethodGet, "/?url="+"https%3A%2F%2Fwww.amazon.in%2Fdp%2FB0ACME0001", "")
	var resp models.IdentifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Supported || resp.Platform != models.Amazon || resp.ProductID != "B0ACME0001" {
		t.Errorf("identify = %+v", resp)
	}

	w = serve(Identify(), http.MethodGet, "/?url=https%3A%2F%2Fshop.example%2Fx", "")
	resp = models.IdentifyResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Supported {
		t.Errorf("unsupported url: %d %+v", w.Code, resp)
	}

	if w = serve(Identify(), http.MethodGet, "/", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing url status = %d", w.Code)
	}
}

type fixedStats models.PoolStats

func (s fixedStats) Stats() models.PoolStats { return models.PoolStats(s) }

func TestHealth(t *testing.T) {
	tests := []struct {
		active, max int
		want        string
	}{
		{0, 2, "healthy"},
		{1, 2, "healthy"},
		{2, 2, "degraded"},
		{8, 10, "healthy"},
		{9, 10, "degraded"},
	}
	for _, tt := range tests {
		stats := fixedStats{MaxSessions: tt.max, ActiveSessions: tt.active, Engine: "rod"}
		w := serve(Health(stats, time.Now()), http.MethodGet, "/", "")
		var resp models.HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status != tt.want || resp.PoolStats.Engine != "rod" || resp.Version != Version {
			t.Errorf("%d/%d: %+v", tt.active, tt.max, resp)
		}
	}
}
