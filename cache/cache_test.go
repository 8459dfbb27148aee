package cache

import (
	"testing"
	"time"

	"github.com/use-agent/pricewatch/models"
)

func TestKeySharesProductVariants(t *testing.T) {
	a := Key("https://www.amazon.in/Acme-Blender/dp/B0ACME0001?ref=sr_1_1")
	b := Key("https://amazon.in/dp/B0ACME0001")
	if a != b {
		t.Error("same ASIN produced different keys")
	}
	if a == Key("https://www.amazon.in/dp/B0ACME0002") {
		t.Error("different ASINs share a key")
	}
	if Key("https://unknown.example/x") == Key("https://unknown.example/y") {
		t.Error("unsupported URLs collapsed to one key")
	}
}

func TestGetRespectsMaxAge(t *testing.T) {
	c := New(10)
	defer c.Stop()
	k := Key("https://www.croma.com/acme/p/123456")
	c.Set(k, &models.CompareResponse{Success: true, ProductName: "Acme"})

	if _, ok := c.Get(k, 0); ok {
		t.Error("max age 0 should bypass the cache")
	}
	got, ok := c.Get(k, time.Minute)
	if !ok || got.ProductName != "Acme" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	got.CacheStatus = "hit"
	again, _ := c.Get(k, time.Minute)
	if again.CacheStatus != "" {
		t.Error("Get returned a shared pointer")
	}

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(k, time.Millisecond); ok {
		t.Error("stale entry served")
	}
}

func TestSetEvictsAtCapacity(t *testing.T) {
	c := New(2)
	defer c.Stop()
	c.Set("a", &models.CompareResponse{})
	c.Set("b", &models.CompareResponse{})
	c.Set("b", &models.CompareResponse{})
	if c.Len() != 2 {
		t.Fatalf("overwrite evicted an entry, len=%d", c.Len())
	}
	c.Set("c", &models.CompareResponse{})
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("c", time.Minute); !ok {
		t.Error("newest entry missing")
	}
}

func TestEvictBefore(t *testing.T) {
	c := New(5)
	defer c.Stop()
	c.Set("old", &models.CompareResponse{})
	c.evictBefore(time.Now().Add(time.Second))
	if c.Len() != 0 {
		t.Error("expired entry kept")
	}
}
