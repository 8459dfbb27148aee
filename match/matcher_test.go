package match

import (
	"testing"

	"github.com/use-agent/pricewatch/vocab"
)

func TestMatches(t *testing.T) {
	m := New(vocab.Default().WithBrands("acme"), DefaultThreshold)

	tests := []struct {
		name   string
		query  string
		title  string
		want   bool
		reason string
	}{
		{"spec and brand agree", "acme blender x200 1.5l black", "Acme X200 Blender 1.5 Litre - Black", true, "spec match"},
		{"accessory rejected despite overlap", "acme blender x200 1.5l black", "Acme X200 Blender 1.5L Jar Cover Black", false, "accessory"},
		{"tempered glass rejected", "apple iphone 15 128gb black", "Tempered Glass for Apple iPhone 15 128GB", false, "accessory"},
		{"brand mismatch", "apple iphone 15 128gb", "Samsung Galaxy S23 128GB", false, "brand mismatch"},
		{"case for the same phone", "iPhone 15 Pro 128GB", "iPhone 15 Pro Silicone Case", false, "accessory"},
		{"clone sharing every spec", "Samsung Galaxy S23 256GB", "Apple Galaxy Clone S23 256GB", false, "brand mismatch"},
		{"brand via alias", "apple iphone 15 128gb", "Apple Galaxy Clone 128GB", true, "spec match"},
		{"candidate brand missing", "apple iphone 15", "Generic Phone 15 Black", false, "candidate brand missing"},
		{"token overlap", "sony wh 1000xm5", "Sony WH-1000XM5 Wireless Headphones", true, "token overlap"},
		{"low overlap", "sony wh 1000xm5 noise cancelling headphones silver", "Sony Bravia Television", false, "low overlap"},
		{"only brand words shared", "samsung galaxy s23 ultra 5g 256gb 12gb black", "Samsung Galaxy A14 64GB Light Green", false, "low overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := m.Score(tt.query, tt.title)
			if s.Accepted != tt.want || s.Reason != tt.reason {
				t.Errorf("Score(%q, %q) = %v, want accepted=%v reason=%s", tt.query, tt.title, s, tt.want, tt.reason)
			}
			if m.Matches(tt.query, tt.title) != tt.want {
				t.Error("Matches disagrees with Score")
			}
		})
	}
}

func TestQueryWithoutBrandPassesGate(t *testing.T) {
	m := New(nil, DefaultThreshold)
	if !m.Matches("zx900 20w", "Zorbo ZX900 20W Speaker") {
		t.Error("unbranded query should match on spec")
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, DefaultThreshold},
		{-1, DefaultThreshold},
		{1.5, DefaultThreshold},
		{0.6, 0.6},
		{1, 1},
	}
	for _, tt := range tests {
		if got := New(nil, tt.in).Threshold(); got != tt.want {
			t.Errorf("New(%v).Threshold() = %v, want %v", tt.in, got, tt.want)
		}
	}

	strict := New(nil, 0.9)
	if strict.Matches("sony wh 1000xm5 headphones", "Sony WH-1000XM5") {
		t.Error("strict threshold should reject a partial overlap")
	}
}
