package normalize

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "True Crime", "crime true"},
		{"drops stopwords", "the best cooking shows", "best cooking shows"},
		{"collapses hyphens and spaces", "sci--fi   horror", "fi horror sci"},
		{"strips punctuation", "Let's Play: Gaming!", "gaming lets play"},
		{"sorts tokens", "zebra apple mango", "apple mango zebra"},
		{"empty after stopword removal", "the a an", ""},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	in := "The Best Sci-Fi Horror Shows!!"
	once := Normalize(in)
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize not idempotent: %q != %q", once, twice)
	}
}

func TestDigest_Deterministic(t *testing.T) {
	n := Normalize("true crime")
	d1 := Digest(n)
	d2 := Digest(n)
	if d1 != d2 {
		t.Errorf("Digest not deterministic: %q != %q", d1, d2)
	}
	if len(d1) != 16 {
		t.Errorf("Digest length = %d, want 16", len(d1))
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey(""); got != "query:v1:empty" {
		t.Errorf("CacheKey(\"\") = %q, want query:v1:empty", got)
	}
	if got := CacheKey("the a an"); got != "query:v1:empty" {
		t.Errorf("CacheKey(stopwords-only) = %q, want query:v1:empty", got)
	}

	k1 := CacheKey("True Crime")
	k2 := CacheKey("crime true")
	if k1 != k2 {
		t.Errorf("CacheKey not order/case insensitive: %q != %q", k1, k2)
	}
}
