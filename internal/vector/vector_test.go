package vector

import "testing"

func TestDistanceToSimilarity(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 1.0},
		{2, 0.0},
		{1, 0.5},
	}
	for _, c := range cases {
		if got := DistanceToSimilarity(c.distance); got != c.want {
			t.Errorf("DistanceToSimilarity(%v) = %v, want %v", c.distance, got, c.want)
		}
	}
}
