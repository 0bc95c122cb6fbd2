package defaults

import (
	"testing"
	"time"
)

func TestReconnectDelay(t *testing.T) {
	cases := []struct {
		k    int
		want time.Duration
	}{
		{0, 0},
		{1, 0},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
	}
	for _, c := range cases {
		if got := ReconnectDelay(c.k); got != c.want {
			t.Errorf("ReconnectDelay(%d) = %v, want %v", c.k, got, c.want)
		}
	}
}
