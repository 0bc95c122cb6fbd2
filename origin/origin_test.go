package origin

import "testing"

func TestReduce(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "https://example.com", "https://example.com"},
		{"with_port", "https://example.com:443", "https://example.com"},
		{"with_path", "https://example.com/some/path?x=1", "https://example.com"},
		{"http_with_port", "http://localhost:5173", "http://localhost"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Reduce(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestReduceErrors(t *testing.T) {
	cases := []string{"", "not-a-url-at-all :: garbage", "/just/a/path"}
	for _, in := range cases {
		if _, err := Reduce(in); err == nil {
			t.Fatalf("expected error reducing %q", in)
		}
	}
}

func TestMatches(t *testing.T) {
	if !Matches("https://actual-origin.com", "https://actual-origin.com:443/frame") {
		t.Fatal("expected match ignoring port and path")
	}
	if Matches("https://actual-origin.com", "https://wrong-origin.com") {
		t.Fatal("expected mismatch for different host")
	}
	if Matches("https://actual-origin.com", "not a url") {
		t.Fatal("expected malformed origin to be treated as mismatch, not a match")
	}
}
