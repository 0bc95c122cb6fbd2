package envelope

import "testing"

func TestOuterMarshalSetsJSONRPCVersion(t *testing.T) {
	o := Outer{ID: "abc", Method: MethodPing}
	b, err := o.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := ParseOuter(b)
	if err != nil {
		t.Fatalf("ParseOuter: %v", err)
	}
	if parsed.JSONRPC != "2.0" {
		t.Fatalf("expected jsonrpc 2.0, got %q", parsed.JSONRPC)
	}
	if parsed.ID != "abc" || parsed.Method != MethodPing {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestInnerIsSinglePart(t *testing.T) {
	cases := []struct {
		name string
		in   Inner
		want bool
	}{
		{"no chunk", Inner{Method: "hello"}, true},
		{"length one", Inner{Method: "hello", Chunk: &ChunkMeta{ID: "x", Index: 0, Length: 1}}, true},
		{"length two", Inner{Method: "hello", Chunk: &ChunkMeta{ID: "x", Index: 0, Length: 2}}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.in.IsSinglePart(); got != c.want {
				t.Errorf("IsSinglePart() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestParseOuterRejectsGarbage(t *testing.T) {
	if _, err := ParseOuter([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
