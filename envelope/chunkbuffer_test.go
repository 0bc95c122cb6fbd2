package envelope

import "testing"

func TestChunkBufferAssemblesInOrder(t *testing.T) {
	b := NewChunkBuffer()
	defer b.Close()

	meta := func(i, n uint32) ChunkMeta { return ChunkMeta{ID: "group-1", Index: i, Length: n} }

	if _, _, done, err := b.Accept("greet", meta(1, 3), "world"); err != nil || done {
		t.Fatalf("unexpected early completion: done=%v err=%v", done, err)
	}
	if _, _, done, err := b.Accept("greet", meta(0, 3), "hello "); err != nil || done {
		t.Fatalf("unexpected early completion: done=%v err=%v", done, err)
	}
	payload, method, done, err := b.Accept("greet", meta(2, 3), "!")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !done {
		t.Fatal("expected group to complete on final chunk")
	}
	if method != "greet" {
		t.Fatalf("expected method %q, got %q", "greet", method)
	}
	if payload != "hello world!" {
		t.Fatalf("expected assembled payload %q, got %q", "hello world!", payload)
	}
	if b.Len() != 0 {
		t.Fatalf("expected completed group to be removed, Len()=%d", b.Len())
	}
}

func TestChunkBufferRejectsLengthMismatch(t *testing.T) {
	b := NewChunkBuffer()
	defer b.Close()

	if _, _, _, err := b.Accept("greet", ChunkMeta{ID: "g", Index: 0, Length: 3}, "a"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, _, _, err := b.Accept("greet", ChunkMeta{ID: "g", Index: 1, Length: 4}, "b"); err != ErrChunkLengthMismatch {
		t.Fatalf("expected ErrChunkLengthMismatch, got %v", err)
	}
}

func TestChunkBufferRejectsOutOfRangeIndex(t *testing.T) {
	b := NewChunkBuffer()
	defer b.Close()

	if _, _, _, err := b.Accept("greet", ChunkMeta{ID: "g", Index: 5, Length: 2}, "a"); err != ErrChunkIndexOutOfRange {
		t.Fatalf("expected ErrChunkIndexOutOfRange, got %v", err)
	}
}

func TestChunkBufferCompletedGroupNeverResurfaces(t *testing.T) {
	b := NewChunkBuffer()
	defer b.Close()

	meta := func(i, n uint32) ChunkMeta { return ChunkMeta{ID: "g", Index: i, Length: n} }
	if _, _, done, err := b.Accept("m", meta(0, 1), "x"); err != nil || !done {
		t.Fatalf("expected single-chunk group to complete immediately: done=%v err=%v", done, err)
	}
	if b.Len() != 0 {
		t.Fatalf("expected no lingering groups, got %d", b.Len())
	}
}
