package cmdutil

import (
	"testing"
	"time"
)

func TestEnvString_TrimsAndFallsBack(t *testing.T) {
	t.Setenv("X", "  ok  ")
	if got := EnvString("X", "fallback"); got != "ok" {
		t.Fatalf("unexpected value: %q", got)
	}
	t.Setenv("X", "   ")
	if got := EnvString("X", "fallback"); got != "fallback" {
		t.Fatalf("unexpected fallback: %q", got)
	}
}

func TestEnvDuration_ParsesAndFallsBack(t *testing.T) {
	t.Setenv("D", "")
	got, err := EnvDuration("D", 123*time.Millisecond)
	if err != nil || got != 123*time.Millisecond {
		t.Fatalf("unexpected: got=%v err=%v", got, err)
	}
	t.Setenv("D", "1s")
	got, err = EnvDuration("D", 0)
	if err != nil || got != time.Second {
		t.Fatalf("unexpected: got=%v err=%v", got, err)
	}
	t.Setenv("D", "bad")
	_, err = EnvDuration("D", 0)
	if err == nil {
		t.Fatalf("expected error")
	}
}
