package config

import (
	"testing"
	"time"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatalf("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	p, err := Port("TEST_PORT", "8080")
	if err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q err=%v", p, err)
	}
}

func TestIntAndDuration(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	n, err := Int("TEST_INT", 1)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d err=%v", n, err)
	}
	t.Setenv("TEST_INT", "abc")
	if _, err := Int("TEST_INT", 1); err == nil {
		t.Fatalf("expected error for non-integer")
	}

	t.Setenv("TEST_TTL", "30")
	d, err := Duration("TEST_TTL", time.Second, 60)
	if err != nil || d != 30*time.Second {
		t.Fatalf("expected 30s, got %s err=%v", d, err)
	}
	t.Setenv("TEST_TTL", "-1")
	if _, err := Duration("TEST_TTL", time.Second, 60); err == nil {
		t.Fatalf("expected error for negative duration")
	}
}

func TestList(t *testing.T) {
	t.Setenv("TEST_LIST", " a, ,b ,c")
	got := List("TEST_LIST", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %#v", got)
	}
	t.Setenv("TEST_LIST", "")
	if got := List("TEST_LIST", "1,2"); len(got) != 2 {
		t.Fatalf("expected fallback list, got %#v", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "false")
	b, err := Bool("TEST_BOOL", true)
	if err != nil || b {
		t.Fatalf("expected false, got %v err=%v", b, err)
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.5")
	if f, err := Float("TEST_FLOAT", 1); err != nil || f != 0.5 {
		t.Fatalf("expected 0.5, got %v err=%v", f, err)
	}
	t.Setenv("TEST_FLOAT", "half")
	if _, err := Float("TEST_FLOAT", 1); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
	if f, _ := Float("TEST_FLOAT_UNSET", 0.1); f != 0.1 {
		t.Fatalf("expected fallback, got %v", f)
	}
}
