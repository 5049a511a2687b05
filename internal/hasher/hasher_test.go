// Copyright 2025 Traceprompt

package hasher

import (
	"regexp"
	"testing"
)

var hexPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHashCanonical_Stable(t *testing.T) {
	v := map[string]interface{}{"b": 1.0, "a": "x"}
	h1, err := HashCanonical(v)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !hexPattern.MatchString(h1) {
		t.Fatalf("expected 64-char lowercase hex, got %q", h1)
	}
	h2, err := HashCanonical(map[string]interface{}{"a": "x", "b": 1.0})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected equal hashes regardless of key insertion order, got %q vs %q", h1, h2)
	}
}

func TestHashCanonical_NilIsNullLiteral(t *testing.T) {
	h1, err := HashCanonical(nil)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2 := HashBytes([]byte("null"))
	if h1 != h2 {
		t.Fatalf("expected hash(nil) == hash(\"null\"), got %q vs %q", h1, h2)
	}
}

func TestHashCanonical_DifferentValuesDiffer(t *testing.T) {
	h1, _ := HashCanonical("a")
	h2, _ := HashCanonical("b")
	if h1 == h2 {
		t.Fatal("expected different hashes for different values")
	}
}
