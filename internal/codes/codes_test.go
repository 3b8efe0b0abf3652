package codes

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	code, err := Generate(8)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected length 8, got %d", len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(safeAlphabet, r) {
			t.Fatalf("code %q contains disallowed character %q", code, r)
		}
	}
}

func TestExpiryIsInFuture(t *testing.T) {
	exp := Expiry(72)
	if !exp.After(time.Now().UTC()) {
		t.Fatal("expected expiry to be in the future")
	}
}
