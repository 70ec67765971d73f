package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordBounds(t *testing.T) {
	if _, err := HashPassword("ngan"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("short: err = %v, want ErrPasswordTooShort", err)
	}
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordLength+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("long: err = %v, want ErrPasswordTooLong", err)
	}

	// Multi-byte runes count by byte: 24 × "ệ" is 72 bytes.
	longest := strings.Repeat("ệ", 24)
	hash, err := HashPassword(longest)
	if err != nil {
		t.Fatalf("72 bytes: %v", err)
	}
	if !CheckPassword(hash, longest) {
		t.Error("password should match its hash")
	}
	if CheckPassword(hash, longest[:69]) {
		t.Error("prefix should not match")
	}
}
