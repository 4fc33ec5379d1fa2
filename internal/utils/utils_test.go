package utils

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("k1", "user-7", "ADMIN", 5)
	if err != nil {
		t.Fatal(err)
	}
	id, role, err := ParseAccessToken("k1", tok.Token)
	if err != nil || id != "user-7" || role != "ADMIN" {
		t.Fatalf("parsed %q %q %v", id, role, err)
	}
	if _, _, err := ParseAccessToken("other", tok.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret accepted: %v", err)
	}
}

func TestExpiredAndUnsignedTokensRejected(t *testing.T) {
	expired, _ := NewAccessToken("k1", "u", "CUSTOMER", -1)
	if _, _, err := ParseAccessToken("k1", expired.Token); err == nil {
		t.Fatal("expired token accepted")
	}
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u", "exp": 9999999999}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, _, err := ParseAccessToken("k1", none); err == nil {
		t.Fatal("unsigned token accepted")
	}
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("hunter22", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword(h, "hunter22") || VerifyPassword(h, "hunter23") {
		t.Fatal("verify mismatch")
	}
}

func TestPasswordRules(t *testing.T) {
	if _, err := HashPassword("short", 4); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password: %v", err)
	}
	// Out-of-range costs fall back to the default instead of failing.
	h, err := HashPassword("long-enough", 99)
	if err != nil || !VerifyPassword(h, "long-enough") {
		t.Fatalf("fallback cost: %v", err)
	}
}
