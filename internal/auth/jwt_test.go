package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{
		DeviceID: "kiosk-1",
		Scopes:   []string{ScopeControl},
		Room:     "room-7",
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.DeviceID != "kiosk-1" || claims.Room != "room-7" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Subject != "kiosk-1" {
		t.Fatalf("expected subject kiosk-1, got %q", claims.Subject)
	}
}

func TestParse_RejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	claims := Claims{
		DeviceID: "kiosk-1",
		Scopes:   []string{ScopeControl},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "kiosk-1",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokenStr, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := Parse(secret, tokenStr); err == nil {
		t.Fatalf("expected parse to reject non-HS256 token")
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{DeviceID: "kiosk-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(secret, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestClaimsHasScope(t *testing.T) {
	tests := []struct {
		scopes []string
		want   string
		ok     bool
	}{
		{[]string{ScopeRead}, ScopeRead, true},
		{[]string{ScopeRead}, ScopeControl, false},
		{[]string{ScopeControl}, ScopeRead, true},
		{[]string{ScopeControl}, ScopeControl, true},
		{nil, ScopeRead, false},
	}
	for _, tt := range tests {
		c := &Claims{Scopes: tt.scopes}
		if got := c.HasScope(tt.want); got != tt.ok {
			t.Errorf("HasScope(%v, %s) = %v, want %v", tt.scopes, tt.want, got, tt.ok)
		}
	}
}
