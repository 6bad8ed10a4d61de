package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	s := NewHMACService("test-secret")

	token, err := s.GenerateToken("ops", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("subject = %q", claims.Subject)
	}
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewHMACService("secret-a").GenerateToken("ops", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewHMACService("secret-b").ValidateToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestValidateExpired(t *testing.T) {
	s := NewHMACService("test-secret")
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := s.GenerateToken("ops", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	v := NewHMACService("test-secret")
	if _, err := v.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestGenerateEmptySecret(t *testing.T) {
	if _, err := NewHMACService("").GenerateToken("ops", time.Hour); err == nil {
		t.Fatal("expected error with empty secret")
	}
}
