package auth

import (
	"testing"
	"time"
)

func TestLoginAndValidate(t *testing.T) {
	hash, err := HashKey("correct-horse")
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	s := NewService(hash, "test-secret", time.Minute)

	token, err := s.Login("correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := s.Validate(token); err != nil {
		t.Errorf("Expected token to validate: %v", err)
	}
}

func TestLogin_WrongKey(t *testing.T) {
	hash, _ := HashKey("correct-horse")
	s := NewService(hash, "test-secret", time.Minute)

	if _, err := s.Login("battery-staple"); err != ErrInvalidKey {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	hash, _ := HashKey("correct-horse")
	issuer := NewService(hash, "secret-a", time.Minute)
	verifier := NewService(hash, "secret-b", time.Minute)

	token, err := issuer.Login("correct-horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := verifier.Validate(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken across secrets, got %v", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	hash, _ := HashKey("correct-horse")
	s := NewService(hash, "test-secret", time.Minute)

	if err := s.Validate("not.a.token"); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}
