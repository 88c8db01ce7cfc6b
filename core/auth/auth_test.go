package auth

import (
	"strings"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret")

	token, err := issuer.SignToken("user-1", "room-1")
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	claims, err := issuer.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.RoomID != "room-1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewIssuer("secret-a").SignToken("user-1", "room-1")
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if _, err := NewIssuer("secret-b").VerifyToken(token); err == nil {
		t.Fatal("token verified with wrong secret")
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewIssuer("test-secret")
	token, err := issuer.SignToken("user-1", "room-1")
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	tampered := parts[0] + ".eyJ1c2VySWQiOiJldmlsIn0." + parts[2]
	if _, err := issuer.VerifyToken(tampered); err == nil {
		t.Fatal("tampered token verified")
	}

	if _, err := issuer.VerifyToken("not-a-token"); err == nil {
		t.Fatal("garbage token verified")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("p@ssw0rd")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "p@ssw0rd" {
		t.Fatal("password stored in plaintext")
	}
	if !CheckPasswordHash("p@ssw0rd", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Fatal("wrong password accepted")
	}
}
