package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateToken("user-1", PurposeAccess, "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Parse(token, PurposeAccess, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected user id %q", claims.UserID)
	}
}

func TestParseRejectsWrongPurpose(t *testing.T) {
	token, err := GenerateToken("user-1", PurposeRefresh, "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, PurposeAccess, "secret"); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("user-1", PurposeAccess, "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, PurposeAccess, "other"); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken("user-1", PurposeAccess, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, PurposeAccess, "secret"); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestUploadTokenRoundTrip(t *testing.T) {
	token, expires, err := GenerateUploadToken("user-1", "blob-1", "secret", 5*time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected expiry in the future, got %v", expires)
	}
	claims, err := ParseUploadToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.OwnerID != "user-1" || claims.BlobID != "blob-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := Parse(token, PurposeAccess, "secret"); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("upload token must not authorise API calls, got %v", err)
	}
}
