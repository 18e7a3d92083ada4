package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const issuer = "hackhub"

// Token purposes carried in the subject claim.
const (
	PurposeAccess  = "access"
	PurposeRefresh = "refresh"
	PurposeUpload  = "upload"
)

// ErrWrongPurpose is returned when a token is presented for the wrong use.
var ErrWrongPurpose = errors.New("token purpose mismatch")

// Claims defines JWT payload.
type Claims struct {
	UserID string `json:"user_id"`
	jwtlib.RegisteredClaims
}

// UploadClaims authorise one blob upload.
type UploadClaims struct {
	OwnerID string `json:"owner_id"`
	BlobID  string `json:"blob_id"`
	jwtlib.RegisteredClaims
}

// GenerateToken issues a signed JWT with provided secret and ttl.
func GenerateToken(userID, purpose, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:           userID,
		RegisteredClaims: registered(purpose, now, ttl),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Parse validates and extracts claims from token, requiring the given purpose.
func Parse(token, purpose, secret string) (*Claims, error) {
	claims := &Claims{}
	if err := parseInto(token, secret, claims); err != nil {
		return nil, err
	}
	if claims.Subject != purpose {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// GenerateUploadToken signs a token that lets ownerID upload blobID until ttl elapses.
func GenerateUploadToken(ownerID, blobID, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	claims := UploadClaims{
		OwnerID:          ownerID,
		BlobID:           blobID,
		RegisteredClaims: registered(PurposeUpload, now, ttl),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// ParseUploadToken validates an upload token.
func ParseUploadToken(token, secret string) (*UploadClaims, error) {
	claims := &UploadClaims{}
	if err := parseInto(token, secret, claims); err != nil {
		return nil, err
	}
	if claims.Subject != PurposeUpload {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

func registered(purpose string, now time.Time, ttl time.Duration) jwtlib.RegisteredClaims {
	return jwtlib.RegisteredClaims{
		Issuer:    issuer,
		Subject:   purpose,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
	}
}

func parseInto(token, secret string, claims jwtlib.Claims) error {
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}), jwtlib.WithIssuer(issuer))
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return jwtlib.ErrTokenInvalidClaims
	}
	return nil
}
