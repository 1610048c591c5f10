package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims is the signed payload of an access token.
type Claims struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	JTI   string `json:"jti"`
	Exp   int64  `json:"exp"`
}

// ExpiresAt is Exp as a time.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

func (c Claims) complete() bool {
	return c.Sub != "" && c.JTI != "" && c.Exp > 0
}

// Signer issues and verifies HMAC-SHA256 bearer tokens of the form
// base64(claims) "." base64(mac).
type Signer struct {
	key []byte
	now func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret), now: time.Now}
}

func (s *Signer) Issue(claims Claims) (string, error) {
	if !claims.complete() {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	body, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + s.mac(encoded), nil
}

func (s *Signer) Parse(token string) (Claims, error) {
	encoded, mac, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(mac, ".") {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(mac), []byte(s.mac(encoded))) {
		return Claims{}, ErrInvalidToken
	}
	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil || !claims.complete() {
		return Claims{}, ErrInvalidToken
	}
	if !s.now().Before(claims.ExpiresAt()) {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func (s *Signer) mac(encoded string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// HashToken is the storage key for an opaque refresh or reset token.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
