package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the claims embedded in an issued credential.
type IdentityClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Codec issues and verifies the stateless bearer credential. The signing
// secret is process-wide configuration; rotating it invalidates every
// outstanding token, and there is no revocation list.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Codec signing HS256 tokens valid for ttl after issuance.
func New(secret string, ttl time.Duration) *Codec {
	return NewWithClock(secret, ttl, time.Now)
}

// NewWithClock creates a Codec with a pinned clock. Used by tests to probe
// the expiry boundary.
func NewWithClock(secret string, ttl time.Duration, now func() time.Time) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl, now: now}
}

// Issue mints a signed token for the given subject (email) and user ID.
func (c *Codec) Issue(subject string, userID int64) (string, error) {
	now := c.now()
	claims := IdentityClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Claims parses and verifies a token. The returned claims are meaningful
// only when err is nil. A token whose expiry instant is at or before the
// current instant is rejected.
func (c *Codec) Claims(tokenString string) (*IdentityClaims, error) {
	var claims IdentityClaims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	// jwt's own check allows now == exp; this service treats exactly-at-expiry
	// as expired.
	if claims.ExpiresAt == nil || !c.now().Before(claims.ExpiresAt.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return &claims, nil
}

// Validate reports whether the token is well formed, correctly signed, and
// unexpired. It fails closed: malformed input yields false, never a panic.
func (c *Codec) Validate(tokenString string) bool {
	_, err := c.Claims(tokenString)
	return err == nil
}
