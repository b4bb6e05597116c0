package sessions

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieCodec signs session IDs so that forged or tampered cookies are
// rejected before any store lookup.
type CookieCodec struct {
	secret  []byte
	nowTime func() time.Time
}

func NewCookieCodec(secret string) (*CookieCodec, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("[NewCookieCodec] cookie secret must be at least 32 bytes")
	}
	return &CookieCodec{
		secret:  []byte(secret),
		nowTime: time.Now,
	}, nil
}

// Encode returns the signed cookie value for a session ID
func (c *CookieCodec) Encode(sessionID string) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       sessionID,
		IssuedAt: jwt.NewNumericDate(c.nowTime()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("[CookieCodec Encode] sign: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the session ID it carries
func (c *CookieCodec) Decode(value string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(value, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("[CookieCodec Decode] %w", err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("[CookieCodec Decode] missing session id")
	}
	return claims.ID, nil
}
