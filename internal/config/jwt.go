package config

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ParseBearerJWT validates and decodes a bearer token against
// jwtSecret using HMAC. It is the full extent of this package's
// contract with the JWT library; no web auth middleware is built on
// it, and the Supabase storage variant does not call it (that variant
// authenticates with its service role key).
func (c *Config) ParseBearerJWT(token string) (jwt.MapClaims, error) {
	secret, err := c.JWTSecret()
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("config: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("config: parse bearer token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("config: bearer token invalid")
	}
	return claims, nil
}
