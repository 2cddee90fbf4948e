package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// IssueOperatorToken signs an HS256 token whose subject is operatorID.
func IssueOperatorToken(secret, operatorID string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", eris.New("api: operator jwt secret is not configured")
	}
	claims := jwt.RegisteredClaims{
		Subject:   operatorID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", eris.Wrap(err, "api: sign operator token")
	}
	return signed, nil
}

// ParseOperatorToken validates raw and returns its subject.
func ParseOperatorToken(secret, raw string) (string, error) {
	if secret == "" {
		return "", eris.New("api: operator jwt secret is not configured")
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", eris.Wrap(err, "api: parse operator token")
	}
	if !token.Valid || claims.Subject == "" {
		return "", eris.New("api: operator token has no subject")
	}
	return claims.Subject, nil
}
