package utils // package utils provides helper functions for token creation

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken signs an HS256 JWT for an identity provider subject. The
// claims are sub, role, nickname (when set), exp and iat. Users sign in
// with the external provider; this is used by the CLI to mint tokens for
// local testing and for the service role that calls the internal API.
func NewAccessToken(secret, subject, nickname, role string, ttlMin int) (AccessToken, error) {
	if strings.TrimSpace(subject) == "" {
		return AccessToken{}, errors.New("subject is required")
	}
	if ttlMin <= 0 {
		return AccessToken{}, errors.New("ttl must be positive")
	}
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	if nickname != "" {
		claims["nickname"] = nickname
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
