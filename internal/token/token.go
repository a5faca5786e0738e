// Package token signs member identifiers into URL-safe login tokens.
//
// Tokens are HS256 JWTs carrying a single member_id claim. They are signed,
// not encrypted, and carry no expiry: a token stays valid until the secret
// changes.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails to decode. Callers
// never learn whether the token was malformed, tampered with, or signed with
// another secret.
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	MemberID string `json:"member_id"`
	jwt.RegisteredClaims
}

// Codec encodes and decodes member login tokens with one secret.
type Codec struct {
	secret []byte
	parser *jwt.Parser
}

// NewCodec creates a Codec signing with secret.
func NewCodec(secret string) *Codec {
	return &Codec{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
		),
	}
}

// Encode returns the signed token for memberID. The output is deterministic
// for a given secret.
func (c *Codec) Encode(memberID string) (string, error) {
	if memberID == "" {
		return "", fmt.Errorf("encode token: empty member id")
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{MemberID: memberID})
	s, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return s, nil
}

// Decode verifies tok and returns the member id it carries.
func (c *Codec) Decode(tok string) (string, error) {
	var cl claims
	parsed, err := c.parser.ParseWithClaims(tok, &cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if cl.MemberID == "" {
		return "", ErrInvalidToken
	}
	return cl.MemberID, nil
}
