package service

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/uiruntime/internal/model"
)

// TokenIssuer signs instance access tokens.
type TokenIssuer struct {
	signKey   []byte
	accessTTL time.Duration
}

// NewTokenIssuer constructs an issuer; ttl <= 0 defaults to one hour.
func NewTokenIssuer(signKey []byte, accessTTL time.Duration) (*TokenIssuer, error) {
	if len(signKey) == 0 {
		return nil, errors.New("empty jwt sign key")
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &TokenIssuer{signKey: signKey, accessTTL: accessTTL}, nil
}

// Issue creates a signed HS256 JWT whose subject is the instance id.
func (s *TokenIssuer) Issue(instanceID uuid.UUID) (model.Tokens, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   instanceID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, nil
}
