package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidState is returned for a missing, expired, or forged OAuth state.
var ErrInvalidState = errors.New("invalid oauth state")

const stateAudience = "fit-connect"

// StateSigner binds the OAuth round trip to the user who started it.
type StateSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewStateSigner constructs a signer for HS256 state tokens.
func NewStateSigner(secret, issuer string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSigner{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Sign returns a state token for userID.
func (s *StateSigner) Sign(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the user id carried by a valid state token.
func (s *StateSigner) Verify(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(stateAudience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
