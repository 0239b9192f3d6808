package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultNonceTTL = 12 * time.Hour
	NonceIssuer     = "ananta-custom-diamond"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingAction        = errors.New("nonce action must be provided")
	// ErrNonceActionMismatch indicates a valid nonce minted for another action.
	ErrNonceActionMismatch = errors.New("nonce action mismatch")
)

// NonceConfig configures the form nonce signer.
type NonceConfig struct {
	SigningSecret []byte
	Issuer        string
	TTL           time.Duration
	Clock         func() time.Time
}

// Nonces mints and checks short-lived form tokens bound to one admin action.
type Nonces struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// NewNonces constructs a nonce signer with defaults applied.
func NewNonces(cfg NonceConfig) (*Nonces, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultNonceTTL
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = NonceIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Nonces{
		secret: cfg.SigningSecret,
		issuer: issuer,
		ttl:    ttl,
		clock:  clock,
	}, nil
}

// Issue returns a signed nonce for action.
func (n *Nonces) Issue(action string) (string, error) {
	if action == "" {
		return "", errMissingAction
	}
	now := n.clock().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   action,
		Issuer:    n.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(n.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
}

// Verify checks the signature, issuer, expiry and bound action of token.
func (n *Nonces) Verify(token string, action string) error {
	if action == "" {
		return errMissingAction
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(parsed *jwt.Token) (interface{}, error) {
			if parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", parsed.Method.Alg())
			}
			return n.secret, nil
		},
		jwt.WithIssuer(n.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(n.clock),
	)
	if err != nil {
		return err
	}
	if claims.Subject != action {
		return ErrNonceActionMismatch
	}
	return nil
}
