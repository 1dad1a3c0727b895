package authz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/team-hours/internal/application"
)

// ErrInvalidToken is returned for bearer tokens that fail verification.
var ErrInvalidToken = errors.New("authz: invalid token")

// TokenVerifier checks HS256 bearer tokens. The token subject is the user id.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenVerifier returns a verifier for tokens signed with secret. A
// non-empty issuer is required to match the iss claim.
func NewTokenVerifier(secret []byte, issuer string, now func() time.Time) (*TokenVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenVerifier{secret: secret, issuer: issuer, now: now}, nil
}

// Verify parses the token and returns the principal it identifies.
func (v *TokenVerifier) Verify(token string) (application.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return application.Principal{}, fmt.Errorf("%w: token is required", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return application.Principal{}, mapJWTError(err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return application.Principal{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	return application.Principal{UserID: subject}, nil
}

// Issue signs a token for userID valid for ttl.
func (v *TokenVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: token is expired", ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: signature is invalid", ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: exp is required", ErrInvalidToken)
	}
	return fmt.Errorf("%w: %w", ErrInvalidToken, err)
}
