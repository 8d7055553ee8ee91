package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/twelves/apiserver/types"
)

// ErrInvalidToken is returned for any token that fails parsing, signature or expiry checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// SessionClaims is the claim set of a session token.
type SessionClaims struct {
	Email         string `json:"email"`
	Username      string `json:"username"`
	EmailVerified bool   `json:"emailVerified"`
	jwt.RegisteredClaims
}

// LeadClaims is the claim set issued when a lead completes registration.
type LeadClaims struct {
	LeadID string           `json:"leadId"`
	Email  string           `json:"email"`
	Status types.LeadStatus `json:"status"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	secret     []byte
	sessionTTL time.Duration
	leadTTL    time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, sessionTTL, leadTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		leadTTL:    leadTTL,
		now:        time.Now,
	}
}

// SessionTTL is the lifetime of session tokens, also used for the cookie max age.
func (t *TokenIssuer) SessionTTL() time.Duration {
	return t.sessionTTL
}

// IssueSession signs a session token for the given user.
func (t *TokenIssuer) IssueSession(user types.User) (string, error) {
	now := t.now()
	claims := SessionClaims{
		Email:         user.Email,
		Username:      user.Username,
		EmailVerified: user.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.sessionTTL)),
		},
	}
	return t.sign(claims)
}

// ParseSession verifies a session token and returns its claims.
func (t *TokenIssuer) ParseSession(tokenString string) (SessionClaims, error) {
	claims := SessionClaims{}
	if err := t.parse(tokenString, &claims); err != nil {
		return SessionClaims{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// IssueLead signs a lead token carrying the lead id, email and status.
func (t *TokenIssuer) IssueLead(lead types.Lead) (string, error) {
	now := t.now()
	claims := LeadClaims{
		LeadID: lead.ID,
		Email:  lead.Email,
		Status: lead.Status,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.leadTTL)),
		},
	}
	return t.sign(claims)
}

// ParseLead verifies a lead token and returns its claims.
func (t *TokenIssuer) ParseLead(tokenString string) (LeadClaims, error) {
	claims := LeadClaims{}
	if err := t.parse(tokenString, &claims); err != nil {
		return LeadClaims{}, err
	}
	if strings.TrimSpace(claims.LeadID) == "" {
		return LeadClaims{}, fmt.Errorf("%w: missing lead id", ErrInvalidToken)
	}
	return claims, nil
}

func (t *TokenIssuer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (t *TokenIssuer) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
