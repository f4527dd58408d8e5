package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

// TokenService issues and verifies identity tokens. The "sub" claim is
// the user id and the "role" claim carries the donation authority.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// Issue creates a signed token for id using the default TTL.
func (t *TokenService) Issue(id domain.Identity) (string, error) {
	return t.IssueWithTTL(id, t.expiresIn)
}

// IssueWithTTL creates a signed token for id with an explicit TTL.
func (t *TokenService) IssueWithTTL(id domain.Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" {
		return "", fmt.Errorf("issue token: %w: empty user id", domain.ErrInvalidInput)
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": string(id.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates a token and returns the identity it carries.
func (t *TokenService) Verify(tokenStr string) (domain.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return domain.Identity{}, err
	}
	if !token.Valid {
		return domain.Identity{}, jwt.ErrSignatureInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, jwt.ErrTokenMalformed
	}
	return identityFromClaims(claims)
}

// IdentityFromToken reads the identity claims without verifying the
// signature. The client uses it to learn who it is acting as; the
// backend remains responsible for verification.
func IdentityFromToken(tokenStr string) (domain.Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return domain.Identity{}, fmt.Errorf("parse token: %w", err)
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (domain.Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.Identity{}, jwt.ErrTokenInvalidSubject
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = string(domain.RoleRequester)
	}
	return domain.Identity{UserID: sub, Role: domain.Role(role)}, nil
}
