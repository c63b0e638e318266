package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"housing_reviews/internal/domain"
)

// JWTGate verifies HMAC-signed bearer tokens locally.
//
// Expected claims: sub (user id), domain_verified (bool, set when the user
// proved a campus email domain), roles (string or []string; "MODERATOR" or
// "ADMIN" grant moderation).
type JWTGate struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTGate(secret string) (*JWTGate, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &JWTGate{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

type claims struct {
	DomainVerified bool `json:"domain_verified"`
	Roles          any  `json:"roles"`
	jwt.RegisteredClaims
}

func (g *JWTGate) Verify(ctx context.Context, bearer string) (domain.Identity, error) {
	if bearer == "" {
		return domain.Identity{}, domain.ErrNotAuthenticated
	}
	var c claims
	tok, err := g.parser.ParseWithClaims(bearer, &c, func(*jwt.Token) (any, error) { return g.secret, nil })
	if err != nil || !tok.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}
	if c.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrNotAuthenticated)
	}
	return domain.Identity{
		UserID:         c.Subject,
		DomainVerified: c.DomainVerified,
		Moderator:      hasModeratorRole(rolesOf(c.Roles)),
	}, nil
}

func rolesOf(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, r := range v {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func hasModeratorRole(roles []string) bool {
	for _, r := range roles {
		switch strings.ToUpper(r) {
		case "MODERATOR", "ADMIN":
			return true
		}
	}
	return false
}
