package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"housing_reviews/internal/adapters/identity"
	"housing_reviews/internal/domain"
)

func sign(t *testing.T, method jwt.SigningMethod, secret string, c jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTGate_Verify(t *testing.T) {
	g, err := identity.NewJWTGate("s3cret")
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name    string
		token   string
		want    domain.Identity
		wantErr bool
	}{
		{
			name:  "student",
			token: sign(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{"sub": "u-1", "domain_verified": true, "exp": exp}),
			want:  domain.Identity{UserID: "u-1", DomainVerified: true},
		},
		{
			name:  "moderator roles list",
			token: sign(t, jwt.SigningMethodHS512, "s3cret", jwt.MapClaims{"sub": "m-1", "roles": []string{"USER", "ADMIN"}, "exp": exp}),
			want:  domain.Identity{UserID: "m-1", Moderator: true},
		},
		{
			name:  "moderator single role",
			token: sign(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{"sub": "m-2", "roles": "moderator", "exp": exp}),
			want:  domain.Identity{UserID: "m-2", Moderator: true},
		},
		{
			name:    "wrong secret",
			token:   sign(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{"sub": "u-1", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(-time.Minute).Unix()}),
			wantErr: true,
		},
		{
			name:    "missing exp",
			token:   sign(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{"sub": "u-1"}),
			wantErr: true,
		},
		{
			name:    "missing subject",
			token:   sign(t, jwt.SigningMethodHS256, "s3cret", jwt.MapClaims{"exp": exp}),
			wantErr: true,
		},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
		{name: "empty", token: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := g.Verify(context.Background(), tc.token)
			if tc.wantErr {
				if !errors.Is(err, domain.ErrNotAuthenticated) {
					t.Fatalf("expected ErrNotAuthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestNewJWTGate_RequiresSecret(t *testing.T) {
	if _, err := identity.NewJWTGate(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
