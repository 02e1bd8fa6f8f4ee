package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvision-server/internal/config"
	"medvision-server/internal/models"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer(config.JWTConfig{
		Secret:        "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "medvision-auth",
		Audience:      "medvision",
	})
}

func TestAccessTokenTTL(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, AccessTokenTTL(models.RolePatient))
	assert.Equal(t, 8*time.Hour, AccessTokenTTL(models.RoleDoctor))
	assert.Equal(t, 4*time.Hour, AccessTokenTTL(models.RoleAdmin))
}

func TestGenerateTokensRoleClaims(t *testing.T) {
	issuer := newTestIssuer()
	now := time.Now()
	issuer.now = func() time.Time { return now }

	tests := []struct {
		subject TokenSubject
		check   func(t *testing.T, c *Claims)
	}{
		{
			TokenSubject{ID: "p1", Role: models.RolePatient, CPF: "12345678901"},
			func(t *testing.T, c *Claims) {
				assert.Equal(t, "12345678901", c.CPF)
				assert.Empty(t, c.CRM)
			},
		},
		{
			TokenSubject{ID: "d1", Role: models.RoleDoctor, Email: "dr@clinic.com", CRM: "11111/SP"},
			func(t *testing.T, c *Claims) {
				assert.Equal(t, "11111/SP", c.CRM)
				assert.Equal(t, "dr@clinic.com", c.Email)
			},
		},
		{
			TokenSubject{ID: "a1", Role: models.RoleAdmin, Email: "root@clinic.com"},
			func(t *testing.T, c *Claims) {
				assert.NotEmpty(t, c.SessionID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.subject.Role), func(t *testing.T) {
			pair, err := issuer.GenerateTokens(tt.subject)
			require.NoError(t, err)
			assert.Equal(t, int64(AccessTokenTTL(tt.subject.Role).Seconds()), pair.ExpiresIn(now))

			claims, err := issuer.ValidateAccessToken(pair.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, tt.subject.ID, claims.Subject)
			assert.Equal(t, tt.subject.Role, claims.Role)
			assert.Equal(t, "medvision-auth", claims.Issuer)
			assert.Contains(t, claims.Audience, "medvision")
			tt.check(t, claims)

			refresh, err := issuer.ValidateRefreshToken(pair.RefreshToken)
			require.NoError(t, err)
			assert.Equal(t, TokenTypeRefresh, refresh.TokenType)
		})
	}
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.GenerateTokens(TokenSubject{ID: "d1", Role: models.RoleDoctor})
	require.NoError(t, err)

	_, err = issuer.ValidateAccessToken(pair.RefreshToken)
	assert.Error(t, err)
	_, err = issuer.ValidateRefreshToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	issuer := newTestIssuer()
	issued := time.Now().Add(-9 * time.Hour)
	issuer.now = func() time.Time { return issued }
	pair, err := issuer.GenerateTokens(TokenSubject{ID: "d1", Role: models.RoleDoctor})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.ValidateAccessToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestWrongAudience(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.GenerateTokens(TokenSubject{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)

	other := NewTokenIssuer(config.JWTConfig{Secret: "access-secret", Issuer: "medvision-auth", Audience: "elsewhere"})
	_, err = other.ValidateAccessToken(pair.AccessToken)
	assert.Error(t, err)
}
