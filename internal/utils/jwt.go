package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"medvision-server/internal/config"
	"medvision-server/internal/models"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// RefreshTokenTTL applies to every role.
const RefreshTokenTTL = 30 * 24 * time.Hour

// AccessTokenTTL returns the access token lifetime for role.
func AccessTokenTTL(role models.Role) time.Duration {
	switch role {
	case models.RolePatient:
		return 7 * 24 * time.Hour
	case models.RoleDoctor:
		return 8 * time.Hour
	default:
		return 4 * time.Hour
	}
}

// Claims represents the JWT claims.
type Claims struct {
	Role      models.Role `json:"role"`
	TokenType TokenType   `json:"token_type"`
	Name      string      `json:"name,omitempty"`
	CPF       string      `json:"cpf,omitempty"`
	Email     string      `json:"email,omitempty"`
	CRM       string      `json:"crm,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the authenticated caller described by the claims.
func (c *Claims) Principal() models.Principal {
	return models.Principal{ID: c.Subject, Role: c.Role, Name: c.Name}
}

// TokenSubject is the identity a token pair is minted for.
type TokenSubject struct {
	ID    string
	Role  models.Role
	Name  string
	CPF   string
	Email string
	CRM   string
}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// ExpiresIn is the access token lifetime in seconds from issue.
func (p *TokenPair) ExpiresIn(issuedAt time.Time) int64 {
	return int64(p.AccessExpiresAt.Sub(issuedAt).Seconds())
}

// TokenIssuer signs and validates tokens.
type TokenIssuer struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewTokenIssuer creates an issuer from the JWT configuration.
func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{cfg: cfg, now: time.Now}
}

// GenerateTokens generates both access and refresh tokens for a subject.
func (i *TokenIssuer) GenerateTokens(subject TokenSubject) (*TokenPair, error) {
	now := i.now()
	pair := &TokenPair{
		AccessExpiresAt:  now.Add(AccessTokenTTL(subject.Role)),
		RefreshExpiresAt: now.Add(RefreshTokenTTL),
	}

	access := i.baseClaims(subject, TokenTypeAccess, now, pair.AccessExpiresAt)
	switch subject.Role {
	case models.RolePatient:
		access.CPF = subject.CPF
	case models.RoleDoctor:
		access.Email = subject.Email
		access.CRM = subject.CRM
	case models.RoleAdmin:
		access.Email = subject.Email
		access.SessionID = uuid.NewString()
	}

	var err error
	pair.AccessToken, err = sign(access, i.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := i.baseClaims(subject, TokenTypeRefresh, now, pair.RefreshExpiresAt)
	pair.RefreshToken, err = sign(refresh, i.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return pair, nil
}

func (i *TokenIssuer) baseClaims(subject TokenSubject, typ TokenType, now, expiresAt time.Time) *Claims {
	return &Claims{
		Role:      subject.Role,
		TokenType: typ,
		Name:      subject.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.ID,
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

func sign(claims *Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ErrWrongTokenType is returned when a refresh token is used as an access token or vice versa.
var ErrWrongTokenType = errors.New("wrong token type")

// ValidateAccessToken validates a signed access token.
func (i *TokenIssuer) ValidateAccessToken(tokenString string) (*Claims, error) {
	return i.validate(tokenString, i.cfg.Secret, TokenTypeAccess)
}

// ValidateRefreshToken validates a signed refresh token.
func (i *TokenIssuer) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return i.validate(tokenString, i.cfg.RefreshSecret, TokenTypeRefresh)
}

func (i *TokenIssuer) validate(tokenString, secret string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TokenType != want || !claims.Role.Valid() {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
