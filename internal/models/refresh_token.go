package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken represents a JWT refresh token in the database. Only the
// SHA-256 of the token is persisted.
type RefreshToken struct {
	BaseModel
	PrincipalID string    `gorm:"size:36;index;not null" json:"principalId"`
	Role        Role      `gorm:"size:20;not null" json:"role"`
	TokenHash   string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt   time.Time `json:"expiresAt"`
	IsRevoked   bool      `gorm:"default:false" json:"isRevoked"`
}

// HashToken returns the hex SHA-256 used to look up a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
