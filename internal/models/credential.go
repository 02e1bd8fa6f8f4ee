package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor used for every stored password.
const PasswordCost = 12

// HashPassword hashes a raw password with bcrypt.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPasswordHash compares a raw password with a bcrypt hash.
func CheckPasswordHash(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Credential is the password-based login view shared by admins and doctors.
type Credential struct {
	ID                 string
	Role               Role
	Name               string
	Email              string
	CRM                string
	PasswordHash       string
	ResetCode          *string
	ResetCodeExpiresAt *time.Time
}

// ResetCodeValid reports whether code matches the stored, unexpired reset code.
func (c *Credential) ResetCodeValid(code string, now time.Time) bool {
	return CodeMatches(c.ResetCode, c.ResetCodeExpiresAt, code, now)
}
