package models

import (
	"crypto/subtle"
	"time"
)

// Address is stored as JSON text on the patient row.
type Address struct {
	Street       string `json:"street" validate:"required"`
	Number       string `json:"number" validate:"required"`
	Neighborhood string `json:"neighborhood" validate:"required"`
	City         string `json:"city" validate:"required"`
	Zipcode      string `json:"zipcode" validate:"required,min=8,max=9"`
}

// Patient represents a person who attends appointments. Patients log in with
// their CPF and a one-time code, never a password.
type Patient struct {
	BaseModel
	Name          string     `gorm:"size:100;not null" json:"name"`
	Age           int        `gorm:"not null" json:"age"`
	CPF           string     `gorm:"column:cpf;uniqueIndex;size:14;not null" json:"cpf"`
	Phone         string     `gorm:"size:20;not null" json:"phone"`
	Email         string     `gorm:"size:255" json:"email,omitempty"`
	Address       *Address   `gorm:"serializer:json;type:text" json:"address,omitempty"`
	Code          *string    `gorm:"size:6" json:"-"`
	CodeExpiresAt *time.Time `json:"-"`
}

// CodeValid reports whether code matches the stored, unexpired login code.
func (p *Patient) CodeValid(code string, now time.Time) bool {
	return CodeMatches(p.Code, p.CodeExpiresAt, code, now)
}

// CodeMatches compares a submitted one-time code against a stored one in
// constant time. A missing code or expiry never matches.
func CodeMatches(stored *string, expiresAt *time.Time, code string, now time.Time) bool {
	if stored == nil || expiresAt == nil || code == "" {
		return false
	}
	if !now.Before(*expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(code)) == 1
}
