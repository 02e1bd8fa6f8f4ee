package models

import "time"

// Admin represents a back-office operator.
type Admin struct {
	BaseModel
	Name               string     `gorm:"size:100;not null" json:"name"`
	Email              string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password           string     `gorm:"size:255;not null" json:"-"`
	ResetCode          *string    `gorm:"size:6" json:"-"`
	ResetCodeExpiresAt *time.Time `json:"-"`
}

// AdminSanitized represents the admin data that is safe to send in API responses.
type AdminSanitized struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sanitize strips credentials from the admin.
func (a *Admin) Sanitize() AdminSanitized {
	return AdminSanitized{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      RoleAdmin,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// Credential returns the password login view of the admin.
func (a *Admin) Credential() *Credential {
	return &Credential{
		ID:                 a.ID,
		Role:               RoleAdmin,
		Name:               a.Name,
		Email:              a.Email,
		PasswordHash:       a.Password,
		ResetCode:          a.ResetCode,
		ResetCodeExpiresAt: a.ResetCodeExpiresAt,
	}
}
