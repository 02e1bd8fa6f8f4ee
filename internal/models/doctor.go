package models

import "time"

// Doctor represents a physician who takes appointments.
type Doctor struct {
	BaseModel
	Name               string     `gorm:"size:100;not null" json:"name"`
	Email              string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone              string     `gorm:"size:20;not null" json:"phone"`
	CRM                string     `gorm:"column:crm;uniqueIndex;size:20;not null" json:"crm"`
	Specialty          string     `gorm:"size:100;not null" json:"specialty"`
	MonthlySlots       int        `gorm:"not null;default:0" json:"monthlySlots"`
	Password           string     `gorm:"size:255;not null" json:"-"`
	ResetCode          *string    `gorm:"size:6" json:"-"`
	ResetCodeExpiresAt *time.Time `json:"-"`
}

// DoctorSanitized represents the doctor data that is safe to send in API responses.
type DoctorSanitized struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	CRM          string    `json:"crm"`
	Specialty    string    `json:"specialty"`
	MonthlySlots int       `json:"monthlySlots"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Sanitize strips credentials from the doctor.
func (d *Doctor) Sanitize() DoctorSanitized {
	return DoctorSanitized{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		CRM:          d.CRM,
		Specialty:    d.Specialty,
		MonthlySlots: d.MonthlySlots,
		Role:         RoleDoctor,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Credential returns the password login view of the doctor.
func (d *Doctor) Credential() *Credential {
	return &Credential{
		ID:                 d.ID,
		Role:               RoleDoctor,
		Name:               d.Name,
		Email:              d.Email,
		CRM:                d.CRM,
		PasswordHash:       d.Password,
		ResetCode:          d.ResetCode,
		ResetCodeExpiresAt: d.ResetCodeExpiresAt,
	}
}
