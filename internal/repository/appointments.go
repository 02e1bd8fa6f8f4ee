package repository

import (
	"context"

	"gorm.io/gorm"

	"medvision-server/internal/models"
)

type appointmentRepository struct {
	db *gorm.DB
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	return translate(r.db.WithContext(ctx).Omit("Patient", "Doctor").Create(appointment).Error)
}

func (r *appointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := r.db.WithContext(ctx).
		Preload("Patient").
		Preload("Doctor").
		Where("id = ?", id).
		First(&appointment).Error
	if err != nil {
		return nil, translate(err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, int64, error) {
	filters := func(db *gorm.DB) *gorm.DB {
		if filter.PatientID != "" {
			db = db.Where("patient_id = ?", filter.PatientID)
		}
		if filter.DoctorID != "" {
			db = db.Where("doctor_id = ?", filter.DoctorID)
		}
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.From != nil {
			db = db.Where("appointment_date >= ?", *filter.From)
		}
		if filter.To != nil {
			db = db.Where("appointment_date <= ?", *filter.To)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Appointment{}).Scopes(filters).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var appointments []models.Appointment
	err := r.db.WithContext(ctx).
		Preload("Patient").
		Preload("Doctor").
		Scopes(filters, paginate(filter.Page)).
		Order("appointment_date DESC").
		Find(&appointments).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return appointments, total, nil
}

func (r *appointmentRepository) CountActive(ctx context.Context, q ActiveQuery) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("doctor_id = ? AND status <> ?", q.DoctorID, models.StatusCancelled)
	if q.Open {
		query = query.Where("appointment_date > ? AND appointment_date < ?", q.From, q.To)
	} else {
		query = query.Where("appointment_date >= ? AND appointment_date <= ?", q.From, q.To)
	}
	if q.ExcludeID != "" {
		query = query.Where("id <> ?", q.ExcludeID)
	}

	var n int64
	err := query.Count(&n).Error
	return n, translate(err)
}

func (r *appointmentRepository) Save(ctx context.Context, appointment *models.Appointment) error {
	return translate(r.db.WithContext(ctx).Omit("Patient", "Doctor").Save(appointment).Error)
}

func (r *appointmentRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &models.Appointment{}, id)
}
