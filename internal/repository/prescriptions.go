package repository

import (
	"context"

	"gorm.io/gorm"

	"medvision-server/internal/models"
)

type prescriptionRepository struct {
	db *gorm.DB
}

func (r *prescriptionRepository) Create(ctx context.Context, prescription *models.Prescription) error {
	return translate(r.db.WithContext(ctx).Create(prescription).Error)
}

func (r *prescriptionRepository) FindByID(ctx context.Context, id string) (*models.Prescription, error) {
	var prescription models.Prescription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&prescription).Error; err != nil {
		return nil, translate(err)
	}
	return &prescription, nil
}

func (r *prescriptionRepository) List(ctx context.Context, filter PrescriptionFilter) ([]models.Prescription, int64, error) {
	filters := func(db *gorm.DB) *gorm.DB {
		if filter.PatientID != "" {
			db = db.Where("patient_id = ?", filter.PatientID)
		}
		if filter.DoctorID != "" {
			db = db.Where("doctor_id = ?", filter.DoctorID)
		}
		if filter.AppointmentID != "" {
			db = db.Where("appointment_id = ?", filter.AppointmentID)
		}
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Prescription{}).Scopes(filters).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var prescriptions []models.Prescription
	err := r.db.WithContext(ctx).Scopes(filters, paginate(filter.Page)).Order("created_at DESC").Find(&prescriptions).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return prescriptions, total, nil
}

func (r *prescriptionRepository) Save(ctx context.Context, prescription *models.Prescription) error {
	return translate(r.db.WithContext(ctx).Save(prescription).Error)
}

func (r *prescriptionRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &models.Prescription{}, id)
}
