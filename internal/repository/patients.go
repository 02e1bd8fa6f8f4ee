package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"medvision-server/internal/models"
)

type patientRepository struct {
	db *gorm.DB
}

func (r *patientRepository) Create(ctx context.Context, patient *models.Patient) error {
	return translate(r.db.WithContext(ctx).Create(patient).Error)
}

func (r *patientRepository) FindByID(ctx context.Context, id string) (*models.Patient, error) {
	var patient models.Patient
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&patient).Error; err != nil {
		return nil, translate(err)
	}
	return &patient, nil
}

func (r *patientRepository) FindByCPF(ctx context.Context, cpf string) (*models.Patient, error) {
	var patient models.Patient
	if err := r.db.WithContext(ctx).Where("cpf = ?", cpf).First(&patient).Error; err != nil {
		return nil, translate(err)
	}
	return &patient, nil
}

func (r *patientRepository) SetCode(ctx context.Context, id string, code *string, expiresAt *time.Time) error {
	return updateByID(ctx, r.db, &models.Patient{}, id, map[string]interface{}{
		"code":            code,
		"code_expires_at": expiresAt,
	})
}

func (r *patientRepository) ConsumeCode(ctx context.Context, id, code string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Patient{}).
		Where("id = ? AND code = ?", id, code).
		Updates(map[string]interface{}{"code": nil, "code_expires_at": nil})
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *patientRepository) List(ctx context.Context, filter DirectoryFilter) ([]models.Patient, int64, error) {
	filters := func(db *gorm.DB) *gorm.DB {
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			db = db.Where("name LIKE ? OR cpf LIKE ?", like, like)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Patient{}).Scopes(filters).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var patients []models.Patient
	err := r.db.WithContext(ctx).Scopes(filters, paginate(filter.Page)).Order("name ASC").Find(&patients).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return patients, total, nil
}

func (r *patientRepository) Save(ctx context.Context, patient *models.Patient) error {
	return translate(r.db.WithContext(ctx).Save(patient).Error)
}

func (r *patientRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &models.Patient{}, id)
}
