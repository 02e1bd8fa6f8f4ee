package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"medvision-server/internal/models"
)

type doctorRepository struct {
	db *gorm.DB
}

func (r *doctorRepository) Create(ctx context.Context, doctor *models.Doctor) error {
	return translate(r.db.WithContext(ctx).Create(doctor).Error)
}

func (r *doctorRepository) FindByID(ctx context.Context, id string) (*models.Doctor, error) {
	var doctor models.Doctor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doctor).Error; err != nil {
		return nil, translate(err)
	}
	return &doctor, nil
}

func (r *doctorRepository) LockByID(ctx context.Context, id string) (*models.Doctor, error) {
	var doctor models.Doctor
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&doctor).Error
	if err != nil {
		return nil, translate(err)
	}
	return &doctor, nil
}

func (r *doctorRepository) List(ctx context.Context, filter DirectoryFilter) ([]models.Doctor, int64, error) {
	filters := func(db *gorm.DB) *gorm.DB {
		if filter.Search != "" {
			like := "%" + filter.Search + "%"
			db = db.Where("name LIKE ? OR email LIKE ? OR crm LIKE ?", like, like, like)
		}
		if filter.Specialty != "" {
			db = db.Where("specialty = ?", filter.Specialty)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Doctor{}).Scopes(filters).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var doctors []models.Doctor
	err := r.db.WithContext(ctx).Scopes(filters, paginate(filter.Page)).Order("name ASC").Find(&doctors).Error
	if err != nil {
		return nil, 0, translate(err)
	}
	return doctors, total, nil
}

func (r *doctorRepository) Save(ctx context.Context, doctor *models.Doctor) error {
	return translate(r.db.WithContext(ctx).Save(doctor).Error)
}

func (r *doctorRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &models.Doctor{}, id)
}

func (r *doctorRepository) FindCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var doctor models.Doctor
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&doctor).Error; err != nil {
		return nil, translate(err)
	}
	return doctor.Credential(), nil
}

func (r *doctorRepository) SetResetCode(ctx context.Context, id string, code *string, expiresAt *time.Time) error {
	return updateByID(ctx, r.db, &models.Doctor{}, id, map[string]interface{}{
		"reset_code":            code,
		"reset_code_expires_at": expiresAt,
	})
}

func (r *doctorRepository) ReplacePassword(ctx context.Context, id, code, passwordHash string) (bool, error) {
	return replacePassword(ctx, r.db, &models.Doctor{}, id, code, passwordHash)
}
