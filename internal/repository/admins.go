package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"medvision-server/internal/models"
)

type adminRepository struct {
	db *gorm.DB
}

func (r *adminRepository) Create(ctx context.Context, admin *models.Admin) error {
	return translate(r.db.WithContext(ctx).Create(admin).Error)
}

func (r *adminRepository) FindByID(ctx context.Context, id string) (*models.Admin, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&admin).Error; err != nil {
		return nil, translate(err)
	}
	return &admin, nil
}

func (r *adminRepository) Save(ctx context.Context, admin *models.Admin) error {
	return translate(r.db.WithContext(ctx).Save(admin).Error)
}

func (r *adminRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Admin{}).Count(&n).Error
	return n, translate(err)
}

func (r *adminRepository) FindCredentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&admin).Error; err != nil {
		return nil, translate(err)
	}
	return admin.Credential(), nil
}

func (r *adminRepository) SetResetCode(ctx context.Context, id string, code *string, expiresAt *time.Time) error {
	return updateByID(ctx, r.db, &models.Admin{}, id, map[string]interface{}{
		"reset_code":            code,
		"reset_code_expires_at": expiresAt,
	})
}

func (r *adminRepository) ReplacePassword(ctx context.Context, id, code, passwordHash string) (bool, error) {
	return replacePassword(ctx, r.db, &models.Admin{}, id, code, passwordHash)
}
