package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"medvision-server/internal/models"
)

type refreshTokenRepository struct {
	db *gorm.DB
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

func (r *refreshTokenRepository) FindActiveByHash(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND is_revoked = ? AND expires_at > ?", hash, false, now).
		First(&token).Error
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *refreshTokenRepository) RevokeAll(ctx context.Context, principalID string, role models.Role) error {
	err := r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("principal_id = ? AND role = ? AND is_revoked = ?", principalID, role, false).
		Update("is_revoked", true).Error
	return translate(err)
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, id string) error {
	return updateByID(ctx, r.db, &models.RefreshToken{}, id, map[string]interface{}{"is_revoked": true})
}
