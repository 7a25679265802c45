package repositories

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// portalSessionRepository implements PortalSessionRepository interface
type portalSessionRepository struct {
	db *gorm.DB
}

// NewPortalSessionRepository creates a new portal session repository
func NewPortalSessionRepository(db *gorm.DB) PortalSessionRepository {
	return &portalSessionRepository{db: db}
}

// Create records an issued credential
func (r *portalSessionRepository) Create(ctx context.Context, session *models.PortalSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetByTokenID gets a session by the credential's jti
func (r *portalSessionRepository) GetByTokenID(ctx context.Context, tokenID string) (*models.PortalSession, error) {
	var session models.PortalSession
	err := r.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Revoke revokes a session by ID
func (r *portalSessionRepository) Revoke(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PortalSession{}).
		Where("id = ?", id).
		Where("revoked_at IS NULL").
		Update("revoked_at", at).Error
}

// RevokeAllByAccountID revokes every live session of an account
func (r *portalSessionRepository) RevokeAllByAccountID(ctx context.Context, accountID uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PortalSession{}).
		Where("account_id = ?", accountID).
		Where("revoked_at IS NULL").
		Update("revoked_at", at).Error
}

// DeleteExpired deletes sessions that expired before the given time (cleanup job)
func (r *portalSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.PortalSession{})
	return result.RowsAffected, result.Error
}
