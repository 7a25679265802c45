package repositories

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// linkTokenRepository implements LinkTokenRepository interface
type linkTokenRepository struct {
	db *gorm.DB
}

// NewLinkTokenRepository creates a new link token repository
func NewLinkTokenRepository(db *gorm.DB) LinkTokenRepository {
	return &linkTokenRepository{db: db}
}

// Create stores a new link token hash
func (r *linkTokenRepository) Create(ctx context.Context, token *models.LinkToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// GetByTokenHash gets a link token by its hash
func (r *linkTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.LinkToken, error) {
	var token models.LinkToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteExpired deletes links that expired before the given time (cleanup job)
func (r *linkTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.LinkToken{})
	return result.RowsAffected, result.Error
}
