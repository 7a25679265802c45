package repositories

import (
	"context"
	"strings"

	"propdesk/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// accountRepository implements AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	account.Email = normalizeEmail(account.Email)
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByID gets an account by ID
func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByEmail gets an account by email
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ExistsByEmail checks if email exists
func (r *accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", normalizeEmail(email)).Count(&count).Error
	return count > 0, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
