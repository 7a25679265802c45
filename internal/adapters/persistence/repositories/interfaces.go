package repositories

import (
	"context"
	"time"

	"propdesk/internal/adapters/persistence/models"
)

// Not-found lookups return gorm.ErrRecordNotFound from every implementation.

// AccountRepository defines account repository interface
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// PortalSessionRepository defines portal session repository interface
type PortalSessionRepository interface {
	Create(ctx context.Context, session *models.PortalSession) error
	GetByTokenID(ctx context.Context, tokenID string) (*models.PortalSession, error)
	Revoke(ctx context.Context, id uint, at time.Time) error
	RevokeAllByAccountID(ctx context.Context, accountID uint, at time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ServiceRequestRepository defines service request repository interface
type ServiceRequestRepository interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	GetByID(ctx context.Context, id uint) (*models.ServiceRequest, error)
	List(ctx context.Context, status string, offset, limit int) ([]*models.ServiceRequest, int64, error)
	// ApplyScheduleDecision consumes the schedule link and records the
	// decision atomically. A consumed link yields domain.ErrTokenInvalid and
	// an already confirmed appointment yields domain.ErrAlreadySubmitted.
	ApplyScheduleDecision(ctx context.Context, requestID, linkTokenID uint, d models.ScheduleDecision) error
	MarkCompleted(ctx context.Context, id uint, at time.Time) error
}

// LinkTokenRepository defines link token repository interface
type LinkTokenRepository interface {
	Create(ctx context.Context, token *models.LinkToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.LinkToken, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// InvoiceRepository defines invoice repository interface
type InvoiceRepository interface {
	// Submit stores the invoice and flags the request as invoiced in one
	// step. A request that is already invoiced yields domain.ErrAlreadySubmitted.
	Submit(ctx context.Context, invoice *models.Invoice) error
	GetByRequestID(ctx context.Context, requestID uint) (*models.Invoice, error)
	List(ctx context.Context, status string, offset, limit int) ([]*models.Invoice, int64, error)
}

// Registry bundles every repository the services need.
type Registry struct {
	Accounts AccountRepository
	Sessions PortalSessionRepository
	Requests ServiceRequestRepository
	Links    LinkTokenRepository
	Invoices InvoiceRepository
}
