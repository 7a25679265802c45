package repositories

import (
	"context"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceRepository implements InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Submit flags the request as invoiced and stores the invoice in one transaction
func (r *invoiceRepository) Submit(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		flagged := tx.Model(&models.ServiceRequest{}).
			Where("id = ?", invoice.ServiceRequestID).
			Where("invoice_submitted = ?", false).
			Updates(map[string]interface{}{
				"invoice_submitted": true,
				"status":            string(domain.StatusInvoiced),
			})
		if flagged.Error != nil {
			return flagged.Error
		}
		if flagged.RowsAffected == 0 {
			return domain.ErrAlreadySubmitted
		}

		return tx.Omit(clause.Associations).Create(invoice).Error
	})
}

// GetByRequestID gets the invoice of a service request
func (r *invoiceRepository) GetByRequestID(ctx context.Context, requestID uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).Where("service_request_id = ?", requestID).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// List lists invoices with pagination, optionally filtered by approval status
func (r *invoiceRepository) List(ctx context.Context, status string, offset, limit int) ([]*models.Invoice, int64, error) {
	var invoices []*models.Invoice
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Invoice{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}
