package repositories

import (
	"context"
	"errors"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// serviceRequestRepository implements ServiceRequestRepository interface
type serviceRequestRepository struct {
	db *gorm.DB
}

// NewServiceRequestRepository creates a new service request repository
func NewServiceRequestRepository(db *gorm.DB) ServiceRequestRepository {
	return &serviceRequestRepository{db: db}
}

// Create creates a new service request
func (r *serviceRequestRepository) Create(ctx context.Context, req *models.ServiceRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// GetByID gets a service request by ID
func (r *serviceRequestRepository) GetByID(ctx context.Context, id uint) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// List lists service requests with pagination, newest first
func (r *serviceRequestRepository) List(ctx context.Context, status string, offset, limit int) ([]*models.ServiceRequest, int64, error) {
	var reqs []*models.ServiceRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ServiceRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&reqs).Error; err != nil {
		return nil, 0, err
	}

	return reqs, total, nil
}

// ApplyScheduleDecision consumes the link and records the decision in one transaction
func (r *serviceRequestRepository) ApplyScheduleDecision(ctx context.Context, requestID, linkTokenID uint, d models.ScheduleDecision) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Consume the schedule link (single use)
		consumed := tx.Model(&models.LinkToken{}).
			Where("id = ?", linkTokenID).
			Where("used_at IS NULL").
			Update("used_at", d.DecidedAt)
		if consumed.Error != nil {
			return consumed.Error
		}
		if consumed.RowsAffected == 0 {
			return domain.ErrTokenInvalid
		}

		// 2. Record the decision, never overwriting a confirmed appointment
		updates := map[string]interface{}{
			"contractor_notes": d.Notes,
		}
		if d.Action == domain.ActionAccept {
			updates["appointment_confirmed_at"] = d.AppointmentAt
			updates["contractor_proposed_at"] = nil
			updates["status"] = string(domain.StatusScheduled)
		} else {
			updates["contractor_proposed_at"] = d.ProposedAt
			updates["status"] = string(domain.StatusPendingTenantConfirmation)
		}

		// RowsAffected counts changed rows on MySQL, so the guard reads the
		// locked row instead of relying on the update result.
		var current models.ServiceRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "appointment_confirmed_at").
			First(&current, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrTokenInvalid
			}
			return err
		}
		if current.AppointmentConfirmedAt != nil {
			return domain.ErrAlreadySubmitted
		}

		return tx.Model(&models.ServiceRequest{}).
			Where("id = ?", requestID).
			Updates(updates).Error
	})
}

// MarkCompleted flags the job as done
func (r *serviceRequestRepository) MarkCompleted(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"job_completed":    true,
			"job_completed_at": at,
			"status":           string(domain.StatusCompleted),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
