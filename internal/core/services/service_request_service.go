package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/slots"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// ErrAlreadyCompleted is returned when a job is marked complete twice
var ErrAlreadyCompleted = errors.New("job already marked complete")

// maxPreferredSlots is how many days a tenant may offer.
const maxPreferredSlots = 3

// ServiceRequestService records tenant requests and drives their lifecycle
type ServiceRequestService struct {
	requestRepo repositories.ServiceRequestRepository
	links       *LinkTokenService
	clock       clockwork.Clock
}

// NewServiceRequestService creates a new service request service
func NewServiceRequestService(
	requestRepo repositories.ServiceRequestRepository,
	links *LinkTokenService,
	clock clockwork.Clock,
) *ServiceRequestService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ServiceRequestService{
		requestRepo: requestRepo,
		links:       links,
		clock:       clock,
	}
}

// CreateServiceRequestInput represents a tenant submission
type CreateServiceRequestInput struct {
	RequestType          string   `json:"request_type"`
	Priority             string   `json:"priority"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	TenantPreferredSlots []string `json:"tenant_preferred_slots"`
	TenantID             *uint    `json:"tenant_id,omitempty"`
	ContractorID         *uint    `json:"contractor_id,omitempty"`
}

// Create records a new service request
func (s *ServiceRequestService) Create(ctx context.Context, input *CreateServiceRequestInput) (*models.ServiceRequest, error) {
	requestType := strings.ToLower(strings.TrimSpace(input.RequestType))
	if requestType == "" {
		return nil, domain.NewValidationError("request_type", "request type is required")
	}
	priority := domain.Priority(strings.ToLower(strings.TrimSpace(input.Priority)))
	if !priority.Valid() {
		return nil, domain.NewValidationError("priority", "priority must be emergency, urgent or routine")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}

	days, err := preferredDays(input.TenantPreferredSlots)
	if err != nil {
		return nil, err
	}

	req := &models.ServiceRequest{
		RequestType:          requestType,
		Priority:             string(priority),
		Title:                title,
		Description:          strings.TrimSpace(input.Description),
		TenantID:             input.TenantID,
		ContractorID:         input.ContractorID,
		TenantPreferredSlots: days,
		Status:               string(domain.StatusSubmitted),
	}
	if err := s.requestRepo.Create(ctx, req); err != nil {
		return nil, err
	}

	log.Printf("✅ Service request %d created (%s/%s)", req.ID, req.RequestType, req.Priority)
	return req, nil
}

// GetByID gets a service request by ID
func (s *ServiceRequestService) GetByID(ctx context.Context, id uint) (*models.ServiceRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// List lists service requests with pagination
func (s *ServiceRequestService) List(ctx context.Context, status string, offset, limit int) ([]*models.ServiceRequest, int64, error) {
	return s.requestRepo.List(ctx, status, offset, limit)
}

// MarkCompleted records that the job has been done
func (s *ServiceRequestService) MarkCompleted(ctx context.Context, id uint) (*models.ServiceRequest, error) {
	req, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.JobCompleted {
		return nil, ErrAlreadyCompleted
	}

	if err := s.requestRepo.MarkCompleted(ctx, id, s.clock.Now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	log.Printf("✅ Service request %d marked complete", id)
	return s.GetByID(ctx, id)
}

// IssueLink mints a contractor link for a request
func (s *ServiceRequestService) IssueLink(ctx context.Context, id uint, purpose domain.TokenPurpose) (*IssuedLink, error) {
	req, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch purpose {
	case domain.PurposeSchedule:
		if req.AppointmentConfirmedAt != nil {
			return nil, domain.ErrAlreadySubmitted
		}
	case domain.PurposeInvoice:
		if req.InvoiceSubmitted {
			return nil, domain.ErrAlreadySubmitted
		}
	}

	return s.links.Issue(ctx, id, purpose)
}

// preferredDays validates and de-duplicates tenant days
func preferredDays(in []string) ([]string, error) {
	days := make([]string, 0, len(in))
	for _, raw := range in {
		day := strings.TrimSpace(raw)
		if _, err := slots.ParseDay(day); err != nil {
			return nil, domain.NewValidationError("tenant_preferred_slots", "preferred days must be dates in YYYY-MM-DD format")
		}
		if slots.Contains(days, day) {
			continue
		}
		days = append(days, day)
	}
	if len(days) > maxPreferredSlots {
		return nil, domain.NewValidationError("tenant_preferred_slots", "at most 3 preferred days can be offered")
	}
	return days, nil
}
