package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/approval"
	"propdesk/internal/core/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jonboulle/clockwork"
)

// MaxUploadBytes is the largest invoice document accepted.
const MaxUploadBytes = 10 << 20

// AllowedDocumentTypes are the sniffed MIME types accepted for invoices.
var AllowedDocumentTypes = []string{"application/pdf", "image/jpeg", "image/png"}

// InvoiceService gates and accepts contractor invoices
type InvoiceService struct {
	links       *LinkTokenService
	invoiceRepo repositories.InvoiceRepository
	documents   DocumentStore
	unlockDelay time.Duration
	clock       clockwork.Clock
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(
	links *LinkTokenService,
	invoiceRepo repositories.InvoiceRepository,
	documents DocumentStore,
	unlockDelay time.Duration,
	clock clockwork.Clock,
) *InvoiceService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InvoiceService{
		links:       links,
		invoiceRepo: invoiceRepo,
		documents:   documents,
		unlockDelay: unlockDelay,
		clock:       clock,
	}
}

// View resolves an invoice link into what the contractor may see
func (s *InvoiceService) View(ctx context.Context, token string) (*domain.InvoiceView, error) {
	link, err := s.links.Resolve(ctx, token, domain.PurposeInvoice)
	if err != nil {
		return nil, err
	}

	req := link.Request
	return &domain.InvoiceView{
		RequestID:              req.ID,
		RequestType:            domain.ServiceType(req.RequestType),
		Priority:               domain.Priority(req.Priority),
		Title:                  req.Title,
		Description:            req.Description,
		AppointmentConfirmedAt: req.AppointmentConfirmedAt,
		JobCompleted:           req.JobCompleted,
		JobCompletedAt:         req.JobCompletedAt,
		InvoiceSubmitted:       req.InvoiceSubmitted,
		ExpiresAt:              link.Token.ExpiresAt,
	}, nil
}

// Availability reports whether the invoice upload is open for a link
func (s *InvoiceService) Availability(ctx context.Context, token string) (*domain.Availability, error) {
	link, err := s.links.Resolve(ctx, token, domain.PurposeInvoice)
	if err != nil {
		return nil, err
	}
	return s.availability(link.Request), nil
}

func (s *InvoiceService) availability(req *models.ServiceRequest) *domain.Availability {
	if req.InvoiceSubmitted {
		return &domain.Availability{
			Reason:  domain.ReasonAlreadySubmitted,
			Message: "An invoice has already been submitted for this job.",
		}
	}
	if req.JobCompleted {
		return &domain.Availability{
			UploadEnabled: true,
			Reason:        domain.ReasonJobCompleted,
			Message:       "The job is complete. You can upload your invoice.",
		}
	}

	if req.AppointmentConfirmedAt == nil {
		return &domain.Availability{
			Reason:  domain.ReasonJobNotCompleted,
			Message: "Invoice upload opens once the job has been completed.",
		}
	}

	after := req.AppointmentConfirmedAt.Add(s.unlockDelay)
	if !s.clock.Now().Before(after) {
		return &domain.Availability{
			UploadEnabled:  true,
			Reason:         domain.ReasonAppointmentElapsed,
			Message:        "The appointment has passed. You can upload your invoice.",
			AvailableAfter: &after,
		}
	}
	return &domain.Availability{
		Reason:         domain.ReasonJobNotCompleted,
		Message:        "Invoice upload opens after the scheduled appointment.",
		AvailableAfter: &after,
	}
}

// Upload stores an invoice document for an open link
func (s *InvoiceService) Upload(ctx context.Context, token string, data []byte) (*domain.UploadResult, error) {
	link, err := s.openLink(ctx, token)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, domain.NewValidationError("file", "please attach your invoice file")
	}
	if len(data) > MaxUploadBytes {
		return nil, domain.NewValidationError("file", "file is too large, the maximum size is 10 MB")
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), AllowedDocumentTypes...) {
		return nil, domain.NewValidationError("file", "file must be a PDF, JPEG or PNG")
	}

	sum := sha256.Sum256(data)
	key := fmt.Sprintf("%s%s", documentPrefix(link.Request.ID), hex.EncodeToString(sum[:])+mtype.Extension())

	ref, err := s.documents.Put(ctx, key, data, mtype.String())
	if err != nil {
		log.Printf("❌ Failed to store invoice document for request %d: %v", link.Request.ID, err)
		return nil, err
	}

	log.Printf("✅ Invoice document stored for request %d (%d bytes, %s)", link.Request.ID, len(data), mtype.String())

	return &domain.UploadResult{
		FileURL:     ref,
		ContentType: mtype.String(),
		Size:        int64(len(data)),
	}, nil
}

// Submit records the invoice and its authoritative approval decision
func (s *InvoiceService) Submit(ctx context.Context, token string, in *domain.InvoiceSubmissionRequest) (*domain.InvoiceReceipt, error) {
	link, err := s.openLink(ctx, token)
	if err != nil {
		return nil, err
	}
	req := link.Request

	description := strings.TrimSpace(in.Description)
	notes := strings.TrimSpace(in.Notes)
	switch {
	case description == "":
		return nil, domain.NewValidationError("description", "please describe the work performed")
	case utf8.RuneCountInString(description) > maxNotesLength:
		return nil, domain.NewValidationError("description", "description must be 2000 characters or fewer")
	case !in.Amount.IsPositive():
		return nil, domain.NewValidationError("amount", "amount must be greater than zero")
	case !in.Amount.Equal(in.Amount.Round(2)):
		return nil, domain.NewValidationError("amount", "amount can have at most two decimal places")
	case strings.TrimSpace(in.FileURL) == "":
		return nil, domain.NewValidationError("file_url", "please upload your invoice file first")
	case utf8.RuneCountInString(notes) > maxNotesLength:
		return nil, domain.NewValidationError("notes", "notes must be 2000 characters or fewer")
	}

	owned, err := s.documents.Owns(ctx, in.FileURL, documentPrefix(req.ID))
	if err != nil {
		log.Printf("❌ Failed to check invoice document for request %d: %v", req.ID, err)
		return nil, err
	}
	if !owned {
		return nil, domain.NewValidationError("file_url", "file does not belong to this job")
	}

	serviceType := domain.ServiceType(req.RequestType)
	priority := domain.Priority(req.Priority)
	decision := approval.Decide(in.Amount, serviceType, priority)

	if in.TableVersion != "" && in.TableVersion != decision.TableVersion {
		log.Printf("⚠️ Threshold table mismatch for request %d: portal=%s server=%s", req.ID, in.TableVersion, decision.TableVersion)
	}

	invoice := &models.Invoice{
		ServiceRequestID: req.ID,
		FileURL:          in.FileURL,
		Amount:           in.Amount.Round(2),
		Description:      description,
		Notes:            notes,
		AutoApproved:     decision.AutoApproved,
		Status:           string(decision.Status),
		Threshold:        decision.Threshold,
		ThresholdVersion: decision.TableVersion,
	}
	if err := s.invoiceRepo.Submit(ctx, invoice); err != nil {
		return nil, err
	}

	log.Printf("✅ Invoice %d submitted for request %d: %s (%s, threshold %s)",
		invoice.ID, req.ID, invoice.Amount.StringFixed(2), invoice.Status, decision.Threshold.String())

	return invoice.ToReceipt(), nil
}

// List lists invoices, optionally filtered by approval status
func (s *InvoiceService) List(ctx context.Context, status string, offset, limit int) ([]*models.Invoice, int64, error) {
	if status != "" && status != string(domain.ApprovalAutoApproved) && status != string(domain.ApprovalPendingReview) {
		return nil, 0, domain.NewValidationError("status", "status must be auto_approved or pending_review")
	}
	return s.invoiceRepo.List(ctx, status, offset, limit)
}

// openLink resolves an invoice link and requires the gate to be open
func (s *InvoiceService) openLink(ctx context.Context, token string) (*ResolvedLink, error) {
	link, err := s.links.Resolve(ctx, token, domain.PurposeInvoice)
	if err != nil {
		return nil, err
	}

	verdict := s.availability(link.Request)
	switch {
	case verdict.Reason == domain.ReasonAlreadySubmitted:
		return nil, domain.ErrAlreadySubmitted
	case !verdict.UploadEnabled:
		return nil, domain.ErrNotAvailable
	}
	return link, nil
}

func documentPrefix(requestID uint) string {
	return fmt.Sprintf("requests/%d/", requestID)
}

