package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/password"
	"propdesk/internal/pkg/safelog"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// ErrRequestNotFound is returned when a service request does not exist
var ErrRequestNotFound = errors.New("service request not found")

// IssuedLink is a freshly minted contractor link. Token is only ever
// available here; the store keeps its hash.
type IssuedLink struct {
	RequestID uint                `json:"request_id"`
	Purpose   domain.TokenPurpose `json:"purpose"`
	Token     string              `json:"token"`
	URL       string              `json:"url"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// ResolvedLink is a valid link together with its service request
type ResolvedLink struct {
	Token   *models.LinkToken
	Request *models.ServiceRequest
}

// LinkTokenService issues and resolves contractor links
type LinkTokenService struct {
	linkRepo    repositories.LinkTokenRepository
	requestRepo repositories.ServiceRequestRepository
	cfg         *config.Config
	clock       clockwork.Clock
}

// NewLinkTokenService creates a new link token service
func NewLinkTokenService(
	linkRepo repositories.LinkTokenRepository,
	requestRepo repositories.ServiceRequestRepository,
	cfg *config.Config,
	clock clockwork.Clock,
) *LinkTokenService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LinkTokenService{
		linkRepo:    linkRepo,
		requestRepo: requestRepo,
		cfg:         cfg,
		clock:       clock,
	}
}

// Issue mints a link for one request and purpose
func (s *LinkTokenService) Issue(ctx context.Context, requestID uint, purpose domain.TokenPurpose) (*IssuedLink, error) {
	if !purpose.Valid() {
		return nil, domain.NewValidationError("purpose", "purpose must be schedule or invoice")
	}

	if _, err := s.requestRepo.GetByID(ctx, requestID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	raw, err := password.NewLinkToken()
	if err != nil {
		return nil, fmt.Errorf("generate link token: %w", err)
	}

	expiresAt := s.clock.Now().Add(s.ttl(purpose))
	token := &models.LinkToken{
		ServiceRequestID: requestID,
		Purpose:          string(purpose),
		TokenHash:        password.HashToken(raw),
		ExpiresAt:        expiresAt,
	}
	if err := s.linkRepo.Create(ctx, token); err != nil {
		return nil, err
	}

	log.Printf("✅ Issued %s link %s for request %d", purpose, safelog.MaskToken(raw), requestID)

	return &IssuedLink{
		RequestID: requestID,
		Purpose:   purpose,
		Token:     raw,
		URL:       fmt.Sprintf("%s/contractor/%s/%s", s.cfg.Links.PublicBaseURL, purpose, raw),
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve finds the live link behind raw. Unknown, expired, consumed and
// wrong-purpose links are all reported as domain.ErrTokenInvalid.
func (s *LinkTokenService) Resolve(ctx context.Context, raw string, purpose domain.TokenPurpose) (*ResolvedLink, error) {
	if raw == "" {
		return nil, domain.ErrTokenInvalid
	}

	token, err := s.linkRepo.GetByTokenHash(ctx, password.HashToken(raw))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}

	switch {
	case token.Purpose != string(purpose):
		return nil, domain.ErrTokenInvalid
	case token.IsExpired(s.clock.Now()):
		return nil, domain.ErrTokenInvalid
	case purpose == domain.PurposeSchedule && token.IsUsed():
		return nil, domain.ErrTokenInvalid
	}

	req, err := s.requestRepo.GetByID(ctx, token.ServiceRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}

	return &ResolvedLink{Token: token, Request: req}, nil
}

func (s *LinkTokenService) ttl(purpose domain.TokenPurpose) time.Duration {
	if purpose == domain.PurposeInvoice {
		return s.cfg.Links.InvoiceTTL
	}
	return s.cfg.Links.ScheduleTTL
}
