package models

import (
	"time"

	"propdesk/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Portal accounts & sessions
// ============================================================

// Account represents accounts table
type Account struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Email        string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	Password     string         `gorm:"size:255;not null" json:"-"`
	FirstName    string         `gorm:"size:100" json:"first_name"`
	LastName     string         `gorm:"size:100" json:"last_name"`
	Phone        string         `gorm:"size:30" json:"phone"`
	AccountType  string         `gorm:"size:20;default:'contractor'" json:"account_type"`
	Status       string         `gorm:"size:20;default:'active'" json:"status"`
	PortalActive bool           `gorm:"default:true" json:"portal_active"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}

// IsActive reports whether the account may sign in to the portal.
func (a *Account) IsActive() bool {
	return a.Status == "active" && a.PortalActive
}

// ToIdentity returns the public projection of the account.
func (a *Account) ToIdentity() *domain.AccountIdentity {
	return &domain.AccountIdentity{
		ID:           a.ID,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		AccountType:  domain.AccountType(a.AccountType),
		Status:       a.Status,
		Phone:        a.Phone,
		PortalActive: a.PortalActive,
	}
}

// PortalSession represents portal_sessions table. One row per issued
// credential, keyed by the credential's jti.
type PortalSession struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	AccountID uint       `gorm:"index;not null" json:"account_id"`
	TokenID   string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	Account   Account    `gorm:"foreignKey:AccountID" json:"-"`
}

func (PortalSession) TableName() string {
	return "portal_sessions"
}

func (s *PortalSession) IsRevoked() bool {
	return s.RevokedAt != nil
}

func (s *PortalSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ============================================================
// Service requests & contractor links
// ============================================================

// ServiceRequest represents service_requests table
type ServiceRequest struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	RequestType            string     `gorm:"size:40;index;not null" json:"request_type"`
	Priority               string     `gorm:"size:20;not null" json:"priority"`
	Title                  string     `gorm:"size:200;not null" json:"title"`
	Description            string     `gorm:"type:text" json:"description"`
	TenantID               *uint      `gorm:"index" json:"tenant_id,omitempty"`
	ContractorID           *uint      `gorm:"index" json:"contractor_id,omitempty"`
	TenantPreferredSlots   []string   `gorm:"serializer:json;type:text" json:"tenant_preferred_slots"`
	Status                 string     `gorm:"size:40;default:'submitted';index" json:"status"`
	AppointmentConfirmedAt *time.Time `json:"appointment_confirmed_datetime"`
	ContractorProposedAt   *time.Time `json:"contractor_proposed_datetime"`
	ContractorNotes        string     `gorm:"type:text" json:"contractor_notes"`
	JobCompleted           bool       `gorm:"default:false" json:"job_completed"`
	JobCompletedAt         *time.Time `json:"job_completed_at"`
	InvoiceSubmitted       bool       `gorm:"default:false" json:"invoice_submitted"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ServiceRequest) TableName() string {
	return "service_requests"
}

// ScheduleDecision is the update applied when a schedule link is answered.
type ScheduleDecision struct {
	Action        domain.DecisionAction
	AppointmentAt *time.Time
	ProposedAt    *time.Time
	Notes         string
	DecidedAt     time.Time
}

// LinkToken represents link_tokens table. Only the hash of the token is kept.
type LinkToken struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ServiceRequestID uint           `gorm:"index;not null" json:"service_request_id"`
	Purpose          string         `gorm:"size:20;not null" json:"purpose"`
	TokenHash        string         `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt        time.Time      `gorm:"not null;index" json:"expires_at"`
	UsedAt           *time.Time     `json:"used_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	ServiceRequest   ServiceRequest `gorm:"foreignKey:ServiceRequestID" json:"-"`
}

func (LinkToken) TableName() string {
	return "link_tokens"
}

func (t *LinkToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *LinkToken) IsUsed() bool {
	return t.UsedAt != nil
}

// Invoice represents invoices table
type Invoice struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	ServiceRequestID uint            `gorm:"uniqueIndex;not null" json:"service_request_id"`
	FileURL          string          `gorm:"size:500;not null" json:"file_url"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	Notes            string          `gorm:"type:text" json:"notes"`
	AutoApproved     bool            `gorm:"not null" json:"auto_approved"`
	Status           string          `gorm:"size:20;index;not null" json:"status"`
	Threshold        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"threshold"`
	ThresholdVersion string          `gorm:"size:20" json:"threshold_version"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	ServiceRequest   ServiceRequest  `gorm:"foreignKey:ServiceRequestID" json:"-"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// ToReceipt returns the portal-facing receipt for the invoice.
func (i *Invoice) ToReceipt() *domain.InvoiceReceipt {
	return &domain.InvoiceReceipt{
		InvoiceID:    i.ID,
		RequestID:    i.ServiceRequestID,
		Amount:       i.Amount,
		AutoApproved: i.AutoApproved,
		Status:       domain.ApprovalStatus(i.Status),
		Threshold:    i.Threshold,
		TableVersion: i.ThresholdVersion,
	}
}

// AutoMigrate runs auto migration for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&PortalSession{},
		&ServiceRequest{},
		&LinkToken{},
		&Invoice{},
	)
}
