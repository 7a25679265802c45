package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType is the trade a service request needs.
type ServiceType string

const (
	ServiceTypePlumbing           ServiceType = "plumbing"
	ServiceTypeElectrical         ServiceType = "electrical"
	ServiceTypeHVAC               ServiceType = "hvac"
	ServiceTypeAppliance          ServiceType = "appliance"
	ServiceTypeGeneralMaintenance ServiceType = "general_maintenance"
)

// Priority of a service request
type Priority string

const (
	PriorityEmergency Priority = "emergency"
	PriorityUrgent    Priority = "urgent"
	PriorityRoutine   Priority = "routine"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityEmergency, PriorityUrgent, PriorityRoutine:
		return true
	}
	return false
}

// TokenPurpose binds a link token to one flow.
type TokenPurpose string

const (
	PurposeSchedule TokenPurpose = "schedule"
	PurposeInvoice  TokenPurpose = "invoice"
)

// Valid reports whether p is a known purpose.
func (p TokenPurpose) Valid() bool {
	return p == PurposeSchedule || p == PurposeInvoice
}

// RequestStatus tracks the service request lifecycle.
type RequestStatus string

const (
	StatusSubmitted                 RequestStatus = "submitted"
	StatusPendingTenantConfirmation RequestStatus = "pending_tenant_confirmation"
	StatusScheduled                 RequestStatus = "scheduled"
	StatusCompleted                 RequestStatus = "completed"
	StatusInvoiced                  RequestStatus = "invoiced"
)

// AccountType of a portal account
type AccountType string

const (
	AccountContractor AccountType = "contractor"
	AccountTenant     AccountType = "tenant"
	AccountManager    AccountType = "manager"
	AccountAdmin      AccountType = "admin"
)

// DecisionAction is the contractor's scheduling answer.
type DecisionAction string

const (
	ActionAccept  DecisionAction = "accept"
	ActionPropose DecisionAction = "propose"
)

// AvailabilityReason explains the invoice gate verdict.
type AvailabilityReason string

const (
	ReasonJobCompleted       AvailabilityReason = "job_completed"
	ReasonAppointmentElapsed AvailabilityReason = "appointment_elapsed"
	ReasonJobNotCompleted    AvailabilityReason = "job_not_completed"
	ReasonAlreadySubmitted   AvailabilityReason = "already_submitted"
)

// LockReason is why the invoice gate is closed on the portal side.
type LockReason string

const (
	LockJobNotCompleted  LockReason = "job_not_completed"
	LockAlreadySubmitted LockReason = "already_submitted"
	LockError            LockReason = "error"
)

// ApprovalStatus is the outcome persisted with an invoice.
type ApprovalStatus string

const (
	ApprovalAutoApproved  ApprovalStatus = "auto_approved"
	ApprovalPendingReview ApprovalStatus = "pending_review"
)

// ScheduleView is what a schedule link exposes.
type ScheduleView struct {
	RequestID            uint        `json:"request_id"`
	RequestType          ServiceType `json:"request_type"`
	Priority             Priority    `json:"priority"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	TenantPreferredSlots []string    `json:"tenant_preferred_slots"`
	ExpiresAt            time.Time   `json:"expires_at"`
}

// InvoiceView is what an invoice link exposes.
type InvoiceView struct {
	RequestID              uint        `json:"request_id"`
	RequestType            ServiceType `json:"request_type"`
	Priority               Priority    `json:"priority"`
	Title                  string      `json:"title"`
	Description            string      `json:"description"`
	AppointmentConfirmedAt *time.Time  `json:"appointment_confirmed_datetime,omitempty"`
	JobCompleted           bool        `json:"job_completed"`
	JobCompletedAt         *time.Time  `json:"job_completed_at,omitempty"`
	InvoiceSubmitted       bool        `json:"invoice_submitted"`
	ExpiresAt              time.Time   `json:"expires_at"`
}

// Availability is the server's invoice gate verdict.
type Availability struct {
	UploadEnabled  bool               `json:"upload_enabled"`
	Reason         AvailabilityReason `json:"reason"`
	Message        string             `json:"message"`
	AvailableAfter *time.Time         `json:"available_after,omitempty"`
}

// SchedulingDecisionRequest is the payload recorded against a schedule link.
// Accept carries the chosen tenant day, the slot and their combined
// timestamp; propose carries only ProposedAt.
type SchedulingDecisionRequest struct {
	Action        DecisionAction `json:"action"`
	SelectedDay   string         `json:"selected_day,omitempty"`
	SelectedTime  string         `json:"selected_time,omitempty"`
	AppointmentAt *time.Time     `json:"appointment_datetime,omitempty"`
	ProposedAt    *time.Time     `json:"proposed_datetime,omitempty"`
	Notes         string         `json:"contractor_notes,omitempty"`
}

// SchedulingAck confirms a recorded decision.
type SchedulingAck struct {
	RequestID     uint           `json:"request_id"`
	Action        DecisionAction `json:"action"`
	Status        RequestStatus  `json:"status"`
	AppointmentAt *time.Time     `json:"appointment_datetime,omitempty"`
	ProposedAt    *time.Time     `json:"proposed_datetime,omitempty"`
}

// UploadResult is the handle of a stored invoice document.
type UploadResult struct {
	FileURL     string `json:"file_url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// InvoiceSubmissionRequest is the structured invoice bound to a link.
type InvoiceSubmissionRequest struct {
	FileURL      string          `json:"file_url"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Notes        string          `json:"notes,omitempty"`
	TableVersion string          `json:"threshold_table_version,omitempty"`
}

// InvoiceReceipt is the authoritative outcome of an invoice submission.
type InvoiceReceipt struct {
	InvoiceID    uint            `json:"invoice_id"`
	RequestID    uint            `json:"request_id"`
	Amount       decimal.Decimal `json:"amount"`
	AutoApproved bool            `json:"auto_approved"`
	Status       ApprovalStatus  `json:"status"`
	Threshold    decimal.Decimal `json:"threshold"`
	TableVersion string          `json:"threshold_table_version"`
}

// AccountIdentity is the public projection of an account.
type AccountIdentity struct {
	ID           uint        `json:"id"`
	FirstName    string      `json:"first_name"`
	LastName     string      `json:"last_name"`
	Email        string      `json:"email"`
	AccountType  AccountType `json:"account_type"`
	Status       string      `json:"status"`
	Phone        string      `json:"phone,omitempty"`
	PortalActive bool        `json:"portal_active"`
}

// LoginResult is returned by a successful portal login.
type LoginResult struct {
	AccessToken string           `json:"access_token"`
	ExpiresIn   int              `json:"expires_in"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Account     *AccountIdentity `json:"account"`
}

// RefreshResult is returned when a portal credential is rotated.
type RefreshResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}
