package services

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/slots"

	"github.com/jonboulle/clockwork"
)

const (
	// maxNotesLength bounds free-text fields on link submissions.
	maxNotesLength = 2000

	// proposalGrace absorbs clock skew between the portal and the API.
	proposalGrace = time.Minute
)

// ScheduleService answers schedule links
type ScheduleService struct {
	links       *LinkTokenService
	requestRepo repositories.ServiceRequestRepository
	loc         *time.Location
	clock       clockwork.Clock
}

// NewScheduleService creates a new schedule service. loc is the business
// time zone used when a decision carries only a day and a slot.
func NewScheduleService(
	links *LinkTokenService,
	requestRepo repositories.ServiceRequestRepository,
	loc *time.Location,
	clock clockwork.Clock,
) *ScheduleService {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ScheduleService{
		links:       links,
		requestRepo: requestRepo,
		loc:         loc,
		clock:       clock,
	}
}

// View resolves a schedule link into what the contractor may see
func (s *ScheduleService) View(ctx context.Context, token string) (*domain.ScheduleView, error) {
	link, err := s.links.Resolve(ctx, token, domain.PurposeSchedule)
	if err != nil {
		return nil, err
	}

	req := link.Request
	return &domain.ScheduleView{
		RequestID:            req.ID,
		RequestType:          domain.ServiceType(req.RequestType),
		Priority:             domain.Priority(req.Priority),
		Title:                req.Title,
		Description:          req.Description,
		TenantPreferredSlots: append([]string{}, req.TenantPreferredSlots...),
		ExpiresAt:            link.Token.ExpiresAt,
	}, nil
}

// Decide records an accept or propose decision and consumes the link
func (s *ScheduleService) Decide(ctx context.Context, token string, in *domain.SchedulingDecisionRequest) (*domain.SchedulingAck, error) {
	link, err := s.links.Resolve(ctx, token, domain.PurposeSchedule)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	decision := models.ScheduleDecision{
		Action:    in.Action,
		Notes:     strings.TrimSpace(in.Notes),
		DecidedAt: now,
	}
	if utf8.RuneCountInString(decision.Notes) > maxNotesLength {
		return nil, domain.NewValidationError("contractor_notes", "notes must be 2000 characters or fewer")
	}

	switch in.Action {
	case domain.ActionAccept:
		at, err := s.acceptedAppointment(link.Request, in)
		if err != nil {
			return nil, err
		}
		decision.AppointmentAt = &at
	case domain.ActionPropose:
		if in.ProposedAt == nil || in.ProposedAt.IsZero() {
			return nil, domain.NewValidationError("proposed_datetime", "please choose a date and time to propose")
		}
		if in.ProposedAt.Before(now.Add(-proposalGrace)) {
			return nil, domain.NewValidationError("proposed_datetime", "proposed time cannot be in the past")
		}
		at := *in.ProposedAt
		decision.ProposedAt = &at
	default:
		return nil, domain.NewValidationError("action", "please choose to accept a tenant slot or propose a new time")
	}

	if err := s.requestRepo.ApplyScheduleDecision(ctx, link.Request.ID, link.Token.ID, decision); err != nil {
		return nil, err
	}

	ack := &domain.SchedulingAck{
		RequestID:     link.Request.ID,
		Action:        decision.Action,
		AppointmentAt: decision.AppointmentAt,
		ProposedAt:    decision.ProposedAt,
	}
	if decision.Action == domain.ActionAccept {
		ack.Status = domain.StatusScheduled
		log.Printf("✅ Appointment confirmed for request %d at %s", ack.RequestID, decision.AppointmentAt.Format(time.RFC3339))
	} else {
		ack.Status = domain.StatusPendingTenantConfirmation
		log.Printf("✅ New time proposed for request %d: %s", ack.RequestID, decision.ProposedAt.Format(time.RFC3339))
	}
	return ack, nil
}

// acceptedAppointment checks the chosen day and slot and returns the instant
// they denote. A client-supplied timestamp must agree with day and slot in
// its own offset; without one the business zone is used.
func (s *ScheduleService) acceptedAppointment(req *models.ServiceRequest, in *domain.SchedulingDecisionRequest) (time.Time, error) {
	if in.SelectedDay == "" {
		return time.Time{}, domain.NewValidationError("selected_day", "please choose one of the tenant's preferred days")
	}
	if !slots.Contains(req.TenantPreferredSlots, in.SelectedDay) {
		return time.Time{}, domain.NewValidationError("selected_day", "selected day is not one of the tenant's preferred days")
	}
	if in.SelectedTime == "" {
		return time.Time{}, domain.NewValidationError("selected_time", "please choose a time slot")
	}
	if !slots.OnGrid(in.SelectedTime) {
		return time.Time{}, domain.NewValidationError("selected_time", "time must be a half-hour slot between 08:00 and 17:30")
	}

	if in.AppointmentAt == nil {
		at, err := slots.Combine(in.SelectedDay, in.SelectedTime, s.loc)
		if err != nil {
			return time.Time{}, domain.NewValidationError("selected_day", "selected day is not a valid date")
		}
		return at, nil
	}

	at := *in.AppointmentAt
	if at.Format(slots.DayLayout) != in.SelectedDay || at.Format(slots.TimeLayout) != in.SelectedTime {
		return time.Time{}, domain.NewValidationError("appointment_datetime", "appointment time does not match the selected day and slot")
	}
	return at, nil
}
