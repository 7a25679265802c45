package portal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"propdesk/internal/core/domain"
	"propdesk/internal/core/slots"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrFlowClosed is returned for results that arrive after Close.
	ErrFlowClosed = errors.New("flow closed")
	// ErrNotReady is returned when an action needs a state the flow is not in.
	ErrNotReady = errors.New("flow is not ready")
	// ErrSubmitInFlight is returned for a submit while another is running.
	ErrSubmitInFlight = errors.New("submission already in progress")
)

const (
	maxNotesLength = 2000

	msgLinkInvalid   = "This link is invalid or has expired."
	msgLoadFailed    = "We couldn't load this request. Please try again."
	msgSubmitFailed  = "We couldn't send your response. Please try again."
	msgInvoiceFailed = "We couldn't submit your invoice. Please try again."
)

// NegotiatorState is a step of the scheduling flow.
type NegotiatorState string

const (
	NegotiatorLoading    NegotiatorState = "loading"
	NegotiatorReady      NegotiatorState = "ready"
	NegotiatorSubmitting NegotiatorState = "submitting"
	NegotiatorSubmitted  NegotiatorState = "submitted"
	NegotiatorError      NegotiatorState = "error"
)

// Choice is a complete scheduling decision, either Accept or Propose.
type Choice interface {
	Action() domain.DecisionAction
}

// Accept takes one of the tenant's days at a grid slot.
type Accept struct {
	Day  string
	Time string
}

// Action implements Choice.
func (Accept) Action() domain.DecisionAction { return domain.ActionAccept }

// Propose suggests a different time to the tenant.
type Propose struct {
	At time.Time
}

// Action implements Choice.
func (Propose) Action() domain.DecisionAction { return domain.ActionPropose }

// ScheduleAPI is what the negotiator needs from the portal API.
type ScheduleAPI interface {
	ScheduleResolver
	SubmitSchedulingDecision(ctx context.Context, token string, req *domain.SchedulingDecisionRequest) (*domain.SchedulingAck, error)
}

// NegotiatorOptions tunes a Negotiator. Zero values use local time and the
// wall clock.
type NegotiatorOptions struct {
	Location *time.Location
	Clock    clockwork.Clock
}

// NegotiatorSnapshot is a consistent copy of the flow for rendering.
type NegotiatorSnapshot struct {
	State    NegotiatorState
	View     *domain.ScheduleView
	Action   domain.DecisionAction
	Day      string
	Time     string
	Proposed *time.Time
	Notes    string
	Message  string
	Ack      *domain.SchedulingAck
}

// Negotiator drives one schedule link from resolution to a recorded
// decision.
type Negotiator struct {
	api   ScheduleAPI
	token string
	loc   *time.Location
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    NegotiatorState
	view     *domain.ScheduleView
	action   domain.DecisionAction
	day      string
	slot     string
	proposed *time.Time
	notes    string
	message  string
	err      error
	ack      *domain.SchedulingAck
	inFlight bool
	closed   bool
}

// NewNegotiator creates a flow for token in the loading state.
func NewNegotiator(api ScheduleAPI, token string, opts NegotiatorOptions) *Negotiator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Negotiator{
		api:    api,
		token:  token,
		loc:    opts.Location,
		clock:  opts.Clock,
		ctx:    ctx,
		cancel: cancel,
		state:  NegotiatorLoading,
	}
}

// Load resolves the link. It may be called again from the error state.
func (n *Negotiator) Load(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrFlowClosed
	}
	if n.state != NegotiatorLoading && n.state != NegotiatorError {
		n.mu.Unlock()
		return nil
	}
	n.state = NegotiatorLoading
	n.mu.Unlock()

	ctx, done := bind(ctx, n.ctx)
	defer done()
	view, err := resolveSchedule(ctx, n.api, n.token)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrFlowClosed
	}
	if err != nil {
		n.state = NegotiatorError
		n.err = err
		n.message = msgLoadFailed
		if errors.Is(err, domain.ErrTokenInvalid) {
			n.message = msgLinkInvalid
		}
		return err
	}

	n.view = view
	n.err = nil
	n.message = ""
	n.state = NegotiatorReady
	return nil
}

// State returns the current step.
func (n *Negotiator) State() NegotiatorState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Snapshot returns a copy of the flow.
func (n *Negotiator) Snapshot() NegotiatorSnapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NegotiatorSnapshot{
		State:    n.state,
		View:     n.view,
		Action:   n.action,
		Day:      n.day,
		Time:     n.slot,
		Proposed: copyTime(n.proposed),
		Notes:    n.notes,
		Message:  n.message,
		Ack:      n.ack,
	}
}

// Err returns the error behind the error state.
func (n *Negotiator) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// CanAccept reports whether the tenant offered any days.
func (n *Negotiator) CanAccept() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view != nil && len(n.view.TenantPreferredSlots) > 0
}

// Days returns the tenant's preferred days.
func (n *Negotiator) Days() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.view == nil {
		return nil
	}
	return append([]string(nil), n.view.TenantPreferredSlots...)
}

// Slots returns the selectable slot starts.
func (n *Negotiator) Slots() []string {
	return slots.Grid()
}

// ChooseAccept switches to the accept path.
func (n *Negotiator) ChooseAccept() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.editable(); err != nil {
		return err
	}
	if len(n.view.TenantPreferredSlots) == 0 {
		return domain.NewValidationError("action", "the tenant did not offer any days, please propose a time")
	}
	n.action = domain.ActionAccept
	return nil
}

// ChooseProposal switches to the propose path. Leaving accept drops the
// selected day and time; a proposed datetime is kept.
func (n *Negotiator) ChooseProposal() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.editable(); err != nil {
		return err
	}
	if n.action == domain.ActionAccept {
		n.day = ""
		n.slot = ""
	}
	n.action = domain.ActionPropose
	return nil
}

// SelectDay picks one of the tenant's days.
func (n *Negotiator) SelectDay(day string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.editable(); err != nil {
		return err
	}
	if n.action != domain.ActionAccept {
		return domain.NewValidationError("action", "choose to accept a tenant day first")
	}
	if !slots.Contains(n.view.TenantPreferredSlots, day) {
		return domain.NewValidationError("selected_day", "selected day is not one of the tenant's preferred days")
	}
	n.day = day
	return nil
}

// SelectTime picks a slot start such as "14:00".
func (n *Negotiator) SelectTime(hhmm string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.editable(); err != nil {
		return err
	}
	if n.action != domain.ActionAccept {
		return domain.NewValidationError("action", "choose to accept a tenant day first")
	}
	if !slots.OnGrid(hhmm) {
		return domain.NewValidationError("selected_time", "time must be a half-hour slot between 08:00 and 17:30")
	}
	n.slot = hhmm
	return nil
}

// SetProposed records the proposed datetime.
func (n *Negotiator) SetProposed(at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.editable(); err != nil {
		return err
	}
	n.proposed = &at
	return nil
}

// SetNotes records the optional contractor notes.
func (n *Negotiator) SetNotes(notes string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.editable(); err != nil {
		return err
	}
	n.notes = notes
	return nil
}

// Validate checks the selection without changing state.
func (n *Negotiator) Validate() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := n.choice()
	return err
}

// Choice returns the validated decision.
func (n *Negotiator) Choice() (Choice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.choice()
}

// Submit validates and sends the decision. Only one submission can be in
// flight; after success further calls return the stored acknowledgement.
func (n *Negotiator) Submit(ctx context.Context) (*domain.SchedulingAck, error) {
	n.mu.Lock()
	switch {
	case n.closed:
		n.mu.Unlock()
		return nil, ErrFlowClosed
	case n.state == NegotiatorSubmitted:
		ack := n.ack
		n.mu.Unlock()
		return ack, nil
	case n.inFlight || n.state == NegotiatorSubmitting:
		n.mu.Unlock()
		return nil, ErrSubmitInFlight
	case n.state != NegotiatorReady:
		n.mu.Unlock()
		return nil, ErrNotReady
	}

	choice, err := n.choice()
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}
	req, err := n.payload(choice)
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}
	n.state = NegotiatorSubmitting
	n.inFlight = true
	n.message = ""
	n.mu.Unlock()

	ctx, done := bind(ctx, n.ctx)
	defer done()
	ack, err := n.api.SubmitSchedulingDecision(ctx, n.token, req)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.inFlight = false
	if n.closed {
		return nil, ErrFlowClosed
	}
	if err != nil {
		n.state = NegotiatorReady
		n.err = err
		n.message = ServerMessage(err)
		if n.message == "" {
			n.message = msgSubmitFailed
		}
		return nil, err
	}

	n.state = NegotiatorSubmitted
	n.ack = ack
	n.err = nil
	return ack, nil
}

// Close tears the flow down. In-flight calls are cancelled and their
// results discarded.
func (n *Negotiator) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.cancel()
}

// editable requires the ready state. Callers hold n.mu.
func (n *Negotiator) editable() error {
	if n.closed {
		return ErrFlowClosed
	}
	if n.state != NegotiatorReady {
		return ErrNotReady
	}
	return nil
}

// choice builds the decision from the selection. Callers hold n.mu.
func (n *Negotiator) choice() (Choice, error) {
	if utf8.RuneCountInString(strings.TrimSpace(n.notes)) > maxNotesLength {
		return nil, domain.NewValidationError("contractor_notes", "notes must be 2000 characters or fewer")
	}

	switch n.action {
	case domain.ActionAccept:
		if n.day == "" {
			return nil, domain.NewValidationError("selected_day", "please choose one of the tenant's preferred days")
		}
		if n.slot == "" {
			return nil, domain.NewValidationError("selected_time", "please choose a time slot")
		}
		return Accept{Day: n.day, Time: n.slot}, nil
	case domain.ActionPropose:
		if n.proposed == nil {
			return nil, domain.NewValidationError("proposed_datetime", "please choose a date and time to propose")
		}
		if n.proposed.Before(n.clock.Now()) {
			return nil, domain.NewValidationError("proposed_datetime", "proposed time cannot be in the past")
		}
		return Propose{At: *n.proposed}, nil
	default:
		return nil, domain.NewValidationError("action", "please choose to accept a tenant slot or propose a new time")
	}
}

// payload turns a choice into the wire request. Accept combines day and
// slot in the negotiator's zone; a proposal is sent as chosen.
func (n *Negotiator) payload(choice Choice) (*domain.SchedulingDecisionRequest, error) {
	req := &domain.SchedulingDecisionRequest{
		Action: choice.Action(),
		Notes:  strings.TrimSpace(n.notes),
	}
	switch c := choice.(type) {
	case Accept:
		at, err := slots.Combine(c.Day, c.Time, n.loc)
		if err != nil {
			return nil, domain.NewValidationError("selected_day", "selected day is not a valid date")
		}
		req.SelectedDay = c.Day
		req.SelectedTime = c.Time
		req.AppointmentAt = &at
	case Propose:
		at := c.At
		req.ProposedAt = &at
	}
	return req, nil
}

// bind derives a context that is also cancelled when owner is.
func bind(ctx, owner context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(owner, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
