package portal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"propdesk/internal/core/approval"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/schedule"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPollInterval is how often a locked gate asks the API again.
	DefaultPollInterval = 30 * time.Second
	// DefaultTickInterval drives the countdown display.
	DefaultTickInterval = time.Second

	msgAlreadySubmitted = "An invoice has already been submitted for this job."
	msgCheckFailed      = "We couldn't check whether invoicing is open. Retrying shortly."
)

// GateState is a step of the invoice flow.
type GateState string

const (
	GateLoading    GateState = "loading"
	GateLocked     GateState = "locked"
	GateOpen       GateState = "open"
	GateSubmitting GateState = "submitting"
	GateSubmitted  GateState = "submitted"
)

// InvoiceAPI is what the gate needs from the portal API.
type InvoiceAPI interface {
	InvoiceResolver
	InvoiceAvailability(ctx context.Context, token string) (*domain.Availability, error)
	UploadInvoiceFile(ctx context.Context, token, filename string, data []byte) (*domain.UploadResult, error)
	SubmitInvoice(ctx context.Context, token string, req *domain.InvoiceSubmissionRequest) (*domain.InvoiceReceipt, error)
}

// GateOptions tunes a Gate. Zero values use the defaults and wall time.
type GateOptions struct {
	Clock        clockwork.Clock
	PollInterval time.Duration
	TickInterval time.Duration
	// OnChange receives a snapshot after every state or countdown change.
	// It is called without the gate lock held.
	OnChange func(GateSnapshot)
}

// GateSnapshot is a consistent copy of the gate for rendering.
type GateSnapshot struct {
	State          GateState
	Reason         domain.LockReason
	View           *domain.InvoiceView
	AvailableAfter *time.Time
	Countdown      string
	Message        string
	Decision       *approval.Decision
	Receipt        *domain.InvoiceReceipt
}

// Gate drives one invoice link: it waits until the API opens invoicing,
// then validates and submits the invoice.
type Gate struct {
	api          InvoiceAPI
	token        string
	clock        clockwork.Clock
	pollInterval time.Duration
	tickInterval time.Duration
	onChange     func(GateSnapshot)

	ctx    context.Context
	cancel context.CancelFunc
	timers *schedule.Group

	mu             sync.Mutex
	state          GateState
	reason         domain.LockReason
	view           *domain.InvoiceView
	availableAfter *time.Time
	firedFor       *time.Time
	countdown      string
	message        string
	decision       *approval.Decision
	receipt        *domain.InvoiceReceipt
	poll           *schedule.Task
	tick           *schedule.Task
	checking       bool
	closed         bool
}

// NewGate creates a gate for token in the loading state.
func NewGate(api InvoiceAPI, token string, opts GateOptions) *Gate {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		api:          api,
		token:        token,
		clock:        opts.Clock,
		pollInterval: opts.PollInterval,
		tickInterval: opts.TickInterval,
		onChange:     opts.OnChange,
		ctx:          ctx,
		cancel:       cancel,
		timers:       schedule.NewGroup(opts.Clock),
		state:        GateLoading,
	}
}

// Load resolves the link and asks for the first verdict. It may be called
// again after a load failure.
func (g *Gate) Load(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrFlowClosed
	}
	if g.state != GateLoading && !(g.state == GateLocked && g.reason == domain.LockError) {
		g.mu.Unlock()
		return nil
	}
	g.state = GateLoading
	g.mu.Unlock()

	ctx, done := bind(ctx, g.ctx)
	defer done()

	view, err := resolveInvoice(ctx, g.api, g.token)
	var avail *domain.Availability
	if err == nil {
		avail, err = g.api.InvoiceAvailability(ctx, g.token)
		if err != nil {
			err = classify(ctx, err)
		}
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrFlowClosed
	}
	if err != nil {
		g.fail(err)
	} else {
		g.view = view
		g.apply(avail)
	}
	snap := g.snapshot()
	g.mu.Unlock()

	g.notify(snap)
	return err
}

// State returns the current step.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot returns a copy of the gate.
func (g *Gate) Snapshot() GateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot()
}

// Preview returns the auto-approval outcome amount would get for this job.
func (g *Gate) Preview(amount decimal.Decimal) (approval.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.view == nil {
		return approval.Decision{}, ErrNotReady
	}
	return approval.Decide(amount, g.view.RequestType, g.view.Priority), nil
}

// CheckNow asks the API for a fresh verdict while locked.
func (g *Gate) CheckNow() {
	g.check()
}

// Submit validates the form, uploads the document and records the invoice.
// A submitted gate is terminal; further calls return the stored receipt.
func (g *Gate) Submit(ctx context.Context, form *InvoiceForm) (*domain.InvoiceReceipt, error) {
	g.mu.Lock()
	switch {
	case g.closed:
		g.mu.Unlock()
		return nil, ErrFlowClosed
	case g.state == GateSubmitted:
		receipt := g.receipt
		g.mu.Unlock()
		return receipt, nil
	case g.state == GateSubmitting:
		g.mu.Unlock()
		return nil, ErrSubmitInFlight
	case g.state == GateLocked && g.reason == domain.LockAlreadySubmitted:
		g.mu.Unlock()
		return nil, domain.ErrAlreadySubmitted
	case g.state != GateOpen:
		g.mu.Unlock()
		return nil, domain.ErrNotAvailable
	}

	if err := form.Validate(); err != nil {
		g.mu.Unlock()
		return nil, err
	}

	decision := approval.Decide(form.Amount, g.view.RequestType, g.view.Priority)
	g.decision = &decision
	g.state = GateSubmitting
	g.message = ""
	snap := g.snapshot()
	g.mu.Unlock()
	g.notify(snap)

	ctx, done := bind(ctx, g.ctx)
	defer done()

	var receipt *domain.InvoiceReceipt
	upload, err := g.api.UploadInvoiceFile(ctx, g.token, form.fileName(), form.File)
	if err == nil {
		receipt, err = g.api.SubmitInvoice(ctx, g.token, &domain.InvoiceSubmissionRequest{
			FileURL:      upload.FileURL,
			Amount:       form.Amount,
			Description:  strings.TrimSpace(form.Description),
			Notes:        strings.TrimSpace(form.Notes),
			TableVersion: decision.TableVersion,
		})
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrFlowClosed
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadySubmitted):
			g.lock(domain.LockAlreadySubmitted, msgAlreadySubmitted)
		case errors.Is(err, domain.ErrNotAvailable):
			g.lock(domain.LockJobNotCompleted, ServerMessage(err))
			g.startPoll()
		case errors.Is(err, domain.ErrTokenInvalid):
			g.lock(domain.LockError, msgLinkInvalid)
		default:
			g.state = GateOpen
			g.message = ServerMessage(err)
			if g.message == "" {
				g.message = msgInvoiceFailed
			}
		}
		snap = g.snapshot()
		g.mu.Unlock()
		g.notify(snap)
		return nil, err
	}

	g.state = GateSubmitted
	g.receipt = receipt
	g.stopTimers()
	snap = g.snapshot()
	g.mu.Unlock()
	g.notify(snap)
	return receipt, nil
}

// Close stops every timer and cancels in-flight calls.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.poll = nil
	g.tick = nil
	g.mu.Unlock()

	g.timers.Close()
	g.cancel()
}

// apply adopts a server verdict. Only the server opens the gate. Callers
// hold g.mu.
func (g *Gate) apply(avail *domain.Availability) {
	switch {
	case avail.UploadEnabled:
		g.state = GateOpen
		g.reason = ""
		g.message = avail.Message
		g.availableAfter = copyTime(avail.AvailableAfter)
		g.countdown = ""
		g.stopTimers()
	case avail.Reason == domain.ReasonAlreadySubmitted:
		g.lock(domain.LockAlreadySubmitted, avail.Message)
	default:
		g.lock(domain.LockJobNotCompleted, avail.Message)
		g.availableAfter = copyTime(avail.AvailableAfter)
		g.startPoll()
		g.startCountdown()
	}
}

// lock moves to locked(reason). Only job_not_completed keeps timers.
func (g *Gate) lock(reason domain.LockReason, message string) {
	g.state = GateLocked
	g.reason = reason
	g.message = message
	if reason != domain.LockJobNotCompleted {
		g.availableAfter = nil
		g.countdown = ""
		g.stopTimers()
	}
}

func (g *Gate) fail(err error) {
	message := msgLoadFailed
	if errors.Is(err, domain.ErrTokenInvalid) {
		message = msgLinkInvalid
	}
	g.lock(domain.LockError, message)
}

func (g *Gate) startPoll() {
	if g.poll != nil || g.closed {
		return
	}
	g.poll = g.timers.Every(g.pollInterval, g.check)
}

// startCountdown runs the 1s display tick unless the current
// available_after has already been reached once.
func (g *Gate) startCountdown() {
	if g.availableAfter == nil {
		g.countdown = ""
		g.tick.Stop()
		g.tick = nil
		return
	}
	if g.firedFor != nil && g.firedFor.Equal(*g.availableAfter) {
		g.countdown = FormatCountdown(0)
		return
	}
	g.countdown = FormatCountdown(g.availableAfter.Sub(g.clock.Now()))
	if g.tick == nil && !g.closed {
		g.tick = g.timers.Every(g.tickInterval, g.onTick)
	}
}

func (g *Gate) stopTimers() {
	g.poll.Stop()
	g.poll = nil
	g.tick.Stop()
	g.tick = nil
}

func (g *Gate) onTick() {
	g.mu.Lock()
	if g.closed || g.state != GateLocked || g.availableAfter == nil {
		g.mu.Unlock()
		return
	}
	remaining := g.availableAfter.Sub(g.clock.Now())
	g.countdown = FormatCountdown(remaining)
	reached := remaining <= 0
	if reached {
		at := *g.availableAfter
		g.firedFor = &at
		g.tick.Stop()
		g.tick = nil
	}
	snap := g.snapshot()
	g.mu.Unlock()

	g.notify(snap)
	if reached {
		g.check()
	}
}

// check asks the API for a fresh verdict while locked(job_not_completed).
func (g *Gate) check() {
	g.mu.Lock()
	if g.closed || g.checking || g.state != GateLocked || g.reason != domain.LockJobNotCompleted {
		g.mu.Unlock()
		return
	}
	g.checking = true
	g.mu.Unlock()

	avail, err := g.api.InvoiceAvailability(g.ctx, g.token)

	g.mu.Lock()
	g.checking = false
	if g.closed || g.state != GateLocked || g.reason != domain.LockJobNotCompleted {
		g.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		g.apply(avail)
	case errors.Is(err, domain.ErrTokenInvalid):
		g.lock(domain.LockError, msgLinkInvalid)
	default:
		g.message = msgCheckFailed
	}
	snap := g.snapshot()
	g.mu.Unlock()
	g.notify(snap)
}

func (g *Gate) snapshot() GateSnapshot {
	snap := GateSnapshot{
		State:          g.state,
		Reason:         g.reason,
		View:           g.view,
		AvailableAfter: copyTime(g.availableAfter),
		Countdown:      g.countdown,
		Message:        g.message,
		Receipt:        g.receipt,
	}
	if g.decision != nil {
		d := *g.decision
		snap.Decision = &d
	}
	return snap
}

func (g *Gate) notify(snap GateSnapshot) {
	if g.onChange != nil {
		g.onChange(snap)
	}
}
