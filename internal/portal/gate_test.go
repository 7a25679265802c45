package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"propdesk/internal/core/approval"
	"propdesk/internal/core/domain"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gateStart = time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

func newInvoiceAPI(verdicts ...*domain.Availability) *fakeAPI {
	return &fakeAPI{
		invoice: &domain.InvoiceView{
			RequestID:   7,
			RequestType: domain.ServiceTypePlumbing,
			Priority:    domain.PriorityEmergency,
			Title:       "Burst pipe",
		},
		verdicts: verdicts,
	}
}

func loadedGate(t *testing.T, api *fakeAPI) (*Gate, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(gateStart)
	g := NewGate(api, "inv-token", GateOptions{Clock: clock})
	t.Cleanup(g.Close)
	require.NoError(t, g.Load(context.Background()))
	return g, clock
}

func validForm(amount string) *InvoiceForm {
	return &InvoiceForm{
		Amount:      decimal.RequireFromString(amount),
		Description: "Replaced section of copper pipe",
		FileName:    "invoice-7.pdf",
		File:        pdfBytes,
	}
}

func TestGate_LockedShowsCountdown(t *testing.T) {
	api := newInvoiceAPI(lockedVerdict(ptr(gateStart.Add(2*time.Hour + 5*time.Minute))))
	g, _ := loadedGate(t, api)

	snap := g.Snapshot()
	assert.Equal(t, GateLocked, snap.State)
	assert.Equal(t, domain.LockJobNotCompleted, snap.Reason)
	assert.Equal(t, "2h 5m", snap.Countdown)
	assert.Equal(t, "Invoice upload opens after the scheduled appointment.", snap.Message)
	assert.Equal(t, 2, g.timers.Len())

	_, err := g.Submit(context.Background(), validForm("100"))
	assert.ErrorIs(t, err, domain.ErrNotAvailable)
	avail, uploads, _, _ := api.calls()
	assert.Equal(t, 1, avail)
	assert.Zero(t, uploads)
}

func TestGate_PastAvailableAfterChecksOnceThenPolls(t *testing.T) {
	api := newInvoiceAPI(lockedVerdict(ptr(gateStart.Add(-time.Minute))))
	g, clock := loadedGate(t, api)
	assert.Equal(t, GateLocked, g.State())
	assert.Equal(t, "0s", g.Snapshot().Countdown)

	// poll and countdown tickers
	clock.BlockUntil(2)
	clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		avail, _, _, _ := api.calls()
		return avail == 2
	}, time.Second, 5*time.Millisecond)

	// the server still says locked for the same instant: no tick restarts
	assert.Eventually(t, func() bool { return g.timers.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, GateLocked, g.State())

	clock.Advance(10 * time.Second)
	assert.Never(t, func() bool {
		avail, _, _, _ := api.calls()
		return avail > 2
	}, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(19 * time.Second)
	assert.Eventually(t, func() bool {
		avail, _, _, _ := api.calls()
		return avail == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, GateLocked, g.State())
}

func TestGate_PollOpensAndStopsTimers(t *testing.T) {
	api := newInvoiceAPI(lockedVerdict(ptr(gateStart.Add(2*time.Hour))), openVerdict())

	var mu sync.Mutex
	var states []GateState
	clock := clockwork.NewFakeClockAt(gateStart)
	g := NewGate(api, "inv-token", GateOptions{
		Clock:        clock,
		PollInterval: 10 * time.Second,
		OnChange: func(s GateSnapshot) {
			mu.Lock()
			states = append(states, s.State)
			mu.Unlock()
		},
	})
	defer g.Close()
	require.NoError(t, g.Load(context.Background()))
	require.Equal(t, GateLocked, g.State())

	clock.BlockUntil(2)
	clock.Advance(10 * time.Second)
	assert.Eventually(t, func() bool { return g.State() == GateOpen }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return g.timers.Len() == 0 }, time.Second, 5*time.Millisecond)

	snap := g.Snapshot()
	assert.Empty(t, snap.Countdown)
	assert.Equal(t, "The job is complete.", snap.Message)

	clock.Advance(time.Minute)
	assert.Never(t, func() bool {
		avail, _, _, _ := api.calls()
		return avail > 2
	}, 50*time.Millisecond, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, GateLocked, states[0])
	assert.Equal(t, GateOpen, states[len(states)-1])
}

func TestGate_AlreadySubmitted(t *testing.T) {
	api := newInvoiceAPI(&domain.Availability{
		Reason:  domain.ReasonAlreadySubmitted,
		Message: "An invoice has already been submitted for this job.",
	})
	g, _ := loadedGate(t, api)

	snap := g.Snapshot()
	assert.Equal(t, GateLocked, snap.State)
	assert.Equal(t, domain.LockAlreadySubmitted, snap.Reason)
	assert.Zero(t, g.timers.Len())

	_, err := g.Submit(context.Background(), validForm("120"))
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
	_, uploads, submits, _ := api.calls()
	assert.Zero(t, uploads)
	assert.Zero(t, submits)
}

func TestGate_SubmitAtThreshold(t *testing.T) {
	api := newInvoiceAPI(openVerdict())
	g, _ := loadedGate(t, api)
	require.Equal(t, GateOpen, g.State())

	preview, err := g.Preview(decimal.RequireFromString("500.00"))
	require.NoError(t, err)
	assert.True(t, preview.AutoApproved)
	assert.True(t, preview.Threshold.Equal(decimal.NewFromInt(500)))

	receipt, err := g.Submit(context.Background(), validForm("500.00"))
	require.NoError(t, err)
	assert.True(t, receipt.AutoApproved)
	assert.Equal(t, domain.ApprovalAutoApproved, receipt.Status)

	snap := g.Snapshot()
	assert.Equal(t, GateSubmitted, snap.State)
	require.NotNil(t, snap.Decision)
	assert.Equal(t, domain.ApprovalAutoApproved, snap.Decision.Status)

	require.Len(t, api.submits, 1)
	sent := api.submits[0]
	assert.Equal(t, approval.TableVersion, sent.TableVersion)
	assert.Equal(t, "mem:requests/7/invoice-7.pdf", sent.FileURL)
	assert.Equal(t, "Replaced section of copper pipe", sent.Description)

	again, err := g.Submit(context.Background(), validForm("999"))
	require.NoError(t, err)
	assert.Same(t, receipt, again)
	_, uploads, submits, _ := api.calls()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 1, submits)
}

func TestGate_OversizedFileNeverLeaves(t *testing.T) {
	api := newInvoiceAPI(openVerdict())
	g, _ := loadedGate(t, api)

	form := validForm("80")
	form.File = append(append([]byte{}, pdfBytes...), make([]byte, 12<<20)...)

	_, err := g.Submit(context.Background(), form)
	ve, ok := domain.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "file", ve.Field)
	assert.Contains(t, ve.Message, "10 MB")

	assert.Equal(t, GateOpen, g.State())
	_, uploads, submits, _ := api.calls()
	assert.Zero(t, uploads)
	assert.Zero(t, submits)
}

func TestGate_MissingFormFailsLocally(t *testing.T) {
	api := newInvoiceAPI(openVerdict())
	g, _ := loadedGate(t, api)

	_, err := g.Submit(context.Background(), nil)
	ve, ok := domain.AsValidation(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "file", ve.Field)

	assert.Equal(t, GateOpen, g.State())
	_, uploads, submits, _ := api.calls()
	assert.Zero(t, uploads)
	assert.Zero(t, submits)
}

func TestGate_ServerRejectionsRelock(t *testing.T) {
	t.Run("already submitted elsewhere", func(t *testing.T) {
		api := newInvoiceAPI(openVerdict())
		api.submitErr = &APIError{StatusCode: 409, Reason: "already_submitted", kind: domain.ErrAlreadySubmitted}
		g, _ := loadedGate(t, api)

		_, err := g.Submit(context.Background(), validForm("50"))
		assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
		snap := g.Snapshot()
		assert.Equal(t, GateLocked, snap.State)
		assert.Equal(t, domain.LockAlreadySubmitted, snap.Reason)
		assert.Zero(t, g.timers.Len())
	})

	t.Run("job reopened", func(t *testing.T) {
		api := newInvoiceAPI(openVerdict())
		api.submitErr = &APIError{StatusCode: 409, Message: "Invoice upload is not available yet.", Reason: "job_not_completed", kind: domain.ErrNotAvailable}
		g, _ := loadedGate(t, api)

		_, err := g.Submit(context.Background(), validForm("50"))
		assert.ErrorIs(t, err, domain.ErrNotAvailable)
		snap := g.Snapshot()
		assert.Equal(t, GateLocked, snap.State)
		assert.Equal(t, domain.LockJobNotCompleted, snap.Reason)
		assert.Equal(t, "Invoice upload is not available yet.", snap.Message)
		assert.Equal(t, 1, g.timers.Len())
	})

	t.Run("transient failure stays open", func(t *testing.T) {
		api := newInvoiceAPI(openVerdict())
		api.submitErr = &APIError{StatusCode: 502, kind: domain.ErrTransient}
		g, _ := loadedGate(t, api)

		_, err := g.Submit(context.Background(), validForm("50"))
		assert.ErrorIs(t, err, domain.ErrTransient)
		snap := g.Snapshot()
		assert.Equal(t, GateOpen, snap.State)
		assert.Equal(t, msgInvoiceFailed, snap.Message)
	})
}

func TestGate_CloseStopsTimers(t *testing.T) {
	api := newInvoiceAPI(lockedVerdict(ptr(gateStart.Add(time.Hour))))
	g, clock := loadedGate(t, api)
	require.Equal(t, 2, g.timers.Len())

	g.Close()
	assert.Zero(t, g.timers.Len())

	clock.Advance(2 * time.Hour)
	assert.Never(t, func() bool {
		avail, _, _, _ := api.calls()
		return avail > 1
	}, 50*time.Millisecond, 5*time.Millisecond)

	_, err := g.Submit(context.Background(), validForm("10"))
	assert.ErrorIs(t, err, ErrFlowClosed)
}

func TestGate_InvalidLink(t *testing.T) {
	api := newInvoiceAPI(openVerdict())
	api.invoiceErr = &APIError{StatusCode: 404, kind: domain.ErrTokenInvalid}
	clock := clockwork.NewFakeClockAt(gateStart)
	g := NewGate(api, "gone", GateOptions{Clock: clock})
	defer g.Close()

	err := g.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	snap := g.Snapshot()
	assert.Equal(t, GateLocked, snap.State)
	assert.Equal(t, domain.LockError, snap.Reason)
	assert.Equal(t, msgLinkInvalid, snap.Message)
	assert.Zero(t, g.timers.Len())

	api.mu.Lock()
	api.invoiceErr = nil
	api.mu.Unlock()
	require.NoError(t, g.Load(context.Background()))
	assert.Equal(t, GateOpen, g.State())
}
