package portal

import (
	"context"
	"sync"
	"time"

	"propdesk/internal/core/domain"

	"github.com/shopspring/decimal"
)

var pdfBytes = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

// fakeAPI is an in-process stand-in for the portal API.
type fakeAPI struct {
	mu sync.Mutex

	schedule    *domain.ScheduleView
	scheduleErr error
	decisions   []*domain.SchedulingDecisionRequest
	decideErr   error
	decideGate  chan struct{}

	invoice    *domain.InvoiceView
	invoiceErr error
	verdicts   []*domain.Availability
	availErr   error
	availCalls int
	uploads    int
	submits    []*domain.InvoiceSubmissionRequest
	submitErr  error
}

func (f *fakeAPI) ResolveSchedule(_ context.Context, _ string) (*domain.ScheduleView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	view := *f.schedule
	return &view, nil
}

func (f *fakeAPI) SubmitSchedulingDecision(ctx context.Context, _ string, req *domain.SchedulingDecisionRequest) (*domain.SchedulingAck, error) {
	f.mu.Lock()
	gate := f.decideGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, req)
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	status := domain.StatusScheduled
	if req.Action == domain.ActionPropose {
		status = domain.StatusPendingTenantConfirmation
	}
	return &domain.SchedulingAck{
		RequestID:     f.schedule.RequestID,
		Action:        req.Action,
		Status:        status,
		AppointmentAt: req.AppointmentAt,
		ProposedAt:    req.ProposedAt,
	}, nil
}

func (f *fakeAPI) ResolveInvoice(_ context.Context, _ string) (*domain.InvoiceView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	view := *f.invoice
	return &view, nil
}

func (f *fakeAPI) InvoiceAvailability(_ context.Context, _ string) (*domain.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availCalls++
	if f.availErr != nil {
		return nil, f.availErr
	}
	verdict := f.verdicts[0]
	if len(f.verdicts) > 1 {
		f.verdicts = f.verdicts[1:]
	}
	v := *verdict
	return &v, nil
}

func (f *fakeAPI) UploadInvoiceFile(_ context.Context, _ string, filename string, data []byte) (*domain.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return &domain.UploadResult{FileURL: "mem:requests/7/" + filename, ContentType: "application/pdf", Size: int64(len(data))}, nil
}

func (f *fakeAPI) SubmitInvoice(_ context.Context, _ string, req *domain.InvoiceSubmissionRequest) (*domain.InvoiceReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	threshold := decimal.NewFromInt(500)
	auto := req.Amount.LessThanOrEqual(threshold)
	status := domain.ApprovalPendingReview
	if auto {
		status = domain.ApprovalAutoApproved
	}
	return &domain.InvoiceReceipt{
		InvoiceID:    1,
		RequestID:    f.invoice.RequestID,
		Amount:       req.Amount,
		AutoApproved: auto,
		Status:       status,
		Threshold:    threshold,
		TableVersion: req.TableVersion,
	}, nil
}

func (f *fakeAPI) setVerdicts(v ...*domain.Availability) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = v
}

func (f *fakeAPI) calls() (avail, uploads, submits, decisions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.availCalls, f.uploads, len(f.submits), len(f.decisions)
}

func lockedVerdict(after *time.Time) *domain.Availability {
	return &domain.Availability{
		Reason:         domain.ReasonJobNotCompleted,
		Message:        "Invoice upload opens after the scheduled appointment.",
		AvailableAfter: after,
	}
}

func openVerdict() *domain.Availability {
	return &domain.Availability{UploadEnabled: true, Reason: domain.ReasonJobCompleted, Message: "The job is complete."}
}

func ptr(t time.Time) *time.Time { return &t }
