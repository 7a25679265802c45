package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"propdesk/internal/adapters/denylist"
	"propdesk/internal/adapters/persistence/memory"
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/password"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdfHeader = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
)

type fakeDocuments struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeDocuments) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = data
	return "mem:" + key, nil
}

func (f *fakeDocuments) Owns(_ context.Context, ref, keyPrefix string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := strings.CutPrefix(ref, "mem:")
	if !ok || !strings.HasPrefix(key, keyPrefix) {
		return false, nil
	}
	_, stored := f.puts[key]
	return stored, nil
}

type fixture struct {
	clock    *clockwork.FakeClock
	cfg      *config.Config
	repos    *repositories.Registry
	denylist *denylist.Memory
	docs     *fakeDocuments

	auth     *AuthService
	links    *LinkTokenService
	schedule *ScheduleService
	invoices *InvoiceService
	requests *ServiceRequestService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		AppMode: "dev",
		JWT:     config.JWTConfig{Secret: "test-secret", TokenHours: 24, RefreshLead: 5 * time.Minute},
		Links: config.LinkConfig{
			ScheduleTTL:        7 * 24 * time.Hour,
			InvoiceTTL:         30 * 24 * time.Hour,
			InvoiceUnlockDelay: time.Hour,
			PublicBaseURL:      "https://portal.test",
		},
	}

	f := &fixture{
		clock:    clock,
		cfg:      cfg,
		repos:    memory.NewRegistry(clock),
		denylist: denylist.NewMemory(clock),
		docs:     &fakeDocuments{},
	}
	f.auth = NewAuthService(f.repos.Accounts, f.repos.Sessions, f.denylist, cfg, clock)
	f.links = NewLinkTokenService(f.repos.Links, f.repos.Requests, cfg, clock)
	f.schedule = NewScheduleService(f.links, f.repos.Requests, time.UTC, clock)
	f.invoices = NewInvoiceService(f.links, f.repos.Invoices, f.docs, cfg.Links.InvoiceUnlockDelay, clock)
	f.requests = NewServiceRequestService(f.repos.Requests, f.links, clock)
	return f
}

func (f *fixture) request(t *testing.T, requestType, priority string, days ...string) *models.ServiceRequest {
	t.Helper()
	req, err := f.requests.Create(context.Background(), &CreateServiceRequestInput{
		RequestType:          requestType,
		Priority:             priority,
		Title:                "Kitchen sink leak",
		Description:          "Water under the sink",
		TenantPreferredSlots: days,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) link(t *testing.T, requestID uint, purpose domain.TokenPurpose) string {
	t.Helper()
	issued, err := f.requests.IssueLink(context.Background(), requestID, purpose)
	require.NoError(t, err)
	return issued.Token
}

func (f *fixture) account(t *testing.T, email, secret, status string) *models.Account {
	t.Helper()
	hash, err := password.HashWithCost(secret, 4)
	require.NoError(t, err)
	account := &models.Account{
		Email:        email,
		Password:     hash,
		FirstName:    "Pat",
		LastName:     "Rivera",
		AccountType:  string(domain.AccountContractor),
		Status:       status,
		PortalActive: true,
	}
	require.NoError(t, f.repos.Accounts.Create(context.Background(), account))
	return account
}

// ============================================================
// Auth
// ============================================================

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "pat@example.com", "correct-horse", "active")
	f.account(t, "gone@example.com", "correct-horse", "suspended")

	t.Run("success", func(t *testing.T) {
		res, err := f.auth.Login(ctx, &LoginInput{Email: " PAT@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.Equal(t, 24*60*60, res.ExpiresIn)
		assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.ExpiresAt)
		assert.Equal(t, "pat@example.com", res.Account.Email)

		claims, err := f.auth.ValidateAccessToken(ctx, res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, res.Account.ID, claims.AccountID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.auth.Login(ctx, &LoginInput{Email: "pat@example.com", Password: "nope"})
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.auth.Login(ctx, &LoginInput{Email: "who@example.com", Password: "correct-horse"})
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("inactive account", func(t *testing.T) {
		_, err := f.auth.Login(ctx, &LoginInput{Email: "gone@example.com", Password: "correct-horse"})
		assert.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := f.auth.Login(ctx, &LoginInput{Password: "x"})
		ve, ok := domain.AsValidation(err)
		require.True(t, ok)
		assert.Equal(t, "email", ve.Field)
	})
}

func TestAuthService_RefreshRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "pat@example.com", "correct-horse", "active")

	login, err := f.auth.Login(ctx, &LoginInput{Email: "pat@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	oldClaims, err := f.auth.ValidateAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(23*time.Hour + 55*time.Minute)

	refreshed, err := f.auth.Refresh(ctx, oldClaims)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), refreshed.ExpiresAt)

	_, err = f.auth.ValidateAccessToken(ctx, login.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	_, err = f.auth.Refresh(ctx, oldClaims)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	newClaims, err := f.auth.ValidateAccessToken(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, oldClaims.TokenID(), newClaims.TokenID())
}

func TestAuthService_LogoutAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.account(t, "pat@example.com", "correct-horse", "active")

	login, err := f.auth.Login(ctx, &LoginInput{Email: "pat@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	claims, err := f.auth.ValidateAccessToken(ctx, login.AccessToken)
	require.NoError(t, err)

	me, err := f.auth.Me(ctx, claims.AccountID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, me.ID)

	require.NoError(t, f.auth.Logout(ctx, claims))
	_, err = f.auth.ValidateAccessToken(ctx, login.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	second, err := f.auth.Login(ctx, &LoginInput{Email: "pat@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.auth.ValidateAccessToken(ctx, second.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

// ============================================================
// Links
// ============================================================

func TestLinkTokenService_Resolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "plumbing", "emergency", "2026-03-11")

	issued, err := f.links.Issue(ctx, req.ID, domain.PurposeSchedule)
	require.NoError(t, err)
	assert.Len(t, issued.Token, 43)
	assert.Equal(t, "https://portal.test/contractor/schedule/"+issued.Token, issued.URL)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), issued.ExpiresAt)

	link, err := f.links.Resolve(ctx, issued.Token, domain.PurposeSchedule)
	require.NoError(t, err)
	assert.Equal(t, req.ID, link.Request.ID)

	_, err = f.links.Resolve(ctx, issued.Token, domain.PurposeInvoice)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, err = f.links.Resolve(ctx, "not-a-token", domain.PurposeSchedule)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.links.Resolve(ctx, issued.Token, domain.PurposeSchedule)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestLinkTokenService_IssueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.links.Issue(ctx, 1, domain.TokenPurpose("admin"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.links.Issue(ctx, 404, domain.PurposeInvoice)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

// ============================================================
// Scheduling
// ============================================================

func TestScheduleService_AcceptTenantSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "plumbing", "emergency", "2026-03-11", "2026-03-12")
	token := f.link(t, req.ID, domain.PurposeSchedule)

	view, err := f.schedule.View(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-03-11", "2026-03-12"}, view.TenantPreferredSlots)
	assert.Equal(t, domain.PriorityEmergency, view.Priority)

	at := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	ack, err := f.schedule.Decide(ctx, token, &domain.SchedulingDecisionRequest{
		Action:        domain.ActionAccept,
		SelectedDay:   "2026-03-12",
		SelectedTime:  "14:00",
		AppointmentAt: &at,
		Notes:         "  bring parts  ",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, ack.Status)
	require.NotNil(t, ack.AppointmentAt)
	assert.True(t, at.Equal(*ack.AppointmentAt))

	stored, err := f.repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "bring parts", stored.ContractorNotes)

	_, err = f.schedule.View(ctx, token)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestScheduleService_AcceptWithoutTimestampUsesBusinessZone(t *testing.T) {
	f := newFixture(t)
	loc := time.FixedZone("EST", -5*60*60)
	f.schedule = NewScheduleService(f.links, f.repos.Requests, loc, f.clock)

	req := f.request(t, "hvac", "routine", "2026-03-11")
	token := f.link(t, req.ID, domain.PurposeSchedule)

	ack, err := f.schedule.Decide(context.Background(), token, &domain.SchedulingDecisionRequest{
		Action:       domain.ActionAccept,
		SelectedDay:  "2026-03-11",
		SelectedTime: "08:30",
	})
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 11, 13, 30, 0, 0, time.UTC).Equal(*ack.AppointmentAt))
}

func TestScheduleService_DecideValidation(t *testing.T) {
	offset := time.FixedZone("", 2*60*60)
	mismatched := time.Date(2026, 3, 11, 14, 0, 0, 0, offset).UTC()
	past := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		in    domain.SchedulingDecisionRequest
		field string
	}{
		{"no action", domain.SchedulingDecisionRequest{}, "action"},
		{"accept without day", domain.SchedulingDecisionRequest{Action: domain.ActionAccept}, "selected_day"},
		{"accept with day and no time", domain.SchedulingDecisionRequest{Action: domain.ActionAccept, SelectedDay: "2026-03-11"}, "selected_time"},
		{"day not offered", domain.SchedulingDecisionRequest{Action: domain.ActionAccept, SelectedDay: "2026-03-15", SelectedTime: "09:00"}, "selected_day"},
		{"off grid", domain.SchedulingDecisionRequest{Action: domain.ActionAccept, SelectedDay: "2026-03-11", SelectedTime: "18:00"}, "selected_time"},
		{"timestamp disagrees", domain.SchedulingDecisionRequest{Action: domain.ActionAccept, SelectedDay: "2026-03-11", SelectedTime: "14:00", AppointmentAt: &mismatched}, "appointment_datetime"},
		{"propose without time", domain.SchedulingDecisionRequest{Action: domain.ActionPropose}, "proposed_datetime"},
		{"propose in the past", domain.SchedulingDecisionRequest{Action: domain.ActionPropose, ProposedAt: &past}, "proposed_datetime"},
		{"notes too long", domain.SchedulingDecisionRequest{Action: domain.ActionPropose, Notes: strings.Repeat("x", 2001)}, "contractor_notes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request(t, "plumbing", "urgent", "2026-03-11")
			token := f.link(t, req.ID, domain.PurposeSchedule)

			in := tt.in
			_, err := f.schedule.Decide(context.Background(), token, &in)
			ve, ok := domain.AsValidation(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.field, ve.Field)

			// a rejected decision leaves the link usable
			_, err = f.schedule.View(context.Background(), token)
			assert.NoError(t, err)
		})
	}
}

func TestScheduleService_ProposeThenSecondLinkCannotOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "electrical", "urgent", "2026-03-11")

	first := f.link(t, req.ID, domain.PurposeSchedule)
	proposed := f.clock.Now().Add(72 * time.Hour)
	ack, err := f.schedule.Decide(ctx, first, &domain.SchedulingDecisionRequest{Action: domain.ActionPropose, ProposedAt: &proposed})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingTenantConfirmation, ack.Status)

	second := f.link(t, req.ID, domain.PurposeSchedule)
	at := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	_, err = f.schedule.Decide(ctx, second, &domain.SchedulingDecisionRequest{
		Action: domain.ActionAccept, SelectedDay: "2026-03-11", SelectedTime: "10:00", AppointmentAt: &at,
	})
	require.NoError(t, err)

	_, err = f.requests.IssueLink(ctx, req.ID, domain.PurposeSchedule)
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
}

// ============================================================
// Invoices
// ============================================================

func scheduled(t *testing.T, f *fixture, requestType, priority string, at time.Time) (*models.ServiceRequest, string) {
	t.Helper()
	day := at.Format("2006-01-02")
	req := f.request(t, requestType, priority, day)
	token := f.link(t, req.ID, domain.PurposeSchedule)
	_, err := f.schedule.Decide(context.Background(), token, &domain.SchedulingDecisionRequest{
		Action: domain.ActionAccept, SelectedDay: day, SelectedTime: at.Format("15:04"), AppointmentAt: &at,
	})
	require.NoError(t, err)
	return req, f.link(t, req.ID, domain.PurposeInvoice)
}

func TestInvoiceService_AvailabilityLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appointment := time.Date(2026, 3, 11, 14, 0, 0, 0, time.UTC)
	req, token := scheduled(t, f, "plumbing", "emergency", appointment)

	avail, err := f.invoices.Availability(ctx, token)
	require.NoError(t, err)
	assert.False(t, avail.UploadEnabled)
	assert.Equal(t, domain.ReasonJobNotCompleted, avail.Reason)
	require.NotNil(t, avail.AvailableAfter)
	assert.Equal(t, appointment.Add(time.Hour), *avail.AvailableAfter)

	f.clock.Advance(appointment.Add(time.Hour).Sub(f.clock.Now()))
	avail, err = f.invoices.Availability(ctx, token)
	require.NoError(t, err)
	assert.True(t, avail.UploadEnabled)
	assert.Equal(t, domain.ReasonAppointmentElapsed, avail.Reason)

	upload, err := f.invoices.Upload(ctx, token, pdfHeader)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", upload.ContentType)

	receipt, err := f.invoices.Submit(ctx, token, &domain.InvoiceSubmissionRequest{
		FileURL:     upload.FileURL,
		Amount:      decimal.RequireFromString("500.00"),
		Description: "Replaced shutoff valve",
	})
	require.NoError(t, err)
	assert.True(t, receipt.AutoApproved)
	assert.Equal(t, domain.ApprovalAutoApproved, receipt.Status)
	assert.True(t, decimal.NewFromInt(500).Equal(receipt.Threshold))
	assert.Equal(t, req.ID, receipt.RequestID)

	avail, err = f.invoices.Availability(ctx, token)
	require.NoError(t, err)
	assert.False(t, avail.UploadEnabled)
	assert.Equal(t, domain.ReasonAlreadySubmitted, avail.Reason)

	_, err = f.invoices.Submit(ctx, token, &domain.InvoiceSubmissionRequest{
		FileURL: upload.FileURL, Amount: decimal.NewFromInt(1), Description: "again",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)
}

func TestInvoiceService_CompletedJobOpensGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "appliance", "routine")
	token := f.link(t, req.ID, domain.PurposeInvoice)

	avail, err := f.invoices.Availability(ctx, token)
	require.NoError(t, err)
	assert.False(t, avail.UploadEnabled)
	assert.Nil(t, avail.AvailableAfter)

	_, err = f.invoices.Upload(ctx, token, pngHeader)
	assert.ErrorIs(t, err, domain.ErrNotAvailable)

	_, err = f.requests.MarkCompleted(ctx, req.ID)
	require.NoError(t, err)
	_, err = f.requests.MarkCompleted(ctx, req.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	avail, err = f.invoices.Availability(ctx, token)
	require.NoError(t, err)
	assert.True(t, avail.UploadEnabled)
	assert.Equal(t, domain.ReasonJobCompleted, avail.Reason)

	upload, err := f.invoices.Upload(ctx, token, pngHeader)
	require.NoError(t, err)

	receipt, err := f.invoices.Submit(ctx, token, &domain.InvoiceSubmissionRequest{
		FileURL:     upload.FileURL,
		Amount:      decimal.RequireFromString("150.01"),
		Description: "Dryer belt",
	})
	require.NoError(t, err)
	assert.False(t, receipt.AutoApproved)
	assert.Equal(t, domain.ApprovalPendingReview, receipt.Status)

	pending, total, err := f.invoices.List(ctx, string(domain.ApprovalPendingReview), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, receipt.InvoiceID, pending[0].ID)
}

func TestInvoiceService_UploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "hvac", "urgent")
	_, err := f.requests.MarkCompleted(ctx, req.ID)
	require.NoError(t, err)
	token := f.link(t, req.ID, domain.PurposeInvoice)

	tooLarge := make([]byte, 12<<20)
	copy(tooLarge, pdfHeader)

	tests := []struct {
		name string
		data []byte
		msg  string
	}{
		{"empty", nil, "attach"},
		{"too large", tooLarge, "10 MB"},
		{"unsupported type", []byte("plain text invoice"), "PDF, JPEG or PNG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.invoices.Upload(ctx, token, tt.data)
			ve, ok := domain.AsValidation(err)
			require.True(t, ok)
			assert.Equal(t, "file", ve.Field)
			assert.Contains(t, ve.Message, tt.msg)
		})
	}
	assert.Empty(t, f.docs.puts)
}

func TestInvoiceService_SubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "general_maintenance", "routine")
	_, err := f.requests.MarkCompleted(ctx, req.ID)
	require.NoError(t, err)
	token := f.link(t, req.ID, domain.PurposeInvoice)
	upload, err := f.invoices.Upload(ctx, token, pdfHeader)
	require.NoError(t, err)

	tests := []struct {
		name  string
		in    domain.InvoiceSubmissionRequest
		field string
	}{
		{"no description", domain.InvoiceSubmissionRequest{FileURL: upload.FileURL, Amount: decimal.NewFromInt(10)}, "description"},
		{"zero amount", domain.InvoiceSubmissionRequest{FileURL: upload.FileURL, Description: "x"}, "amount"},
		{"negative amount", domain.InvoiceSubmissionRequest{FileURL: upload.FileURL, Description: "x", Amount: decimal.NewFromInt(-5)}, "amount"},
		{"sub-cent amount", domain.InvoiceSubmissionRequest{FileURL: upload.FileURL, Description: "x", Amount: decimal.RequireFromString("10.001")}, "amount"},
		{"no file", domain.InvoiceSubmissionRequest{Description: "x", Amount: decimal.NewFromInt(10)}, "file_url"},
		{"foreign file", domain.InvoiceSubmissionRequest{FileURL: "mem:requests/999/a.pdf", Description: "x", Amount: decimal.NewFromInt(10)}, "file_url"},
		{"external url", domain.InvoiceSubmissionRequest{FileURL: fmt.Sprintf("https://files.example/requests/%d/fake.pdf", req.ID), Description: "x", Amount: decimal.NewFromInt(10)}, "file_url"},
		{"embedded path", domain.InvoiceSubmissionRequest{FileURL: "javascript:mem:" + strings.TrimPrefix(upload.FileURL, "mem:"), Description: "x", Amount: decimal.NewFromInt(10)}, "file_url"},
		{"never uploaded", domain.InvoiceSubmissionRequest{FileURL: fmt.Sprintf("mem:requests/%d/other.pdf", req.ID), Description: "x", Amount: decimal.NewFromInt(10)}, "file_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			_, err := f.invoices.Submit(ctx, token, &in)
			ve, ok := domain.AsValidation(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	stored, err := f.repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, stored.InvoiceSubmitted)
}

// ============================================================
// Service requests & housekeeping
// ============================================================

func TestServiceRequestService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateServiceRequestInput
		field string
	}{
		{"no type", CreateServiceRequestInput{Priority: "routine", Title: "x"}, "request_type"},
		{"bad priority", CreateServiceRequestInput{RequestType: "plumbing", Priority: "whenever", Title: "x"}, "priority"},
		{"no title", CreateServiceRequestInput{RequestType: "plumbing", Priority: "routine"}, "title"},
		{"bad day", CreateServiceRequestInput{RequestType: "plumbing", Priority: "routine", Title: "x", TenantPreferredSlots: []string{"11/03/2026"}}, "tenant_preferred_slots"},
		{"too many days", CreateServiceRequestInput{RequestType: "plumbing", Priority: "routine", Title: "x",
			TenantPreferredSlots: []string{"2026-03-11", "2026-03-12", "2026-03-13", "2026-03-14"}}, "tenant_preferred_slots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			_, err := f.requests.Create(ctx, &in)
			ve, ok := domain.AsValidation(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	req, err := f.requests.Create(ctx, &CreateServiceRequestInput{
		RequestType: "Plumbing", Priority: "URGENT", Title: "Drip",
		TenantPreferredSlots: []string{"2026-03-11", "2026-03-11", "2026-03-12"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plumbing", req.RequestType)
	assert.Equal(t, []string{"2026-03-11", "2026-03-12"}, req.TenantPreferredSlots)
}

func TestCronService_Purge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "plumbing", "routine")
	f.link(t, req.ID, domain.PurposeSchedule)
	f.link(t, req.ID, domain.PurposeInvoice)

	f.account(t, "pat@example.com", "correct-horse", "active")
	_, err := f.auth.Login(ctx, &LoginInput{Email: "pat@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	cron := NewCronService(f.repos.Links, f.repos.Sessions, f.clock)

	f.clock.Advance(8 * 24 * time.Hour)
	links, sessions, err := cron.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), links)
	assert.Equal(t, int64(1), sessions)
}
