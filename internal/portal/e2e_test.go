package portal_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"propdesk/internal/adapters/denylist"
	"propdesk/internal/adapters/http/routes"
	"propdesk/internal/adapters/persistence/memory"
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/adapters/storage"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/password"
	"propdesk/internal/portal"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invoicePDF = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n")

type stack struct {
	clock    *clockwork.FakeClock
	repos    *repositories.Registry
	requests *services.ServiceRequestService
	client   *portal.Client
}

func startStack(t *testing.T) *stack {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		AppMode:  "dev",
		Timezone: "UTC",
		Database: config.DatabaseConfig{Driver: "memory"},
		JWT:      config.JWTConfig{Secret: "e2e-secret", TokenHours: 24, RefreshLead: 5 * time.Minute},
		Links: config.LinkConfig{
			ScheduleTTL:        7 * 24 * time.Hour,
			InvoiceTTL:         30 * 24 * time.Hour,
			InvoiceUnlockDelay: time.Hour,
			PublicBaseURL:      "https://portal.test",
		},
	}
	docs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	repos := memory.NewRegistry(clock)
	app := routes.NewApp(cfg)
	routes.Setup(app, repos, cfg, routes.Options{
		Denylist:  denylist.NewMemory(clock),
		Documents: docs,
		Clock:     clock,
	})

	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)

	links := services.NewLinkTokenService(repos.Links, repos.Requests, cfg, clock)
	return &stack{
		clock:    clock,
		repos:    repos,
		requests: services.NewServiceRequestService(repos.Requests, links, clock),
		client:   portal.New(srv.URL + "/api/v1"),
	}
}

func (s *stack) newRequest(t *testing.T) uint {
	t.Helper()
	req, err := s.requests.Create(context.Background(), &services.CreateServiceRequestInput{
		RequestType:          "plumbing",
		Priority:             "emergency",
		Title:                "Burst pipe",
		Description:          "Water coming through the ceiling",
		TenantPreferredSlots: []string{"2026-03-12", "2026-03-13"},
	})
	require.NoError(t, err)
	return req.ID
}

func (s *stack) issue(t *testing.T, id uint, purpose domain.TokenPurpose) string {
	t.Helper()
	link, err := s.requests.IssueLink(context.Background(), id, purpose)
	require.NoError(t, err)
	return link.Token
}

func TestPortal_ScheduleThenInvoice(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()
	id := s.newRequest(t)

	n := portal.NewNegotiator(s.client, s.issue(t, id, domain.PurposeSchedule), portal.NegotiatorOptions{
		Location: time.UTC,
		Clock:    s.clock,
	})
	defer n.Close()
	require.NoError(t, n.Load(ctx))
	assert.Equal(t, []string{"2026-03-12", "2026-03-13"}, n.Days())

	require.NoError(t, n.ChooseAccept())
	require.NoError(t, n.SelectDay("2026-03-12"))
	require.NoError(t, n.SelectTime("10:00"))
	ack, err := n.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, ack.Status)
	require.NotNil(t, ack.AppointmentAt)
	assert.True(t, ack.AppointmentAt.Equal(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)))

	invoiceToken := s.issue(t, id, domain.PurposeInvoice)
	gate := portal.NewGate(s.client, invoiceToken, portal.GateOptions{Clock: s.clock})
	defer gate.Close()
	require.NoError(t, gate.Load(ctx))

	snap := gate.Snapshot()
	require.Equal(t, portal.GateLocked, snap.State)
	assert.Equal(t, domain.LockJobNotCompleted, snap.Reason)
	assert.Equal(t, "50h 0m", snap.Countdown)

	// appointment plus the unlock delay
	s.clock.BlockUntil(2)
	s.clock.Advance(50 * time.Hour)
	require.Eventually(t, func() bool { return gate.State() == portal.GateOpen }, 2*time.Second, 10*time.Millisecond)

	receipt, err := gate.Submit(ctx, &portal.InvoiceForm{
		Amount:      decimal.RequireFromString("500.00"),
		Description: "Replaced burst section and pressure tested",
		FileName:    "invoice.pdf",
		File:        invoicePDF,
	})
	require.NoError(t, err)
	assert.True(t, receipt.AutoApproved)
	assert.Equal(t, domain.ApprovalAutoApproved, receipt.Status)
	assert.True(t, receipt.Threshold.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, portal.GateSubmitted, gate.State())

	// a fresh page for the same link sees the one-shot lock
	again := portal.NewGate(s.client, invoiceToken, portal.GateOptions{Clock: s.clock})
	defer again.Close()
	require.NoError(t, again.Load(ctx))
	assert.Equal(t, portal.GateLocked, again.State())
	assert.Equal(t, domain.LockAlreadySubmitted, again.Snapshot().Reason)
}

func TestPortal_DeadLinks(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()
	id := s.newRequest(t)

	resolver := portal.NewResolver(s.client)
	_, err := resolver.ResolveSchedule(ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	invoiceToken := s.issue(t, id, domain.PurposeInvoice)
	_, err = resolver.ResolveSchedule(ctx, invoiceToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	view, err := resolver.ResolveInvoice(ctx, invoiceToken)
	require.NoError(t, err)
	assert.Equal(t, id, view.RequestID)
	assert.False(t, view.InvoiceSubmitted)
}

func TestPortal_ContractorSession(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()

	hash, err := password.HashWithCost("contractor-pass", 4)
	require.NoError(t, err)
	require.NoError(t, s.repos.Accounts.Create(ctx, &models.Account{
		Email:        "pat@example.com",
		Password:     hash,
		FirstName:    "Pat",
		LastName:     "Doe",
		AccountType:  string(domain.AccountContractor),
		Status:       "active",
		PortalActive: true,
	}))

	_, err = s.client.Login(ctx, "pat@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	login, err := s.client.Login(ctx, "pat@example.com", "contractor-pass")
	require.NoError(t, err)
	require.NotEmpty(t, login.AccessToken)
	assert.Equal(t, domain.AccountContractor, login.Account.AccountType)

	me, err := s.client.Me(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", me.Email)

	refreshed, err := s.client.Refresh(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.AccessToken, refreshed.AccessToken)

	require.NoError(t, s.client.Logout(ctx, refreshed.AccessToken))
	_, err = s.client.Me(ctx, refreshed.AccessToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
