// Package memory provides process-local repositories for DB_DRIVER=memory
// and for tests. All tables share one lock so multi-table writes are atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// Store holds every table in memory.
type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	nextID   map[string]uint
	accounts map[uint]*models.Account
	sessions map[uint]*models.PortalSession
	requests map[uint]*models.ServiceRequest
	links    map[uint]*models.LinkToken
	invoices map[uint]*models.Invoice
}

// NewStore creates an empty store. A nil clock means wall time.
func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:    clock,
		nextID:   make(map[string]uint),
		accounts: make(map[uint]*models.Account),
		sessions: make(map[uint]*models.PortalSession),
		requests: make(map[uint]*models.ServiceRequest),
		links:    make(map[uint]*models.LinkToken),
		invoices: make(map[uint]*models.Invoice),
	}
}

// NewRegistry wires memory-backed repositories over one store.
func NewRegistry(clock clockwork.Clock) *repositories.Registry {
	s := NewStore(clock)
	return &repositories.Registry{
		Accounts: &accountRepository{s},
		Sessions: &sessionRepository{s},
		Requests: &serviceRequestRepository{s},
		Links:    &linkTokenRepository{s},
		Invoices: &invoiceRepository{s},
	}
}

// id must be called with mu held.
func (s *Store) id(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

// ============================================================
// Accounts
// ============================================================

type accountRepository struct{ s *Store }

func (r *accountRepository) Create(_ context.Context, account *models.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	for _, a := range r.s.accounts {
		if a.Email == account.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	account.ID = r.s.id("accounts")
	now := r.s.clock.Now()
	account.CreatedAt, account.UpdatedAt = now, now
	cp := *account
	r.s.accounts[account.ID] = &cp
	return nil
}

func (r *accountRepository) GetByID(_ context.Context, id uint) (*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *accountRepository) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range r.s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	return err == nil, err
}

// ============================================================
// Portal sessions
// ============================================================

type sessionRepository struct{ s *Store }

func (r *sessionRepository) Create(_ context.Context, session *models.PortalSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session.ID = r.s.id("portal_sessions")
	session.CreatedAt = r.s.clock.Now()
	cp := *session
	r.s.sessions[session.ID] = &cp
	return nil
}

func (r *sessionRepository) GetByTokenID(_ context.Context, tokenID string) (*models.PortalSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, sess := range r.s.sessions {
		if sess.TokenID == tokenID {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *sessionRepository) Revoke(_ context.Context, id uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if sess, ok := r.s.sessions[id]; ok && sess.RevokedAt == nil {
		sess.RevokedAt = &at
	}
	return nil
}

func (r *sessionRepository) RevokeAllByAccountID(_ context.Context, accountID uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, sess := range r.s.sessions {
		if sess.AccountID == accountID && sess.RevokedAt == nil {
			revokedAt := at
			sess.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r *sessionRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, sess := range r.s.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

// ============================================================
// Service requests
// ============================================================

type serviceRequestRepository struct{ s *Store }

func (r *serviceRequestRepository) Create(_ context.Context, req *models.ServiceRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req.ID = r.s.id("service_requests")
	if req.Status == "" {
		req.Status = string(domain.StatusSubmitted)
	}
	now := r.s.clock.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	r.s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *serviceRequestRepository) GetByID(_ context.Context, id uint) (*models.ServiceRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	req, ok := r.s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneRequest(req), nil
}

func (r *serviceRequestRepository) List(_ context.Context, status string, offset, limit int) ([]*models.ServiceRequest, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var all []*models.ServiceRequest
	for _, req := range r.s.requests {
		if status == "" || req.Status == status {
			all = append(all, cloneRequest(req))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return window(all, offset, limit), int64(len(all)), nil
}

func (r *serviceRequestRepository) ApplyScheduleDecision(_ context.Context, requestID, linkTokenID uint, d models.ScheduleDecision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	link, ok := r.s.links[linkTokenID]
	if !ok || link.UsedAt != nil {
		return domain.ErrTokenInvalid
	}
	req, ok := r.s.requests[requestID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if req.AppointmentConfirmedAt != nil {
		return domain.ErrAlreadySubmitted
	}

	usedAt := d.DecidedAt
	link.UsedAt = &usedAt

	req.ContractorNotes = d.Notes
	if d.Action == domain.ActionAccept {
		req.AppointmentConfirmedAt = copyTime(d.AppointmentAt)
		req.ContractorProposedAt = nil
		req.Status = string(domain.StatusScheduled)
	} else {
		req.ContractorProposedAt = copyTime(d.ProposedAt)
		req.Status = string(domain.StatusPendingTenantConfirmation)
	}
	req.UpdatedAt = r.s.clock.Now()
	return nil
}

func (r *serviceRequestRepository) MarkCompleted(_ context.Context, id uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	req.JobCompleted = true
	req.JobCompletedAt = &at
	req.Status = string(domain.StatusCompleted)
	req.UpdatedAt = r.s.clock.Now()
	return nil
}

// ============================================================
// Link tokens
// ============================================================

type linkTokenRepository struct{ s *Store }

func (r *linkTokenRepository) Create(_ context.Context, token *models.LinkToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, t := range r.s.links {
		if t.TokenHash == token.TokenHash {
			return gorm.ErrDuplicatedKey
		}
	}
	token.ID = r.s.id("link_tokens")
	token.CreatedAt = r.s.clock.Now()
	cp := *token
	r.s.links[token.ID] = &cp
	return nil
}

func (r *linkTokenRepository) GetByTokenHash(_ context.Context, tokenHash string) (*models.LinkToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, t := range r.s.links {
		if t.TokenHash == tokenHash {
			cp := *t
			cp.UsedAt = copyTime(t.UsedAt)
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *linkTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, t := range r.s.links {
		if t.ExpiresAt.Before(before) {
			delete(r.s.links, id)
			n++
		}
	}
	return n, nil
}

// ============================================================
// Invoices
// ============================================================

type invoiceRepository struct{ s *Store }

func (r *invoiceRepository) Submit(_ context.Context, invoice *models.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.requests[invoice.ServiceRequestID]
	if !ok || req.InvoiceSubmitted {
		return domain.ErrAlreadySubmitted
	}
	req.InvoiceSubmitted = true
	req.Status = string(domain.StatusInvoiced)

	invoice.ID = r.s.id("invoices")
	invoice.CreatedAt = r.s.clock.Now()
	cp := *invoice
	r.s.invoices[invoice.ID] = &cp
	return nil
}

func (r *invoiceRepository) GetByRequestID(_ context.Context, requestID uint) (*models.Invoice, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, inv := range r.s.invoices {
		if inv.ServiceRequestID == requestID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *invoiceRepository) List(_ context.Context, status string, offset, limit int) ([]*models.Invoice, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var all []*models.Invoice
	for _, inv := range r.s.invoices {
		if status == "" || inv.Status == status {
			cp := *inv
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return window(all, offset, limit), int64(len(all)), nil
}

// ============================================================
// helpers
// ============================================================

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func cloneRequest(req *models.ServiceRequest) *models.ServiceRequest {
	cp := *req
	cp.TenantPreferredSlots = append([]string(nil), req.TenantPreferredSlots...)
	cp.AppointmentConfirmedAt = copyTime(req.AppointmentConfirmedAt)
	cp.ContractorProposedAt = copyTime(req.ContractorProposedAt)
	cp.JobCompletedAt = copyTime(req.JobCompletedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
