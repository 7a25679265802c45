package config

import (
	"context"
	"log"
	"time"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/slots"
	"propdesk/internal/pkg/password"
	"propdesk/internal/pkg/safelog"
)

// Seeder handles demo data seeding
type Seeder struct {
	repos *repositories.Registry
	now   func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(repos *repositories.Registry) *Seeder {
	return &Seeder{repos: repos, now: time.Now}
}

// Run executes all seeders
func (s *Seeder) Run(ctx context.Context) error {
	log.Println("🌱 Running seeders...")

	if err := s.seedAccount(ctx,
		getEnv("SEED_MANAGER_EMAIL", "manager@propdesk.local"),
		getEnv("SEED_MANAGER_PASSWORD", "manager123456"),
		domain.AccountManager, "Morgan", "Hale",
	); err != nil {
		log.Printf("⚠️ Manager seeder skipped: %v", err)
	}

	if err := s.seedAccount(ctx,
		getEnv("SEED_CONTRACTOR_EMAIL", "contractor@propdesk.local"),
		getEnv("SEED_CONTRACTOR_PASSWORD", "contractor123456"),
		domain.AccountContractor, "Pat", "Rivera",
	); err != nil {
		log.Printf("⚠️ Contractor seeder skipped: %v", err)
	}

	if err := s.seedServiceRequest(ctx); err != nil {
		log.Printf("⚠️ Service request seeder skipped: %v", err)
	}

	log.Println("✅ Seeding completed")
	return nil
}

// seedAccount creates a portal account unless the email is taken.
// Development/testing only; production accounts come from the admin flow.
func (s *Seeder) seedAccount(ctx context.Context, email, secret string, accountType domain.AccountType, first, last string) error {
	exists, err := s.repos.Accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hashed, err := password.Hash(secret)
	if err != nil {
		return err
	}

	account := &models.Account{
		Email:        email,
		Password:     hashed,
		FirstName:    first,
		LastName:     last,
		AccountType:  string(accountType),
		Status:       "active",
		PortalActive: true,
	}
	if err := s.repos.Accounts.Create(ctx, account); err != nil {
		return err
	}

	log.Printf("✅ %s account created: %s", accountType, safelog.MaskEmail(email))
	return nil
}

// seedServiceRequest adds one demo request when the table is empty
func (s *Seeder) seedServiceRequest(ctx context.Context) error {
	_, total, err := s.repos.Requests.List(ctx, "", 0, 1)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	today := s.now()
	req := &models.ServiceRequest{
		RequestType: string(domain.ServiceTypePlumbing),
		Priority:    string(domain.PriorityUrgent),
		Title:       "Leaking kitchen tap",
		Description: "Tap drips constantly, water pooling under the sink.",
		TenantPreferredSlots: []string{
			today.AddDate(0, 0, 1).Format(slots.DayLayout),
			today.AddDate(0, 0, 2).Format(slots.DayLayout),
		},
		Status: string(domain.StatusSubmitted),
	}
	if err := s.repos.Requests.Create(ctx, req); err != nil {
		return err
	}

	log.Printf("✅ Demo service request created: #%d", req.ID)
	return nil
}
