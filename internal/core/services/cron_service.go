package services

import (
	"context"
	"log"
	"time"

	"propdesk/internal/adapters/persistence/repositories"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// PurgeSchedule is how often dead links and sessions are removed.
const PurgeSchedule = "@every 1h"

// CronService runs housekeeping jobs in the background
type CronService struct {
	cron        *cron.Cron
	linkRepo    repositories.LinkTokenRepository
	sessionRepo repositories.PortalSessionRepository
	clock       clockwork.Clock
}

// NewCronService creates a new cron service
func NewCronService(
	linkRepo repositories.LinkTokenRepository,
	sessionRepo repositories.PortalSessionRepository,
	clock clockwork.Clock,
) *CronService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CronService{
		cron:        cron.New(),
		linkRepo:    linkRepo,
		sessionRepo: sessionRepo,
		clock:       clock,
	}
}

// Start registers the jobs and starts the scheduler
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(PurgeSchedule, s.runPurge); err != nil {
		return err
	}
	s.cron.Start()
	log.Println("🚀 CronService started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *CronService) Stop() {
	<-s.cron.Stop().Done()
	log.Println("🛑 CronService stopped")
}

// Purge deletes expired link tokens and portal sessions
func (s *CronService) Purge(ctx context.Context) (links, sessions int64, err error) {
	now := s.clock.Now()

	links, err = s.linkRepo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	sessions, err = s.sessionRepo.DeleteExpired(ctx, now)
	if err != nil {
		return links, 0, err
	}
	return links, sessions, nil
}

func (s *CronService) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	links, sessions, err := s.Purge(ctx)
	if err != nil {
		log.Printf("❌ Purge failed: %v", err)
		return
	}
	if links > 0 || sessions > 0 {
		log.Printf("🧹 Purged %d expired links, %d expired sessions", links, sessions)
	}
}
