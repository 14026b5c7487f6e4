package scheduler

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"domain-renewer/internal/services"
)

// Scheduler runs the renewal flow on a cron schedule in daemon mode.
type Scheduler struct {
	cron           *cron.Cron
	renewalService *services.RenewalService
}

// NewScheduler creates a new scheduler
func NewScheduler(renewalService *services.RenewalService) *Scheduler {
	return &Scheduler{
		cron:           cron.New(),
		renewalService: renewalService,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(checkInterval string) error {
	_, err := s.cron.AddFunc(checkInterval, func() {
		log.Println("Starting scheduled renewal run...")
		if _, err := s.renewalService.Run(context.Background()); err != nil {
			log.Printf("Scheduled run failed: %v", err)
		}
		log.Println("Scheduled renewal run completed")
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("Scheduler started with interval: %s", checkInterval)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}
