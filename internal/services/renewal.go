package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"domain-renewer/internal/config"
	"domain-renewer/internal/database"
	"domain-renewer/internal/models"
	"domain-renewer/internal/portal"
)

// ClientFactory opens a fresh portal session. Each run attempt gets its own
// session so a polluted one never leaks into the next attempt.
type ClientFactory func() (portal.Client, error)

// DriverFactory returns the factory matching the configured portal driver.
func DriverFactory(cfg *config.Config) ClientFactory {
	opts := portal.Options{
		BaseURL:     cfg.Portal.BaseURL,
		LoginPath:   cfg.Portal.LoginPath,
		DomainsPath: cfg.Portal.DomainsPath,
		PanelPath:   cfg.Portal.PanelPath,
		Email:       cfg.Email,
		Password:    cfg.Password,
		ProxyURL:    cfg.ProxyURL,
		Timeout:     cfg.PortalTimeout(),
	}

	if cfg.Portal.Driver == "browser" {
		return func() (portal.Client, error) {
			return portal.NewBrowserClient(opts)
		}
	}
	return func() (portal.Client, error) {
		return portal.NewHTTPClient(opts)
	}
}

// RenewalService runs the renewal flow: log in, enumerate domains, renew
// the eligible ones, record outcomes, report.
type RenewalService struct {
	cfg           *config.Config
	notifyService *NotifyService
	newClient     ClientFactory
	running       atomic.Bool
}

// NewRenewalService creates a new renewal service
func NewRenewalService(cfg *config.Config, notifyService *NotifyService, factory ClientFactory) *RenewalService {
	return &RenewalService{
		cfg:           cfg,
		notifyService: notifyService,
		newClient:     factory,
	}
}

// Running reports whether a run is currently in flight.
func (s *RenewalService) Running() bool {
	return s.running.Load()
}

// Run executes the renewal flow, retrying the whole run on fatal errors up
// to the configured attempt count. The returned RunResult is always
// populated; the error is non-nil only when every attempt failed fatally.
func (s *RenewalService) Run(ctx context.Context) (*models.RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("a renewal run is already in progress")
	}
	defer s.running.Store(false)

	maxAttempts := s.cfg.Portal.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result *models.RunResult
	var runErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Printf("Renewal run attempt %d/%d", attempt, maxAttempts)

		result, runErr = s.runOnce(ctx, attempt)
		if runErr == nil {
			break
		}

		log.Printf("Attempt %d failed: %v", attempt, runErr)
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		// Rejected credentials will not improve on a retry.
		var authErr *portal.AuthError
		if errors.As(runErr, &authErr) {
			break
		}

		select {
		case <-time.After(s.cfg.RetryPause()):
		case <-ctx.Done():
			runErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.record(result)

	// Best-effort notification, for fatal failures too.
	if err := s.notifyService.SendReport(result); err != nil {
		log.Printf("Failed to deliver run report: %v", err)
	}

	if runErr != nil {
		return result, runErr
	}

	log.Printf("Run complete: %s", result.Summary())
	return result, nil
}

// runOnce performs one full attempt with a fresh portal session. The
// session is closed on every path so the headless browser never leaks.
func (s *RenewalService) runOnce(ctx context.Context, attempt int) (*models.RunResult, error) {
	result := &models.RunResult{
		StartedAt: time.Now(),
		Attempt:   attempt,
	}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
	}()

	client, err := s.newClient()
	if err != nil {
		result.FatalErr = err.Error()
		return result, fmt.Errorf("failed to open portal session: %w", err)
	}
	defer client.Close()

	if err := s.login(ctx, client); err != nil {
		result.FatalErr = err.Error()
		return result, err
	}

	records, err := client.ListDomains(ctx)
	if err != nil {
		result.FatalErr = err.Error()
		return result, err
	}
	log.Printf("Found %d domains", len(records))

	for i, record := range records {
		if !record.Eligible {
			log.Printf("[%d/%d] %s - not due, skipping", i+1, len(records), record.Name)
			result.Record(record.Name, models.OutcomeSkipped, nil)
			continue
		}

		log.Printf("[%d/%d] %s - renewing...", i+1, len(records), record.Name)
		if err := client.Renew(ctx, record); err != nil {
			// Surfaced per domain; the run keeps going.
			log.Printf("[%d/%d] %s - %v", i+1, len(records), record.Name, err)
			result.Record(record.Name, models.OutcomeFailed, err)
		} else {
			log.Printf("[%d/%d] %s - renewed", i+1, len(records), record.Name)
			result.Record(record.Name, models.OutcomeRenewed, nil)
		}

		// Let the portal settle between renewal actions.
		select {
		case <-time.After(s.cfg.ActionPause()):
		case <-ctx.Done():
			result.FatalErr = ctx.Err().Error()
			return result, ctx.Err()
		}
	}

	return result, nil
}

// login authenticates with a short retry on transient failures. Rejected
// credentials are permanent: retrying them only trips the portal's lockout.
func (s *RenewalService) login(ctx context.Context, client portal.Client) error {
	operation := func() error {
		err := client.Login(ctx)
		var authErr *portal.AuthError
		if errors.As(err, &authErr) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.Retry(operation, policy)
}

// record persists the run into history. A storage failure must not fail a
// run that already moved registrar-side state, so it is only logged.
func (s *RenewalService) record(result *models.RunResult) {
	if result == nil {
		return
	}

	status := "ok"
	if !result.OK() {
		status = "fatal"
	}

	detail, err := json.Marshal(result.Outcomes)
	if err != nil {
		detail = []byte("[]")
	}

	record := &models.RunRecord{
		StartedAt:    result.StartedAt,
		DurationMS:   result.Duration.Milliseconds(),
		Attempt:      result.Attempt,
		Status:       status,
		RenewedCount: result.Count(models.OutcomeRenewed),
		SkippedCount: result.Count(models.OutcomeSkipped),
		FailedCount:  result.Count(models.OutcomeFailed),
		Detail:       string(detail),
		Error:        result.FatalErr,
	}

	if err := database.SaveRun(record); err != nil {
		log.Printf("Failed to save run record: %v", err)
	}
}
