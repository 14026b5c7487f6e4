package models

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the per-domain result of a renewal run.
type Outcome string

const (
	OutcomeRenewed Outcome = "renewed" // Renewal action completed
	OutcomeSkipped Outcome = "skipped" // Not eligible, nothing to do
	OutcomeFailed  Outcome = "failed"  // Renewal was attempted and did not complete
)

// DomainRecord is one row of the portal's domain listing. Records are
// scraped fresh every run and never cached between runs.
type DomainRecord struct {
	Name          string    `json:"name"`           // Domain name
	Eligible      bool      `json:"eligible"`       // Portal offers a renew action
	ExpiryDate    time.Time `json:"expiry_date"`    // Zero when the column is absent
	DaysRemaining int       `json:"days_remaining"` // -1 when unknown
	Row           int       `json:"-"`              // Position in the portal listing
}

// DomainOutcome pairs a discovered domain with its outcome.
type DomainOutcome struct {
	Domain  string  `json:"domain"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// RunResult collects the outcomes of a single run. Every domain discovered
// during the run appears exactly once, in discovery order.
type RunResult struct {
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Attempt   int             `json:"attempt"`
	Outcomes  []DomainOutcome `json:"outcomes"`
	FatalErr  string          `json:"fatal_error,omitempty"`
}

// Record appends an outcome for a domain.
func (r *RunResult) Record(domain string, outcome Outcome, err error) {
	o := DomainOutcome{Domain: domain, Outcome: outcome}
	if err != nil {
		o.Error = err.Error()
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Count returns the number of domains that ended with the given outcome.
func (r *RunResult) Count(outcome Outcome) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome == outcome {
			n++
		}
	}
	return n
}

// Domains returns the names of domains that ended with the given outcome.
func (r *RunResult) Domains(outcome Outcome) []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Outcome == outcome {
			names = append(names, o.Domain)
		}
	}
	return names
}

// LastError returns the most recent per-domain error, or the fatal error
// when the run aborted before processing domains.
func (r *RunResult) LastError() string {
	for i := len(r.Outcomes) - 1; i >= 0; i-- {
		if r.Outcomes[i].Error != "" {
			return r.Outcomes[i].Error
		}
	}
	return r.FatalErr
}

// OK reports whether the run completed without a fatal error. Individual
// domain failures do not make a run fatal.
func (r *RunResult) OK() bool {
	return r.FatalErr == ""
}

// Summary renders a one-line digest used in logs and run records.
func (r *RunResult) Summary() string {
	s := fmt.Sprintf("renewed=%d skipped=%d failed=%d",
		r.Count(OutcomeRenewed), r.Count(OutcomeSkipped), r.Count(OutcomeFailed))
	if renewed := r.Domains(OutcomeRenewed); len(renewed) > 0 {
		s += " (" + strings.Join(renewed, ", ") + ")"
	}
	return s
}

// RunRecord is the persisted history row for one run.
type RunRecord struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
	Attempt      int       `json:"attempt"`       // Which whole-run attempt produced this record
	Status       string    `json:"status"`        // ok / fatal
	RenewedCount int       `json:"renewed_count"`
	SkippedCount int       `json:"skipped_count"`
	FailedCount  int       `json:"failed_count"`
	Detail       string    `json:"detail"`        // JSON-encoded per-domain outcomes
	Error        string    `json:"error"`
	CreatedAt    time.Time `json:"created_at"`
}

// Setting represents system configuration
type Setting struct {
	Key   string `gorm:"primarykey" json:"key"`
	Value string `json:"value"`
}
