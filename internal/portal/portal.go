// Package portal isolates all interaction with the registrar's web portal
// behind a small capability interface so the concrete driver (plain HTTP or
// a headless browser) can be swapped without touching the renewal logic.
package portal

import (
	"context"

	"domain-renewer/internal/models"
)

// Client is one authenticated portal session. A session lives for a single
// run: Login first, then ListDomains once, then any number of Renew calls,
// then Close.
type Client interface {
	// Login authenticates with the credentials the client was built with.
	Login(ctx context.Context) error

	// ListDomains scrapes the domain-management view. The listing is read
	// once per session and is not restartable.
	ListDomains(ctx context.Context) ([]models.DomainRecord, error)

	// Renew performs the portal's renewal action for one record. The record
	// must come from this session's ListDomains call.
	Renew(ctx context.Context, record models.DomainRecord) error

	// Close releases the underlying session resources.
	Close() error
}
