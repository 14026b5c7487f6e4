package portal

import "fmt"

// AuthError means the portal rejected the credentials or the login flow
// never reached the panel. Fatal for the run.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NavigationError means a portal page did not load or did not have the
// expected shape. Fatal when it prevents listing domains at all.
type NavigationError struct {
	Page string
	Err  error
}

func (e *NavigationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("portal navigation failed on %s: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("portal navigation failed on %s", e.Page)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// RenewalError means the renewal action for one domain did not go through.
// Renewals move money, so this is always surfaced, never swallowed, but it
// is scoped to the one domain and the run continues.
type RenewalError struct {
	Domain string
	Reason string
	Err    error
}

func (e *RenewalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("renewal failed for %s: %s: %v", e.Domain, e.Reason, e.Err)
	}
	return fmt.Sprintf("renewal failed for %s: %s", e.Domain, e.Reason)
}

func (e *RenewalError) Unwrap() error { return e.Err }
