package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is matched by every AuthenticationError.
	ErrAuthentication = errors.New("authentication failed")

	// ErrTicketGrantingExpired indicates the ticket-granting resource no longer
	// issues tickets. The session must be renewed with the credential.
	ErrTicketGrantingExpired = errors.New("ticket-granting resource expired")

	// ErrNoCredential is returned when Login is called with an empty key.
	ErrNoCredential = errors.New("no credential provided")

	// ErrNoForm is returned when the login response has no form action.
	ErrNoForm = errors.New("login response contains no form action")

	// ErrEmptyTicket is returned when the ticket response body is empty.
	ErrEmptyTicket = errors.New("empty service ticket")
)

// Operation names used in AuthenticationError.Op and metric labels.
const (
	OpLogin  = "login"
	OpTicket = "ticket"
)

// AuthenticationError is a fatal failure exchanging the credential or
// minting a service ticket.
type AuthenticationError struct {
	Op         string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("UTS %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("UTS %s failed: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is reports ErrAuthentication as a match for any AuthenticationError.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}
