// Package faults defines the error kinds shared across the token-exchange
// core and the directory client. Callers classify with errors.Is and wrap
// with fmt.Errorf("...: %w", ...) to add context.
package faults

import (
	"errors"
)

var (
	// ErrConfiguration marks malformed or missing startup configuration.
	// Fatal: surfaced at construction, never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidGrant marks an authorization code that is invalid, expired,
	// or already redeemed. Retrying with the same code cannot succeed.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrUpstreamUnavailable marks network failures, timeouts, and 5xx
	// responses from the identity provider or the directory service.
	// Safe to retry with backoff at the caller's discretion.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMissingIDToken marks a token response that carried no id_token,
	// leaving no way to derive the account identifier.
	ErrMissingIDToken = errors.New("id_token missing from token response")

	// ErrStateNotFound marks a login callback whose state parameter is
	// unknown or expired.
	ErrStateNotFound = errors.New("login state not found")
)
