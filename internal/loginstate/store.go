// Package loginstate tracks the CSRF state tokens issued when a login
// begins. A state is single-use and short-lived; it never holds tokens.
package loginstate

import (
	"context"
	"time"
)

// Store holds issued states until the callback consumes them.
type Store interface {
	// Put records a state for ttl.
	Put(ctx context.Context, state string, ttl time.Duration) error
	// Consume removes a state and reports whether it was live.
	Consume(ctx context.Context, state string) (bool, error)
}
