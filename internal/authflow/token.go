package authflow

import (
	"time"
)

// TokenRecord is the immutable result of a token exchange. It is superseded
// by a re-exchange, never mutated.
type TokenRecord struct {
	AccessToken string
	Expiry      time.Time
	AccountID   string // empty for app-only tokens
	Scopes      ScopeSet
}

// Valid reports whether the token is usable at time now.
func (t TokenRecord) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.Expiry)
}
