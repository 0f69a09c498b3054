// Package audit records login-flow events. Recording is best-effort: a
// failed write never fails the request it describes.
package audit

import (
	"context"
	"time"
)

// Event kinds.
const (
	KindLoginBegin    = "login_begin"
	KindLoginComplete = "login_complete"
	KindServiceCall   = "service_call"
)

// Outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Event struct {
	ID        string
	Kind      string
	AccountID string
	Outcome   string
	Detail    string
	At        time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type nopRecorder struct{}

// NewNop returns the recorder used when no database is configured.
func NewNop() Recorder { return nopRecorder{} }

func (nopRecorder) Record(context.Context, Event) error { return nil }
