// Package gateway orchestrates the login flow: authorization URL out,
// authorization code in, delegated exchange, per-account credential caching,
// and the directory calls both trust domains make.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"dirgate/internal/audit"
	"dirgate/internal/authflow"
	"dirgate/internal/credcache"
	"dirgate/internal/directory"
	"dirgate/internal/loginstate"
	"dirgate/pkg/faults"
)

// Deps carries the composition-root singletons the service orchestrates.
type Deps struct {
	Log       *zap.SugaredLogger
	Delegated *authflow.CodeExchanger
	Service   *authflow.ServiceExchanger
	States    loginstate.Store
	Audit     audit.Recorder

	// DirectoryBaseURL is where per-user handles point; DirectoryOpts is
	// shared by every handle built (test transport etc.).
	DirectoryBaseURL string
	DirectoryOpts    []directory.Option

	// DelegatedScopes is the scope set requested on login.
	DelegatedScopes authflow.ScopeSet

	StateTTL time.Duration
}

type Service struct {
	log       *zap.SugaredLogger
	delegated *authflow.CodeExchanger
	service   *authflow.ServiceExchanger
	states    loginstate.Store
	auditor   audit.Recorder
	creds     *credcache.Cache[*directory.Client]
	svcDir    *directory.Client
	dirBase   string
	dirOpts   []directory.Option
	scopes    authflow.ScopeSet
	stateTTL  time.Duration
}

// New wires the orchestrator and builds the app-only directory client from
// the service exchanger's token source.
func New(deps Deps) (*Service, error) {
	if deps.StateTTL <= 0 {
		deps.StateTTL = 5 * time.Minute
	}
	svcDir, err := directory.NewClient(deps.DirectoryBaseURL, deps.Service.TokenSource(context.Background()), deps.DirectoryOpts...)
	if err != nil {
		return nil, fmt.Errorf("service directory client: %w", err)
	}
	return &Service{
		log:       deps.Log,
		delegated: deps.Delegated,
		service:   deps.Service,
		states:    deps.States,
		auditor:   deps.Audit,
		creds:     credcache.New[*directory.Client](),
		svcDir:    svcDir,
		dirBase:   deps.DirectoryBaseURL,
		dirOpts:   deps.DirectoryOpts,
		scopes:    deps.DelegatedScopes,
		stateTTL:  deps.StateTTL,
	}, nil
}

// BeginLogin issues a fresh state, records it, and returns the authorization
// URL the caller should redirect to.
func (s *Service) BeginLogin(ctx context.Context) (string, error) {
	state := uuid.NewString()
	if err := s.states.Put(ctx, state, s.stateTTL); err != nil {
		s.record(ctx, audit.KindLoginBegin, "", audit.OutcomeError, err.Error())
		return "", fmt.Errorf("store login state: %w", err)
	}
	s.record(ctx, audit.KindLoginBegin, "", audit.OutcomeOK, "")
	return s.delegated.AuthURL(state, s.scopes), nil
}

// CompleteLogin consumes the state, redeems the code, and returns the
// account's directory handle, reusing the cached one while its token lives.
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (*directory.Client, string, error) {
	ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, "", fmt.Errorf("consume login state: %w", err)
	}
	if !ok {
		s.record(ctx, audit.KindLoginComplete, "", audit.OutcomeError, "unknown or expired state")
		return nil, "", faults.ErrStateNotFound
	}

	rec, err := s.delegated.Exchange(ctx, code, s.scopes)
	if err != nil {
		tokenExchanges.WithLabelValues("delegated", "error").Inc()
		s.record(ctx, audit.KindLoginComplete, "", audit.OutcomeError, err.Error())
		return nil, "", err
	}
	tokenExchanges.WithLabelValues("delegated", "ok").Inc()

	created := false
	handle, err := s.creds.GetOrCreate(ctx, rec.AccountID, func(context.Context) (*directory.Client, time.Time, error) {
		created = true
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: rec.AccessToken, Expiry: rec.Expiry})
		c, err := directory.NewClient(s.dirBase, src, s.dirOpts...)
		if err != nil {
			return nil, time.Time{}, err
		}
		return c, rec.Expiry, nil
	})
	if err != nil {
		credCacheLookups.WithLabelValues("error").Inc()
		s.record(ctx, audit.KindLoginComplete, rec.AccountID, audit.OutcomeError, err.Error())
		return nil, "", err
	}
	if created {
		credCacheLookups.WithLabelValues("miss").Inc()
	} else {
		credCacheLookups.WithLabelValues("hit").Inc()
	}

	s.record(ctx, audit.KindLoginComplete, rec.AccountID, audit.OutcomeOK, "")
	s.log.Infow("login complete", "account", rec.AccountID, "cached", !created)
	return handle, rec.AccountID, nil
}

// ServiceDirectory returns the app-only directory handle. Its token is
// refreshed by the underlying source, independent of the per-account cache.
func (s *Service) ServiceDirectory() *directory.Client {
	return s.svcDir
}

// AcquireServiceToken performs one app-only exchange for callers that need a
// raw bearer token rather than the shared directory handle.
func (s *Service) AcquireServiceToken(ctx context.Context, scopes authflow.ScopeSet) (authflow.TokenRecord, error) {
	rec, err := s.service.Acquire(ctx, scopes)
	if err != nil {
		tokenExchanges.WithLabelValues("service", "error").Inc()
		return authflow.TokenRecord{}, err
	}
	tokenExchanges.WithLabelValues("service", "ok").Inc()
	return rec, nil
}

// SweepCredentials drops expired cache entries; wired to a ticker in main.
func (s *Service) SweepCredentials() int {
	return s.creds.Sweep()
}

func (s *Service) record(ctx context.Context, kind, account, outcome, detail string) {
	_ = s.auditor.Record(ctx, audit.Event{
		Kind:      kind,
		AccountID: account,
		Outcome:   outcome,
		Detail:    detail,
		At:        time.Now(),
	})
}
