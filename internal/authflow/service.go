package authflow

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"dirgate/pkg/faults"
)

// ServiceConfig configures the client-credentials (act-as-service) flow.
// It carries its own client identity pair; it is never the delegated one.
type ServiceConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       ScopeSet

	Timeout    time.Duration
	HTTPClient *http.Client
}

// ServiceExchanger acquires app-only tokens. Tokens from this flow are
// cached by the underlying oauth2 token source, never by the per-account
// credential cache.
type ServiceExchanger struct {
	cfg ServiceConfig
}

func NewServiceExchanger(cfg ServiceConfig) (*ServiceExchanger, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("service client id is empty: %w", faults.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("service token URL is empty: %w", faults.ErrConfiguration)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ServiceExchanger{cfg: cfg}, nil
}

func (e *ServiceExchanger) ccConfig(scopes ScopeSet) *clientcredentials.Config {
	if scopes.Len() == 0 {
		scopes = e.cfg.Scopes
	}
	return &clientcredentials.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret,
		TokenURL:     e.cfg.TokenURL,
		Scopes:       scopes.List(),
	}
}

func (e *ServiceExchanger) clientCtx(ctx context.Context) context.Context {
	if e.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.cfg.HTTPClient)
	}
	return ctx
}

// Acquire performs one client-credentials exchange. The expiry on the record
// is the upstream-declared lifetime, not extended locally.
func (e *ServiceExchanger) Acquire(ctx context.Context, scopes ScopeSet) (TokenRecord, error) {
	ctx, cancel := context.WithTimeout(e.clientCtx(ctx), e.cfg.Timeout)
	defer cancel()

	tok, err := e.ccConfig(scopes).Token(ctx)
	if err != nil {
		return TokenRecord{}, classifyExchangeErr(err)
	}
	return TokenRecord{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
		Scopes:      scopes,
	}, nil
}

// TokenSource returns a self-refreshing source over the default scope set,
// suitable for a long-lived directory client.
func (e *ServiceExchanger) TokenSource(ctx context.Context) oauth2.TokenSource {
	return e.ccConfig(ScopeSet{}).TokenSource(e.clientCtx(ctx))
}
