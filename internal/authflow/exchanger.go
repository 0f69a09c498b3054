// Package authflow implements the token-exchange core: building the
// authorization URL, redeeming authorization codes for the delegated trust
// domain, and acquiring app-only tokens for the service trust domain.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"

	"dirgate/internal/authority"
	"dirgate/pkg/faults"
)

const jwksTTL = 6 * time.Hour

// DelegatedConfig configures the authorization-code (act-as-user) flow.
type DelegatedConfig struct {
	Authority    authority.Descriptor
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Endpoint overrides. Empty values fall back to the authority's derived
	// endpoints; tests and non-B2C providers set them explicitly.
	AuthURL  string
	TokenURL string
	JWKSURL  string

	// ExpectedIssuer, when set, is enforced on the ID token.
	ExpectedIssuer string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// CodeExchanger redeems authorization codes and builds authorization URLs
// for one client identity. Safe for concurrent use.
type CodeExchanger struct {
	cfg  DelegatedConfig
	jwks *jwksCache
}

// NewCodeExchanger validates the client configuration up front so route
// handlers never discover a misconfiguration mid-flight.
func NewCodeExchanger(cfg DelegatedConfig) (*CodeExchanger, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("client id is empty: %w", faults.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.RedirectURI) == "" {
		return nil, fmt.Errorf("redirect URI is empty: %w", faults.ErrConfiguration)
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = cfg.Authority.AuthorizeEndpoint()
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = cfg.Authority.TokenEndpoint()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &CodeExchanger{cfg: cfg, jwks: &jwksCache{}}, nil
}

func (e *CodeExchanger) oauth2Config(scopes ScopeSet) oauth2.Config {
	return oauth2.Config{
		ClientID:     e.cfg.ClientID,
		ClientSecret: e.cfg.ClientSecret,
		RedirectURL:  e.cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  e.cfg.AuthURL,
			TokenURL: e.cfg.TokenURL,
		},
		Scopes: scopes.List(),
	}
}

// AuthURL builds the redirect URL that starts the authorization-code flow.
// state is the caller-issued CSRF token.
func (e *CodeExchanger) AuthURL(state string, scopes ScopeSet) string {
	cfg := e.oauth2Config(scopes)
	return cfg.AuthCodeURL(state)
}

// Exchange redeems an authorization code for a delegated token. The returned
// record carries the upstream-declared expiry unmodified and the account
// identifier derived from the ID token.
func (e *CodeExchanger) Exchange(ctx context.Context, code string, scopes ScopeSet) (TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	if e.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.cfg.HTTPClient)
	}

	cfg := e.oauth2Config(scopes)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return TokenRecord{}, classifyExchangeErr(err)
	}

	rawID, _ := tok.Extra("id_token").(string)
	if rawID == "" {
		return TokenRecord{}, faults.ErrMissingIDToken
	}
	idTok, err := e.parseIDToken(ctx, rawID)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("id_token verification: %w", err)
	}
	acct, err := accountID(idTok)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("account identifier: %w", err)
	}

	return TokenRecord{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
		AccountID:   acct,
		Scopes:      scopes,
	}, nil
}

// parseIDToken verifies the ID token against the authority JWKS when a JWKS
// endpoint is configured. Without one the token is parsed unverified: it was
// received directly from the token endpoint over TLS, not from the user.
func (e *CodeExchanger) parseIDToken(ctx context.Context, raw string) (jwt.Token, error) {
	opts := []jwt.ParseOption{jwt.WithValidate(true), jwt.WithAcceptableSkew(time.Minute)}
	if e.cfg.ExpectedIssuer != "" {
		opts = append(opts, jwt.WithIssuer(e.cfg.ExpectedIssuer))
	}
	if e.cfg.JWKSURL == "" {
		opts = append(opts, jwt.WithVerify(false))
	} else {
		set, err := e.jwks.get(ctx, e.cfg.JWKSURL, jwksTTL)
		if err != nil {
			return nil, fmt.Errorf("jwks fetch: %w", faults.ErrUpstreamUnavailable)
		}
		opts = append(opts, jwt.WithKeySet(set))
	}
	return jwt.Parse([]byte(raw), opts...)
}

// classifyExchangeErr maps token-endpoint failures onto the shared error
// kinds. invalid_grant covers expired, replayed, and redirect-mismatched
// codes; client misconfiguration surfaces as a configuration error.
func classifyExchangeErr(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return fmt.Errorf("token endpoint %d: %w", rerr.Response.StatusCode, faults.ErrUpstreamUnavailable)
		}
		switch rerr.ErrorCode {
		case "invalid_client", "unauthorized_client":
			return fmt.Errorf("%s: %w", rerr.ErrorCode, faults.ErrConfiguration)
		case "invalid_grant", "invalid_request":
			return fmt.Errorf("%s: %w", rerr.ErrorCode, faults.ErrInvalidGrant)
		}
		return fmt.Errorf("token endpoint refused (%s): %w", rerr.ErrorCode, faults.ErrInvalidGrant)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("token endpoint timeout: %w", faults.ErrUpstreamUnavailable)
	}
	return fmt.Errorf("token endpoint unreachable: %w", faults.ErrUpstreamUnavailable)
}
