package authflow

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dirgate/internal/authority"
	"dirgate/pkg/faults"
)

// stubIdP is a minimal token endpoint plus JWKS for signing ID tokens.
type stubIdP struct {
	t      *testing.T
	key    jwk.Key
	pubSet jwk.Set
	srv    *httptest.Server

	exchanges int
	// behavior knobs
	errorCode  string // non-empty: respond 400 with this OAuth error code
	status     int    // non-zero: respond with this status and empty body
	omitIDTok  bool
	accountOID string
}

func newStubIdP(t *testing.T) *stubIdP {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, "test-key"))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.RS256))
	pub, err := key.PublicKey()
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	s := &stubIdP{t: t, key: key, pubSet: set, accountOID: "user-42"}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	s.exchanges++
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	if s.errorCode != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": s.errorCode})
		return
	}
	resp := map[string]any{
		"access_token": "at-" + s.accountOID,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !s.omitIDTok {
		resp["id_token"] = s.signIDToken(s.accountOID)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *stubIdP) signIDToken(oid string) string {
	tok := jwt.New()
	require.NoError(s.t, tok.Set(jwt.SubjectKey, "sub-"+oid))
	require.NoError(s.t, tok.Set(jwt.IssuerKey, s.srv.URL))
	require.NoError(s.t, tok.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	require.NoError(s.t, tok.Set("oid", oid))
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, s.key))
	require.NoError(s.t, err)
	return string(signed)
}

func (s *stubIdP) exchanger(t *testing.T) *CodeExchanger {
	t.Helper()
	auth, err := authority.New("contoso", "B2C_1_signin", "")
	require.NoError(t, err)
	ex, err := NewCodeExchanger(DelegatedConfig{
		Authority:    auth,
		ClientID:     "delegated-client",
		ClientSecret: "delegated-secret",
		RedirectURI:  "https://app.example.com/auth/callback",
		AuthURL:      s.srv.URL + "/authorize",
		TokenURL:     s.srv.URL + "/token",
		JWKSURL:      s.srv.URL + "/keys",
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)
	return ex
}

func mustScopes(t *testing.T, scopes ...string) ScopeSet {
	t.Helper()
	s, err := NewScopeSet(scopes...)
	require.NoError(t, err)
	return s
}

func TestAuthURL(t *testing.T) {
	auth, err := authority.New("contoso", "B2C_1_signin", "")
	require.NoError(t, err)
	ex, err := NewCodeExchanger(DelegatedConfig{
		Authority:    auth,
		ClientID:     "delegated-client",
		ClientSecret: "delegated-secret",
		RedirectURI:  "https://app.example.com/auth/callback",
	})
	require.NoError(t, err)

	raw := ex.AuthURL("state-1", mustScopes(t, "scope.read"))
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "contoso.b2clogin.com", u.Host)
	assert.Contains(t, u.Path, "tfp/contoso.onmicrosoft.com/B2C_1_signin")
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "delegated-client", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "scope.read", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
}

func TestNewCodeExchangerValidation(t *testing.T) {
	_, err := NewCodeExchanger(DelegatedConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrConfiguration))
}

func TestExchange(t *testing.T) {
	scopes := func(t *testing.T) ScopeSet { return mustScopes(t, "scope.read") }

	t.Run("success carries account id and upstream expiry", func(t *testing.T) {
		idp := newStubIdP(t)
		ex := idp.exchanger(t)
		rec, err := ex.Exchange(context.Background(), "abc", scopes(t))
		require.NoError(t, err)
		assert.Equal(t, "at-user-42", rec.AccessToken)
		assert.Equal(t, "user-42", rec.AccountID)
		assert.WithinDuration(t, time.Now().Add(time.Hour), rec.Expiry, 30*time.Second)
		assert.Equal(t, 1, idp.exchanges)
	})

	t.Run("invalid_grant", func(t *testing.T) {
		idp := newStubIdP(t)
		idp.errorCode = "invalid_grant"
		ex := idp.exchanger(t)
		_, err := ex.Exchange(context.Background(), "already-redeemed", scopes(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, faults.ErrInvalidGrant))
	})

	t.Run("invalid_client maps to configuration error", func(t *testing.T) {
		idp := newStubIdP(t)
		idp.errorCode = "invalid_client"
		ex := idp.exchanger(t)
		_, err := ex.Exchange(context.Background(), "abc", scopes(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, faults.ErrConfiguration))
	})

	t.Run("5xx maps to upstream unavailable", func(t *testing.T) {
		idp := newStubIdP(t)
		idp.status = http.StatusBadGateway
		ex := idp.exchanger(t)
		_, err := ex.Exchange(context.Background(), "abc", scopes(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, faults.ErrUpstreamUnavailable))
	})

	t.Run("unreachable endpoint maps to upstream unavailable", func(t *testing.T) {
		idp := newStubIdP(t)
		ex := idp.exchanger(t)
		idp.srv.Close()
		_, err := ex.Exchange(context.Background(), "abc", scopes(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, faults.ErrUpstreamUnavailable))
	})

	t.Run("missing id_token", func(t *testing.T) {
		idp := newStubIdP(t)
		idp.omitIDTok = true
		ex := idp.exchanger(t)
		_, err := ex.Exchange(context.Background(), "abc", scopes(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, faults.ErrMissingIDToken))
	})
}

func TestServiceExchanger(t *testing.T) {
	t.Run("client credentials exchange", func(t *testing.T) {
		var grantType string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			grantType = r.PostFormValue("grant_type")
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "svc-token",
				"token_type":   "Bearer",
				"expires_in":   600,
			})
		}))
		defer srv.Close()

		ex, err := NewServiceExchanger(ServiceConfig{
			TokenURL:     srv.URL + "/token",
			ClientID:     "service-client",
			ClientSecret: "service-secret",
		})
		require.NoError(t, err)

		rec, err := ex.Acquire(context.Background(), mustScopes(t, "https://graph.microsoft.com/.default"))
		require.NoError(t, err)
		assert.Equal(t, "client_credentials", grantType)
		assert.Equal(t, "svc-token", rec.AccessToken)
		assert.Empty(t, rec.AccountID)
		assert.WithinDuration(t, time.Now().Add(10*time.Minute), rec.Expiry, 30*time.Second)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewServiceExchanger(ServiceConfig{ClientID: "x"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, faults.ErrConfiguration))
	})
}

func TestScopeSet(t *testing.T) {
	t.Run("order preserved", func(t *testing.T) {
		s := mustScopes(t, "b", "a", "c")
		assert.Equal(t, []string{"b", "a", "c"}, s.List())
		assert.Equal(t, "b a c", s.String())
	})
	t.Run("duplicates forbidden", func(t *testing.T) {
		_, err := NewScopeSet("a", "a")
		require.Error(t, err)
	})
	t.Run("empty entries forbidden", func(t *testing.T) {
		_, err := NewScopeSet("a", " ")
		require.Error(t, err)
	})
}
