// Package authority derives the B2C authority and its OAuth2 endpoints from
// the {tenant, policy} pair fixed at startup.
package authority

import (
	"fmt"
	"strings"

	"dirgate/pkg/faults"
)

const defaultIdPHost = "b2clogin.com"

// Descriptor identifies a tenant policy authority. Immutable once constructed.
type Descriptor struct {
	Tenant string
	Policy string
	host   string
}

// New validates the pair and fixes the identity-provider host.
// Empty tenant or policy is a configuration error.
func New(tenant, policy, idpHost string) (Descriptor, error) {
	tenant = strings.TrimSpace(tenant)
	policy = strings.TrimSpace(policy)
	if tenant == "" {
		return Descriptor{}, fmt.Errorf("tenant name is empty: %w", faults.ErrConfiguration)
	}
	if policy == "" {
		return Descriptor{}, fmt.Errorf("policy name is empty: %w", faults.ErrConfiguration)
	}
	if idpHost == "" {
		idpHost = defaultIdPHost
	}
	return Descriptor{Tenant: tenant, Policy: policy, host: idpHost}, nil
}

// URL returns the authority URL:
// https://{tenant}.{host}/tfp/{tenant}.onmicrosoft.com/{policy}
func (d Descriptor) URL() string {
	return fmt.Sprintf("https://%s.%s/tfp/%s.onmicrosoft.com/%s", d.Tenant, d.host, d.Tenant, d.Policy)
}

// AuthorizeEndpoint returns the policy's authorization endpoint.
func (d Descriptor) AuthorizeEndpoint() string {
	return d.URL() + "/oauth2/v2.0/authorize"
}

// TokenEndpoint returns the policy's token endpoint.
func (d Descriptor) TokenEndpoint() string {
	return d.URL() + "/oauth2/v2.0/token"
}

// JWKSEndpoint returns the policy's signing-key discovery endpoint.
func (d Descriptor) JWKSEndpoint() string {
	return d.URL() + "/discovery/v2.0/keys"
}

// ImpersonationScope returns the delegated user_impersonation scope exposed
// by the named app registration in this tenant.
func (d Descriptor) ImpersonationScope(appName string) string {
	return fmt.Sprintf("https://%s.onmicrosoft.com/%s/user_impersonation", d.Tenant, appName)
}
