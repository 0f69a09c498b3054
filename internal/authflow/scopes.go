package authflow

import (
	"fmt"
	"strings"

	"dirgate/pkg/faults"
)

// ScopeSet is an ordered set of permission URIs. Order only affects query
// encoding of the authorization URL, never semantics.
type ScopeSet struct {
	scopes []string
}

// NewScopeSet rejects empty entries and duplicates.
func NewScopeSet(scopes ...string) (ScopeSet, error) {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			return ScopeSet{}, fmt.Errorf("empty scope: %w", faults.ErrConfiguration)
		}
		if _, dup := seen[s]; dup {
			return ScopeSet{}, fmt.Errorf("duplicate scope %q: %w", s, faults.ErrConfiguration)
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return ScopeSet{scopes: out}, nil
}

// List returns a copy of the scopes in insertion order.
func (s ScopeSet) List() []string {
	out := make([]string, len(s.scopes))
	copy(out, s.scopes)
	return out
}

func (s ScopeSet) Len() int { return len(s.scopes) }

func (s ScopeSet) String() string { return strings.Join(s.scopes, " ") }
