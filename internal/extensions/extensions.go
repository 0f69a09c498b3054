// Package extensions rewrites logical attribute names into the
// tenant-specific extension-attribute keys the directory service stores
// custom fields under.
package extensions

import (
	"fmt"
	"strings"

	"dirgate/pkg/faults"
)

// Namespacer owns the immutable extension-app identifier fixed at startup.
// All methods are pure string transforms.
type Namespacer struct {
	prefix string
}

// New fails fast on an empty app identifier so handlers never silently write
// incorrectly keyed attributes.
func New(appID string) (*Namespacer, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, fmt.Errorf("extensions app id is empty: %w", faults.ErrConfiguration)
	}
	return &Namespacer{
		prefix: "extension_" + strings.ReplaceAll(appID, "-", "") + "_",
	}, nil
}

// Key maps a logical attribute name to its physical key:
// extension_{appIdWithoutHyphens}_{name}.
func (n *Namespacer) Key(name string) string {
	return n.prefix + name
}

// Logical reverses Key. The second return is false when the key does not
// belong to this app's extension namespace.
func (n *Namespacer) Logical(physical string) (string, bool) {
	if rest, ok := strings.CutPrefix(physical, n.prefix); ok && rest != "" {
		return rest, true
	}
	return "", false
}

// ApplyToRecord rewrites every key of the record via Key, values untouched.
// The input is never mutated; nil maps to nil.
func (n *Namespacer) ApplyToRecord(rec map[string]any) map[string]any {
	if rec == nil {
		return nil
	}
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[n.Key(k)] = v
	}
	return out
}

// StripFromRecord splits a record into its plain attributes and the logical
// view of this app's extension attributes. Inputs are never mutated.
func (n *Namespacer) StripFromRecord(rec map[string]any) (plain, ext map[string]any) {
	if rec == nil {
		return nil, nil
	}
	plain = make(map[string]any, len(rec))
	for k, v := range rec {
		if name, ok := n.Logical(k); ok {
			if ext == nil {
				ext = make(map[string]any)
			}
			ext[name] = v
			continue
		}
		plain[k] = v
	}
	return plain, ext
}
