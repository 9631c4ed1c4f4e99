// pkg/service/metadata/policy.go
package metadata

import (
	"sort"
	"strings"
)

// Override forces a field to a canonical value.
type Override struct {
	Field string
	Value string
}

// Policy is the allow list plus the overrides. Override fields are always
// allowed.
type Policy struct {
	allow     map[string]bool
	overrides []Override
}

// NewPolicy builds a policy. Blank allow entries are ignored; overrides are
// applied in field-name order.
func NewPolicy(allow []string, overrides map[string]string) *Policy {
	p := &Policy{allow: make(map[string]bool, len(allow)+len(overrides))}
	for _, name := range allow {
		if name = strings.TrimSpace(name); name != "" {
			p.allow[name] = true
		}
	}
	for field, value := range overrides {
		p.overrides = append(p.overrides, Override{Field: field, Value: value})
		p.allow[field] = true
	}
	sort.Slice(p.overrides, func(i, j int) bool {
		return p.overrides[i].Field < p.overrides[j].Field
	})
	return p
}

// Allowed reports whether a field may survive sanitisation.
func (p *Policy) Allowed(field string) bool {
	return p.allow[field]
}

// Overrides returns the overrides in application order.
func (p *Policy) Overrides() []Override {
	return append([]Override(nil), p.overrides...)
}
