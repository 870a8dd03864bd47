// Package wildcard compiles listener subscriptions into resource
// identifier filters.
//
// A subscription is a comma-separated list of glob patterns. Matching is
// case-insensitive. Within a pattern:
//
//	*    matches any run of characters, including '.'
//	?    matches exactly one character
//
// Examples:
//
//	order.*            matches order.created, order.line.added
//	*.created          matches order.created, invoice.created
//	order.*,invoice.*  matches either family
//
// An empty resource identifier never matches a compiled filter.
package wildcard

import (
	"strings"

	"github.com/tidwall/match"
)

// Filter is a compiled subscription. It is immutable and safe for
// concurrent use.
type Filter struct {
	source   string
	patterns []string
	any      bool
}

// Compile builds a filter from a subscription string. Blank alternatives
// are ignored; a subscription with no alternatives matches nothing.
func Compile(subscription string) *Filter {
	f := &Filter{source: subscription}
	for _, alt := range strings.Split(subscription, ",") {
		alt = strings.ToLower(strings.TrimSpace(alt))
		if alt == "" {
			continue
		}
		if alt == "*" {
			f.any = true
		}
		f.patterns = append(f.patterns, alt)
	}
	return f
}

// String returns the original subscription.
func (f *Filter) String() string {
	return f.source
}

// Patterns returns the normalized alternatives.
func (f *Filter) Patterns() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}

// Accept reports whether the resource identifier matches any alternative.
func (f *Filter) Accept(resourceID string) bool {
	if resourceID == "" {
		return false
	}
	if f.any {
		return true
	}
	id := strings.ToLower(resourceID)
	for _, p := range f.patterns {
		if match.Match(id, p) {
			return true
		}
	}
	return false
}
