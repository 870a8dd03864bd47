package pool

import (
	"fmt"
	"strings"
)

// Affinity selects which pool runs a listener callback.
type Affinity int

const (
	// Lite is for short, latency-sensitive callbacks. It is the default.
	Lite Affinity = iota

	// Blocking is for callbacks that wait on I/O.
	Blocking

	// Compute is for CPU-intensive callbacks.
	Compute
)

// Affinities lists every affinity in pool order.
var Affinities = []Affinity{Lite, Blocking, Compute}

// String returns the affinity name.
func (a Affinity) String() string {
	switch a {
	case Lite:
		return "lite"
	case Blocking:
		return "blocking"
	case Compute:
		return "compute"
	default:
		return "unknown"
	}
}

// ParseAffinity parses an affinity name. The empty string is Lite.
func ParseAffinity(s string) (Affinity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lite", "light", "cpu-lite":
		return Lite, nil
	case "blocking", "io":
		return Blocking, nil
	case "compute", "cpu", "cpu-intensive":
		return Compute, nil
	default:
		return Lite, fmt.Errorf("unknown affinity %q", s)
	}
}
