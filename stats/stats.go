// Package stats provides process-wide error counters shared by transport
// clients. Counters are increment-only and safe for concurrent use from
// clients running on different goroutines.
package stats

import (
	"sync/atomic"
)

// ErrorCategory identifies a class of transport or session error.
type ErrorCategory int

const (
	// ResolveError counts failed name resolutions.
	ResolveError ErrorCategory = iota
	// NetworkRecvError counts stream read failures.
	NetworkRecvError
	// NetworkSendError counts stream write failures.
	NetworkSendError
	// TLSError counts secure-session failures.
	TLSError

	numCategories
)

// String returns the category name for log fields and snapshots.
func (c ErrorCategory) String() string {
	switch c {
	case ResolveError:
		return "resolve_error"
	case NetworkRecvError:
		return "network_recv_error"
	case NetworkSendError:
		return "network_send_error"
	case TLSError:
		return "tls_error"
	default:
		return "unknown"
	}
}

// Stats accumulates categorized error counts. The zero value is ready to
// use. Counters are never reset.
type Stats struct {
	counters [numCategories]atomic.Uint64
}

// New returns an empty counter set.
func New() *Stats {
	return &Stats{}
}

// Error records one occurrence of the given category. Unknown categories
// are ignored.
func (s *Stats) Error(c ErrorCategory) {
	if c < 0 || c >= numCategories {
		return
	}
	s.counters[c].Add(1)
}

// Get returns the current count for a category.
func (s *Stats) Get(c ErrorCategory) uint64 {
	if c < 0 || c >= numCategories {
		return 0
	}
	return s.counters[c].Load()
}

// Snapshot returns all non-zero counters keyed by category name.
func (s *Stats) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	for c := ErrorCategory(0); c < numCategories; c++ {
		if v := s.counters[c].Load(); v > 0 {
			out[c.String()] = v
		}
	}
	return out
}
